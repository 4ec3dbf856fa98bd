// Package pipeline runs one grading pass over a target project: unit test
// suites, semantic scoring, auxiliary signals, then the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/evidence"
	"github.com/signalnine/gradecheck/internal/history"
	"github.com/signalnine/gradecheck/internal/metrics"
	"github.com/signalnine/gradecheck/internal/pricing"
	"github.com/signalnine/gradecheck/internal/report"
	"github.com/signalnine/gradecheck/internal/result"
	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/secrets"
	"github.com/signalnine/gradecheck/internal/semantic"
	"github.com/signalnine/gradecheck/internal/signals"
	"github.com/signalnine/gradecheck/internal/suites"
)

type Stage int

const (
	StageInit Stage = iota
	StageTests
	StageSemantic
	StageCompile
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "init"
	case StageTests:
		return "tests"
	case StageSemantic:
		return "semantic"
	case StageCompile:
		return "compile"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Options configure one run. Only Config is required; the rest replace
// what would otherwise be built from it.
type Options struct {
	Config *config.Config
	// Target overrides Config.Target.
	Target string
	// RunName names the run directory; by default a timestamp plus the
	// first part of the run id.
	RunName      string
	SkipSemantic bool

	Executor suites.Executor
	Scorer   semantic.Scorer
	Prober   *signals.Prober
	Metrics  *metrics.Metrics
	History  *history.Store

	Out   io.Writer
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	outMu  *sync.Mutex
	prefix string
}

// Result is what a run produced. Report is nil when the run failed before
// compiling.
type Result struct {
	RunID  string
	RunDir string
	Stage  Stage
	Meta   *result.RunMeta
	Report *report.Report
}

type run struct {
	opts     Options
	cfg      *config.Config
	con      *console
	start    time.Time
	target   string
	rubric   *rubric.Rubric
	registry *evidence.Registry
	compiler *report.Compiler
	res      *Result
}

// Run grades one target. Only a missing target, an invalid rubric or
// config, or a failure to write the final artifacts returns an error;
// everything else is recorded in the report and the run completes.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &run{
		opts:  opts,
		cfg:   opts.Config,
		con:   newConsole(opts.Out, opts.outMu, opts.prefix),
		start: opts.Now().UTC(),
		res:   &Result{RunID: uuid.NewString(), Stage: StageInit},
	}
	r.res.Meta = &result.RunMeta{
		RunID:       r.res.RunID,
		Rubric:      r.cfg.Rubric,
		Repository:  r.cfg.Repository,
		BuildFailed: r.cfg.Build.Failed,
		StartedAt:   r.start,
	}

	err := r.execute(ctx)
	r.finish(err)
	return r.res, err
}

func (r *run) execute(ctx context.Context) error {
	if err := r.init(); err != nil {
		return err
	}

	r.res.Stage = StageTests
	r.con.stage(1, "Running unit tests")
	outcome := r.timed(StageTests, func() any { return r.runTests(ctx) }).(*suites.Outcome)

	r.res.Stage = StageSemantic
	r.con.stage(2, "Running semantic evaluation")
	summary := r.inspect(ctx)
	evaluation := r.timed(StageSemantic, func() any { return r.runSemantic(ctx, summary, outcome) }).(*semantic.Evaluation)
	sigs := r.collectSignals(ctx)

	r.res.Stage = StageCompile
	r.con.stage(3, "Compiling report")
	var writeErr error
	r.timed(StageCompile, func() any {
		rep := r.compiler.Compile(report.Inputs{
			Timestamp:   r.start,
			Repository:  r.cfg.Repository,
			BuildFailed: r.cfg.Build.Failed,
			Tests:       outcome,
			Semantic:    evaluation,
			Signals:     sigs,
			Evidence:    summary,
		})
		r.res.Report = rep
		writeErr = report.Write(r.res.RunDir, rep)
		return nil
	})
	if writeErr != nil {
		return writeErr
	}
	r.con.ok("Report written to %s", r.res.RunDir)
	r.res.Stage = StageDone
	return nil
}

// init checks the fatal preconditions before any suite runs.
func (r *run) init() error {
	if set, err := secrets.Apply(r.cfg.Secrets.EnvFile); err != nil {
		log.Printf("warning: secrets env file: %v", err)
	} else if len(set) > 0 {
		r.con.ok("Loaded %d secret(s) from %s", len(set), r.cfg.Secrets.EnvFile)
	}

	target := r.opts.Target
	if target == "" {
		target = r.cfg.Target
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolving target %s: %w", target, err)
	}
	if info, err := os.Stat(abs); err != nil {
		return fmt.Errorf("target project %s: %w", target, err)
	} else if !info.IsDir() {
		return fmt.Errorf("target project %s: not a directory", target)
	}
	r.target = abs
	r.res.Meta.Target = abs
	r.con.ok("Target project: %s", abs)

	rub, err := rubric.Load(r.cfg.Rubric)
	if err != nil {
		return err
	}
	if p, err := filepath.Abs(r.cfg.Rubric); err == nil {
		r.res.Meta.Rubric = p
	}
	if err := r.cfg.Check(rub); err != nil {
		return err
	}
	r.rubric = rub
	r.res.Meta.MaxScore = rub.MaxScore()
	r.con.ok("Rubric: %s (%d criteria, %s points)", r.cfg.Rubric, len(rub.Criteria()), fmtPoints(rub.MaxScore()))

	if r.registry, err = evidence.NewRegistry(r.cfg.Evidence); err != nil {
		return &rubric.ConfigError{Source: "evidence", Msg: "building extractors", Err: err}
	}
	if r.compiler, err = report.NewCompiler(rub, r.cfg.Overrides); err != nil {
		return err
	}

	if r.usesSource(signals.SourceDeployment) {
		urlFile := config.Resolve(r.target, r.cfg.Signals.DeploymentURLFile)
		testFile := config.Resolve(r.target, r.cfg.Signals.DeploymentTestFile)
		if !config.Exists(urlFile) && !config.Exists(testFile) {
			r.con.warn("%s not found; deployment will be scored from its test suites", r.cfg.Signals.DeploymentURLFile)
		}
	}
	if r.cfg.Build.Failed {
		r.con.warn("Build marked as failed; unit-test credit will be withheld")
	}

	name := r.opts.RunName
	if name == "" {
		name = fmt.Sprintf("%s-%s-%s", r.start.Format("2006-01-02T15-04-05"), filepath.Base(abs), r.res.RunID[:8])
	}
	dir, err := result.CreateRunDir(r.cfg.Results.Dir, name)
	if err != nil {
		return &report.ArtifactWriteError{Path: filepath.Join(r.cfg.Results.Dir, "runs", name), Err: err}
	}
	r.res.RunDir = dir
	return nil
}

func (r *run) timed(stage Stage, fn func() any) any {
	start := time.Now()
	v := fn()
	r.opts.Metrics.ObserveStage(stage.String(), time.Since(start))
	return v
}

func (r *run) record(name string, v any) {
	if err := result.WriteRecord(r.res.RunDir, name, v); err != nil {
		log.Printf("warning: writing %s: %v", name, err)
	}
}

func (r *run) executor() suites.Executor {
	if r.opts.Executor != nil {
		return r.opts.Executor
	}
	sc := r.cfg.Suites
	if sc.Runner == "docker" {
		dir, _ := filepath.Abs(sc.Dir)
		return &suites.DockerExecutor{Image: sc.Image, Command: sc.Command, Dir: dir, Target: r.target, Timeout: sc.Timeout}
	}
	return &suites.ExecExecutor{Command: sc.Command, Dir: sc.Dir, Target: r.target}
}

func (r *run) runTests(ctx context.Context) *suites.Outcome {
	agg, err := suites.NewAggregator(r.rubric, r.executor(), r.cfg.Suites.Specs, suites.Options{
		Dir:     r.cfg.Suites.Dir,
		Timeout: r.cfg.Suites.Timeout,
		OnResult: func(res suites.Result) {
			r.opts.Metrics.SuiteFinished(string(res.Status), time.Duration(res.DurationMS)*time.Millisecond)
			switch res.Status {
			case suites.StatusPassed:
				r.con.ok("%s: %d/%d passed", res.Name, res.Passed, res.Total)
			case suites.StatusSkipped:
				r.con.warn("%s: skipped (%s)", res.Name, res.Reason)
			default:
				detail := res.Error
				if detail == "" {
					detail = fmt.Sprintf("%d/%d passed", res.Passed, res.Total)
				}
				r.con.fail("%s: %s", res.Name, detail)
			}
		},
	})
	if err != nil {
		// Specs were checked in init; this only guards against drift.
		log.Printf("warning: test suites: %v", err)
		return &suites.Outcome{Timestamp: r.start, Criteria: map[string]suites.Tally{}}
	}
	outcome := agg.Run(ctx, r.cfg.Suites.Specs)
	r.con.ok("Tests: %d/%d passed (%.1f%%)", outcome.Passed, outcome.TotalTests, outcome.SuccessRate)
	r.res.Meta.TestsPassed = outcome.Passed
	r.res.Meta.TestsTotal = outcome.TotalTests
	r.record(result.UnitTestsFile, outcome)
	return outcome
}

func (r *run) inspect(ctx context.Context) *evidence.Summary {
	summary, err := evidence.Inspect(ctx, r.target)
	if err != nil {
		log.Printf("warning: inspecting target: %v", err)
		return nil
	}
	r.record(result.EvidenceFile, summary)
	return summary
}

func (r *run) runSemantic(ctx context.Context, summary *evidence.Summary, outcome *suites.Outcome) *semantic.Evaluation {
	ev := r.evaluate(ctx, summary, outcome)
	r.res.Meta.SemanticCalls = ev.Metadata.TotalAPICalls
	r.res.Meta.SemanticCostUSD = ev.Metadata.EstimatedCostUSD
	r.record(result.SemanticFile, ev)
	return ev
}

func (r *run) evaluate(ctx context.Context, summary *evidence.Summary, outcome *suites.Outcome) *semantic.Evaluation {
	sc := r.cfg.Semantic
	if r.opts.SkipSemantic || !sc.Enabled {
		r.con.warn("Semantic evaluation disabled")
		return semantic.Skipped("semantic evaluation disabled")
	}
	scorer := r.opts.Scorer
	if scorer == nil {
		var err error
		scorer, err = semantic.NewScorer(ctx, semantic.Config{
			Provider:   sc.Provider,
			Model:      sc.Model,
			BaseURL:    sc.BaseURL,
			APIKey:     sc.APIKey,
			AWSRegion:  sc.AWSRegion,
			AWSProfile: sc.AWSProfile,
		})
		if err != nil {
			if errors.Is(err, semantic.ErrNoCredentials) {
				r.con.warn("No semantic scorer credentials; skipping semantic evaluation")
			} else {
				log.Printf("warning: semantic scorer: %v", err)
			}
			return semantic.Skipped(err.Error())
		}
	}
	table, err := pricing.Load(sc.PricingFile)
	if err != nil {
		log.Printf("warning: pricing table: %v; using defaults", err)
		table = pricing.Default()
	}

	if r.cfg.Build.Failed {
		outcome = outcome.WithoutCredit()
	}
	eval := semantic.NewEvaluator(scorer, r.registry, semantic.Options{
		Temperature: sc.Temperature,
		MaxTokens:   sc.MaxTokens,
		Retries:     sc.Retries,
		Delay:       sc.Delay,
		Timeout:     sc.Timeout,
		Pricing:     table,
		Sleep:       r.opts.Sleep,
		OnVerdict: func(v *semantic.Verdict) {
			if v.Failed {
				r.opts.Metrics.SemanticRequest("failed", v.InputTokens, v.OutputTokens)
				r.con.fail("%s: %s", v.Title, v.Error)
				return
			}
			r.opts.Metrics.SemanticRequest("scored", v.InputTokens, v.OutputTokens)
			r.con.ok("%s: %s/%s (%s)", v.Title, fmtPoints(v.Score), fmtPoints(v.MaxPoints), v.Level)
		},
	})
	ev := eval.Evaluate(ctx, r.rubric, summary, outcome)
	m := ev.Metadata
	r.con.ok("Semantic: %d criteria scored, %d failed, %d calls, $%.4f", m.CriteriaEvaluated, m.CriteriaFailed, m.TotalAPICalls, m.EstimatedCostUSD)
	return ev
}

func (r *run) finish(err error) {
	meta := r.res.Meta
	meta.DurationS = time.Since(r.start).Seconds()
	if err != nil {
		meta.ExitReason = result.ExitFailed
		meta.Error = err.Error()
		r.con.fail("Grading failed: %v", err)
	} else {
		rep := r.res.Report
		meta.ExitReason = result.ExitCompleted
		meta.TotalScore = rep.TotalScore
		meta.MaxScore = rep.MaxScore
		meta.Percentage = rep.Percentage
		meta.LetterGrade = rep.LetterGrade
		r.printGrade(rep)
		r.opts.Metrics.RecordGrade(filepath.Base(meta.Target), rep.TotalScore, rep.Percentage)
	}
	r.opts.Metrics.RunFinished(meta.ExitReason)
	if err := r.opts.Metrics.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
		log.Printf("warning: writing metrics textfile: %v", err)
	}

	if r.res.RunDir == "" {
		return
	}
	if err := result.WriteMeta(r.res.RunDir, meta); err != nil {
		log.Printf("warning: writing run meta: %v", err)
	}
	if r.opts.History != nil {
		if err := r.opts.History.Record(context.Background(), history.FromMeta(r.res.RunDir, meta)); err != nil {
			log.Printf("warning: recording run history: %v", err)
		}
	}
}

func (r *run) printGrade(rep *report.Report) {
	r.con.banner(fmt.Sprintf("FINAL GRADE: %s/%s (%s%%) - %s",
		fmtPoints(rep.TotalScore), fmtPoints(rep.MaxScore), fmtPoints(rep.Percentage), rep.LetterGrade))
	phrase, attr := verdictPhrase(rep.LetterGrade)
	r.con.status("*", attr, "%s", phrase)
}

func (r *run) usesSource(source string) bool {
	for _, s := range r.cfg.Overrides {
		if s == source {
			return true
		}
	}
	return false
}

func fmtPoints(v float64) string {
	return fmt.Sprintf("%g", rubric.RoundPoints(v))
}
