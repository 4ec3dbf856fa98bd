// Package suites runs test suites against a target project and maps their
// pass counts onto rubric criteria.
package suites

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/timeout"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Spec names a suite file (relative to the aggregator's directory) and the
// criteria its counts feed.
type Spec struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Criteria []string `json:"criteria"`
}

type Result struct {
	Name       string   `json:"name"`
	File       string   `json:"file"`
	Status     Status   `json:"status"`
	Total      int      `json:"total"`
	Passed     int      `json:"passed"`
	Failed     int      `json:"failed"`
	DurationMS int64    `json:"duration_ms"`
	Criteria   []string `json:"criteria"`
	Reason     string   `json:"reason,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Tally is the per-criterion aggregate across every suite that touches it.
// Counts are fractional when a suite is split across several criteria.
type Tally struct {
	Total     float64  `json:"total_tests"`
	Passed    float64  `json:"passed"`
	Failed    float64  `json:"failed"`
	Score     float64  `json:"score"`
	MaxPoints float64  `json:"max_score"`
	Errors    []string `json:"errors,omitempty"`
}

// Evaluated reports whether any test counted toward the criterion.
func (t Tally) Evaluated() bool { return t.Total > 0 }

type Outcome struct {
	Timestamp   time.Time        `json:"timestamp"`
	TotalTests  int              `json:"total_tests"`
	Passed      int              `json:"passed"`
	Failed      int              `json:"failed"`
	SuccessRate float64          `json:"success_rate"`
	DurationMS  int64            `json:"execution_time_ms"`
	Suites      []Result         `json:"test_suites"`
	Criteria    map[string]Tally `json:"criteria_scores"`
}

// Tally returns the aggregate for id and whether one exists.
func (o *Outcome) Tally(id string) (Tally, bool) {
	if o == nil {
		return Tally{}, false
	}
	t, ok := o.Criteria[id]
	return t, ok
}

// WithoutCredit returns a copy whose criterion scores are all zero. Used
// when the target failed to build and test results cannot be trusted.
func (o *Outcome) WithoutCredit() *Outcome {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Criteria = make(map[string]Tally, len(o.Criteria))
	for id, t := range o.Criteria {
		t.Score = 0
		cp.Criteria[id] = t
	}
	return &cp
}

// SuiteExecutionError records a suite that crashed, timed out or produced
// unreadable output. It never aborts the remaining suites.
type SuiteExecutionError struct {
	Suite string
	Err   error
}

func (e *SuiteExecutionError) Error() string {
	return fmt.Sprintf("suite %q: %v", e.Suite, e.Err)
}

func (e *SuiteExecutionError) Unwrap() error { return e.Err }

type Options struct {
	// Dir is where suite files are resolved and the runner is invoked.
	Dir string
	// Timeout bounds each suite execution.
	Timeout time.Duration
	// OnResult is called after each suite finishes.
	OnResult func(Result)
}

type Aggregator struct {
	rubric *rubric.Rubric
	exec   Executor
	opts   Options
}

// Validate checks each spec's shape and its criterion ids against r.
func Validate(r *rubric.Rubric, specs []Spec) error {
	for _, s := range specs {
		if s.Name == "" || s.File == "" {
			return &rubric.ConfigError{Source: "suites", Msg: fmt.Sprintf("suite %q needs a name and a file", s.Name)}
		}
		if len(s.Criteria) == 0 {
			return &rubric.ConfigError{Source: "suites", Msg: fmt.Sprintf("suite %q maps to no criteria", s.Name)}
		}
		seen := make(map[string]bool, len(s.Criteria))
		for _, id := range s.Criteria {
			if seen[id] {
				return &rubric.ConfigError{Source: "suite " + s.Name, Field: id, Msg: "criterion listed more than once"}
			}
			seen[id] = true
		}
		if err := r.Require("suite "+s.Name, s.Criteria...); err != nil {
			return err
		}
	}
	return nil
}

// NewAggregator checks every spec against the rubric up front so a bad
// mapping fails before any suite runs.
func NewAggregator(r *rubric.Rubric, exec Executor, specs []Spec, opts Options) (*Aggregator, error) {
	if err := Validate(r, specs); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &Aggregator{rubric: r, exec: exec, opts: opts}, nil
}

// Run executes the suites one at a time, in order.
func (a *Aggregator) Run(ctx context.Context, specs []Spec) *Outcome {
	start := time.Now()
	out := &Outcome{Timestamp: start.UTC()}
	for _, s := range specs {
		res := a.runSuite(ctx, s)
		out.Suites = append(out.Suites, res)
		out.TotalTests += res.Total
		out.Passed += res.Passed
		out.Failed += res.Failed
		if a.opts.OnResult != nil {
			a.opts.OnResult(res)
		}
	}
	out.DurationMS = time.Since(start).Milliseconds()
	if out.TotalTests > 0 {
		out.SuccessRate = rubric.RoundPoints(float64(out.Passed) * 100 / float64(out.TotalTests))
	}
	out.Criteria = Tabulate(a.rubric, out.Suites)
	return out
}

func (a *Aggregator) runSuite(ctx context.Context, s Spec) Result {
	res := Result{Name: s.Name, File: s.File, Criteria: s.Criteria}
	if _, err := os.Stat(filepath.Join(a.opts.Dir, s.File)); err != nil {
		log.Printf("warning: suite %q: test file not found: %s", s.Name, s.File)
		res.Status = StatusSkipped
		res.Reason = "test file not found"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	started := time.Now()
	output, err := a.exec.Execute(ctx, s.File)
	res.DurationMS = time.Since(started).Milliseconds()
	if err == nil {
		rep, perr := ParseReport(output)
		if perr == nil {
			res.apply(rep)
			return res
		}
		err = perr
	}

	execErr := &SuiteExecutionError{Suite: s.Name, Err: timeout.Check(ctx, "suite "+s.Name, a.opts.Timeout, err)}
	log.Printf("warning: %v", execErr)
	res.Error = execErr.Error()
	if rep, ok := Salvage(output); ok {
		res.apply(rep)
		res.Status = StatusFailed
		if msg := rep.message(); msg != "" {
			res.Error = msg
		}
		return res
	}
	res.Status = StatusError
	return res
}

func (r *Result) apply(rep *Report) {
	r.Total = rep.NumTotalTests
	r.Passed = rep.NumPassedTests
	r.Failed = rep.NumFailedTests
	if ms := rep.runtimeMS(); ms > 0 {
		r.DurationMS = ms
	}
	if rep.passed() {
		r.Status = StatusPassed
	} else {
		r.Status = StatusFailed
	}
}

// Tabulate folds suite results into per-criterion tallies and scores each
// criterion on the pass-rate curve. Every criterion a suite names gets an
// entry, even when nothing ran for it.
func Tabulate(r *rubric.Rubric, results []Result) map[string]Tally {
	tallies := make(map[string]Tally)
	for _, res := range results {
		n := float64(len(res.Criteria))
		for _, id := range res.Criteria {
			t := tallies[id]
			t.Total += float64(res.Total) / n
			t.Passed += float64(res.Passed) / n
			t.Failed += float64(res.Failed) / n
			if res.Status == StatusError || res.Error != "" {
				t.Errors = append(t.Errors, fmt.Sprintf("%s: %s", res.Name, res.Error))
			}
			tallies[id] = t
		}
	}
	for id, t := range tallies {
		c, _ := r.Criterion(id)
		t.MaxPoints = c.MaxPoints
		t.Score = CurveScore(t.Passed, t.Total, c.MaxPoints)
		tallies[id] = t
	}
	return tallies
}
