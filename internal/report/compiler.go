// Package report merges rubric, test, semantic and signal results into the
// final grade and renders it.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalnine/gradecheck/internal/evidence"
	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/semantic"
	"github.com/signalnine/gradecheck/internal/signals"
	"github.com/signalnine/gradecheck/internal/suites"
)

const (
	BuildSuccess = "SUCCESS"
	BuildFailed  = "FAILED"
	BuildUnknown = "unknown"
)

// Where a criterion's score came from.
const (
	SourceUnitTests = "unit_tests"
	SourceSemantic  = "semantic"
	SourceHybrid    = "hybrid"
	SourceNone      = "none"
)

type UnitTestResults struct {
	Total  float64 `json:"total"`
	Passed float64 `json:"passed"`
	Failed float64 `json:"failed"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight,omitempty"`
}

// CriterionScore is the final result for one criterion. List fields are
// never nil so both renderings show the same shape.
type CriterionScore struct {
	ID               string                    `json:"id"`
	Title            string                    `json:"title"`
	MaxPoints        float64                   `json:"max_points"`
	Score            float64                   `json:"score"`
	Method           rubric.Method             `json:"evaluation_method"`
	Source           string                    `json:"score_source"`
	Level            string                    `json:"level_achieved"`
	Justification    string                    `json:"justification"`
	Strengths        []string                  `json:"strengths"`
	Weaknesses       []string                  `json:"weaknesses"`
	Improvements     []string                  `json:"improvements"`
	FilesAnalyzed    []string                  `json:"files_analyzed"`
	UnitTests        *UnitTestResults          `json:"unit_test_results,omitempty"`
	Hybrid           *semantic.HybridBreakdown `json:"hybrid_breakdown,omitempty"`
	Git              *signals.GitMetrics       `json:"git_metrics,omitempty"`
	DeploymentURL    string                    `json:"deployment_url,omitempty"`
	DeploymentStatus string                    `json:"deployment_status,omitempty"`
	Error            string                    `json:"error,omitempty"`
}

type TestExecution struct {
	TotalTests  int             `json:"total_tests"`
	Passed      int             `json:"passed"`
	Failed      int             `json:"failed"`
	SuccessRate float64         `json:"success_rate"`
	DurationMS  int64           `json:"execution_time_ms"`
	Suites      []suites.Result `json:"test_suites"`
}

type SemanticSummary struct {
	Provider         string  `json:"provider,omitempty"`
	Model            string  `json:"model,omitempty"`
	APICalls         int     `json:"total_api_calls"`
	TotalTokens      int     `json:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	EvaluationTimeMS int64   `json:"evaluation_time_ms"`
	Skipped          bool    `json:"skipped,omitempty"`
	SkipReason       string  `json:"skip_reason,omitempty"`
}

type CodeStatistics struct {
	TotalFiles int `json:"total_files"`
	TotalLines int `json:"total_lines"`
}

// Report is the single in-memory result both artifacts are rendered from.
// It holds no maps, so its JSON encoding is deterministic.
type Report struct {
	Timestamp     time.Time        `json:"timestamp"`
	Repository    string           `json:"student_repository"`
	GradingDate   string           `json:"grading_date"`
	RubricName    string           `json:"rubric_name,omitempty"`
	RubricVersion string           `json:"rubric_version,omitempty"`
	TotalScore    float64          `json:"total_score"`
	MaxScore      float64          `json:"max_score"`
	Percentage    float64          `json:"percentage"`
	LetterGrade   string           `json:"letter_grade"`
	BuildStatus   string           `json:"build_status"`
	TestExecution *TestExecution   `json:"test_execution"`
	Semantic      *SemanticSummary `json:"semantic_evaluation"`
	Code          *CodeStatistics  `json:"code_statistics,omitempty"`
	Criteria      []CriterionScore `json:"criteria_breakdown"`
}

// Inputs are the read-only stage outputs a report is compiled from. Any of
// them may be nil; the affected criteria are reported as not evaluated.
type Inputs struct {
	Timestamp   time.Time
	Repository  string
	BuildFailed bool
	Tests       *suites.Outcome
	Semantic    *semantic.Evaluation
	Signals     map[string]*signals.Signal
	Evidence    *evidence.Summary
}

type Compiler struct {
	rubric    *rubric.Rubric
	overrides map[string]string
}

// NewCompiler checks that every override names a rubric criterion and a
// known signal source.
func NewCompiler(r *rubric.Rubric, overrides map[string]string) (*Compiler, error) {
	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.Require("overrides", id); err != nil {
			return nil, err
		}
		if !knownSource(overrides[id]) {
			return nil, &rubric.ConfigError{
				Source: "overrides",
				Field:  id,
				Msg:    fmt.Sprintf("unknown signal source %q (want one of %s)", overrides[id], strings.Join(signals.Sources, ", ")),
			}
		}
	}
	return &Compiler{rubric: r, overrides: overrides}, nil
}

func knownSource(s string) bool {
	for _, k := range signals.Sources {
		if s == k {
			return true
		}
	}
	return false
}

// Compile builds the report. It is a pure function of its inputs.
func (c *Compiler) Compile(in Inputs) *Report {
	meta := c.rubric.Metadata()
	rep := &Report{
		Timestamp:     in.Timestamp.UTC(),
		Repository:    in.Repository,
		GradingDate:   in.Timestamp.UTC().Format("January 2, 2006"),
		RubricName:    meta.Name,
		RubricVersion: meta.Version,
		MaxScore:      c.rubric.MaxScore(),
		BuildStatus:   buildStatus(in),
		TestExecution: testExecution(in.Tests),
		Semantic:      semanticSummary(in.Semantic),
	}
	if rep.Repository == "" {
		rep.Repository = "Unknown"
	}
	if in.Evidence != nil {
		rep.Code = &CodeStatistics{TotalFiles: in.Evidence.TotalFiles, TotalLines: in.Evidence.TotalLines}
	}

	for _, crit := range c.rubric.Criteria() {
		cs := c.score(crit, in)
		rep.Criteria = append(rep.Criteria, cs)
		rep.TotalScore += cs.Score
	}
	rep.Percentage = rubric.RoundPoints(rep.TotalScore / rep.MaxScore * 100)
	rep.LetterGrade = LetterGrade(rep.TotalScore, rep.MaxScore)
	return rep
}

func (c *Compiler) score(crit rubric.Criterion, in Inputs) CriterionScore {
	if src, ok := c.overrides[crit.ID]; ok {
		if sig := in.Signals[src]; sig != nil {
			return fromSignal(crit, sig)
		}
	}
	switch crit.Method {
	case rubric.MethodUnitTest:
		return unitScore(crit, in)
	case rubric.MethodSemantic:
		return semanticScore(crit, in)
	default:
		return hybridScore(crit, in)
	}
}

func newScore(crit rubric.Criterion, source string) CriterionScore {
	return CriterionScore{
		ID:            crit.ID,
		Title:         crit.Title,
		MaxPoints:     crit.MaxPoints,
		Method:        crit.Method,
		Source:        source,
		Level:         rubric.NotEvaluated,
		Strengths:     []string{},
		Weaknesses:    []string{},
		Improvements:  []string{},
		FilesAnalyzed: []string{},
	}
}

func unitResults(t suites.Tally, weight float64) *UnitTestResults {
	return &UnitTestResults{Total: t.Total, Passed: t.Passed, Failed: t.Failed, Score: t.Score, Weight: weight}
}

func unitScore(crit rubric.Criterion, in Inputs) CriterionScore {
	cs := newScore(crit, SourceUnitTests)
	t, ok := in.Tests.Tally(crit.ID)
	switch {
	case in.BuildFailed:
		cs.Source = SourceNone
		cs.Justification = "Build failed; unit tests were not credited"
		cs.Error = "build failed"
		if ok {
			t.Score = 0
			cs.UnitTests = unitResults(t, 0)
		}
	case !ok || !t.Evaluated():
		cs.Source = SourceNone
		cs.Justification = "No unit tests ran for this criterion"
		if ok && len(t.Errors) > 0 {
			cs.Error = strings.Join(t.Errors, "; ")
		}
	default:
		cs.Score = clamp(t.Score, crit.MaxPoints)
		cs.Level = rubric.LevelForPercent(cs.Score / crit.MaxPoints * 100)
		cs.Justification = fmt.Sprintf("Unit tests: %s/%s passed", count(t.Passed), count(t.Total))
		cs.UnitTests = unitResults(t, 0)
		if len(t.Errors) > 0 {
			cs.Error = strings.Join(t.Errors, "; ")
		}
	}
	return cs
}

func semanticScore(crit rubric.Criterion, in Inputs) CriterionScore {
	cs := newScore(crit, SourceSemantic)
	v, ok := in.Semantic.Verdict(crit.ID)
	if !ok || !v.Usable() {
		cs.Source = SourceNone
		explainMissing(&cs, in.Semantic, v)
		return cs
	}
	applyVerdict(&cs, v)
	cs.Score = clamp(v.SemanticScore, crit.MaxPoints)
	return cs
}

func hybridScore(crit rubric.Criterion, in Inputs) CriterionScore {
	cs := newScore(crit, SourceHybrid)
	uw, _ := crit.Weights()
	t, hasTests := in.Tests.Tally(crit.ID)
	if in.BuildFailed {
		t.Score = 0
	}
	if hasTests {
		cs.UnitTests = unitResults(t, uw)
	}

	v, ok := in.Semantic.Verdict(crit.ID)
	if !ok || !v.Usable() {
		cs.Source = SourceNone
		explainMissing(&cs, in.Semantic, v)
		return cs
	}
	applyVerdict(&cs, v)
	// Recomputed from the tallies so a build failure or a re-run of the
	// tests is reflected without asking the scorer again.
	cs.Hybrid = semantic.NewHybrid(crit, t.Score, v.SemanticScore)
	cs.Score = clamp(cs.Hybrid.Final, crit.MaxPoints)
	if cs.UnitTests == nil {
		cs.UnitTests = &UnitTestResults{Score: 0, Weight: uw}
	}
	return cs
}

func applyVerdict(cs *CriterionScore, v *semantic.Verdict) {
	cs.Level = v.Level
	cs.Justification = v.Justification
	cs.Strengths = nonNil(v.Strengths)
	cs.Weaknesses = nonNil(v.Weaknesses)
	cs.Improvements = nonNil(v.Improvements)
	cs.FilesAnalyzed = nonNil(v.FilesAnalyzed)
}

func explainMissing(cs *CriterionScore, ev *semantic.Evaluation, v *semantic.Verdict) {
	switch {
	case v != nil:
		cs.Justification = v.Justification
		cs.Error = v.Error
	case ev != nil && ev.Metadata.Skipped:
		cs.Justification = "Semantic evaluation was skipped"
		cs.Error = ev.Metadata.SkipReason
	default:
		cs.Justification = "Semantic evaluation did not run"
		cs.Error = "no semantic verdict"
	}
}

func fromSignal(crit rubric.Criterion, sig *signals.Signal) CriterionScore {
	cs := newScore(crit, sig.Source)
	cs.Score = clamp(sig.Score, crit.MaxPoints)
	cs.Level = rubric.LevelForPercent(cs.Score / crit.MaxPoints * 100)
	cs.Justification = sig.Justification
	cs.Git = sig.Git
	if d := sig.Deployment; d != nil {
		cs.DeploymentURL = d.URL
		cs.DeploymentStatus = d.Status
	}
	return cs
}

func buildStatus(in Inputs) string {
	switch {
	case in.BuildFailed:
		return BuildFailed
	case in.Tests != nil || in.Semantic != nil:
		return BuildSuccess
	}
	return BuildUnknown
}

func testExecution(o *suites.Outcome) *TestExecution {
	if o == nil {
		return &TestExecution{Suites: []suites.Result{}}
	}
	te := &TestExecution{
		TotalTests:  o.TotalTests,
		Passed:      o.Passed,
		Failed:      o.Failed,
		SuccessRate: o.SuccessRate,
		DurationMS:  o.DurationMS,
		Suites:      o.Suites,
	}
	if te.Suites == nil {
		te.Suites = []suites.Result{}
	}
	return te
}

func semanticSummary(ev *semantic.Evaluation) *SemanticSummary {
	if ev == nil {
		return &SemanticSummary{Skipped: true, SkipReason: "not run"}
	}
	m := ev.Metadata
	return &SemanticSummary{
		Provider:         ev.Provider,
		Model:            ev.Model,
		APICalls:         m.TotalAPICalls,
		TotalTokens:      m.TotalTokens,
		EstimatedCostUSD: m.EstimatedCostUSD,
		EvaluationTimeMS: m.EvaluationTimeMS,
		Skipped:          m.Skipped,
		SkipReason:       m.SkipReason,
	}
}

type gradeStep struct {
	min    float64
	letter string
}

var ladder = []gradeStep{
	{90, "A"}, {85, "A-"}, {80, "B+"}, {75, "B"}, {70, "B-"},
	{65, "C+"}, {60, "C"}, {55, "C-"}, {50, "D"},
}

// gradeEpsilon absorbs float noise such as 45/50*100 landing a hair below 90.
const gradeEpsilon = 1e-9

// LetterGrade maps total/max onto the fixed letter ladder.
func LetterGrade(total, max float64) string {
	if max <= 0 {
		return "F"
	}
	pct := total * 100 / max
	for _, s := range ladder {
		if pct >= s.min-gradeEpsilon {
			return s.letter
		}
	}
	return "F"
}

func clamp(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func count(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", v), "0"), ".")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
