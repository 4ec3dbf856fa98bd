package result

import "time"

// Stage record and artifact names inside a run directory.
const (
	MetaFile           = "meta.json"
	UnitTestsFile      = "unit-test-results.json"
	EvidenceFile       = "evidence.json"
	SemanticFile       = "semantic-evaluation.json"
	SignalsFile        = "signals.json"
	ReportJSONFile     = "grading-report.json"
	ReportMarkdownFile = "GRADING_REPORT.md"
)

const (
	ExitCompleted = "completed"
	ExitFailed    = "failed"
)

// RunMeta summarizes one grading run.
type RunMeta struct {
	RunID           string    `json:"run_id"`
	Target          string    `json:"target"`
	Rubric          string    `json:"rubric"`
	Repository      string    `json:"repository,omitempty"`
	BuildFailed     bool      `json:"build_failed"`
	StartedAt       time.Time `json:"started_at"`
	DurationS       float64   `json:"duration_s"`
	ExitReason      string    `json:"exit_reason"`
	Error           string    `json:"error,omitempty"`
	TotalScore      float64   `json:"total_score"`
	MaxScore        float64   `json:"max_score"`
	Percentage      float64   `json:"percentage"`
	LetterGrade     string    `json:"letter_grade"`
	TestsPassed     int       `json:"tests_passed"`
	TestsTotal      int       `json:"tests_total"`
	SemanticCalls   int       `json:"semantic_calls"`
	SemanticCostUSD float64   `json:"semantic_cost_usd"`
}
