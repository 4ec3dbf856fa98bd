// Package signals computes auxiliary criterion scores that come from
// outside the test suites and the semantic scorer: repository history and
// deployment reachability.
package signals

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/suites"
)

const (
	SourceGit        = "git"
	SourceDeployment = "deployment"
)

// Sources lists every signal source an override may name.
var Sources = []string{SourceGit, SourceDeployment}

// Check is one pass/fail probe feeding a signal's score.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Signal is a criterion score produced by an auxiliary source. It is
// computed for a specific criterion's max points.
type Signal struct {
	Source        string      `json:"source"`
	Score         float64     `json:"score"`
	MaxPoints     float64     `json:"max_points"`
	Level         string      `json:"level_achieved"`
	Justification string      `json:"justification"`
	Checks        []Check     `json:"checks,omitempty"`
	Git           *GitMetrics `json:"git_metrics,omitempty"`
	Deployment    *Deployment `json:"deployment,omitempty"`
}

// fromChecks scores a signal by running its check pass rate through the
// unit test curve.
func fromChecks(source, label string, checks []Check, maxPoints float64) *Signal {
	passed := 0
	var failed []string
	for _, c := range checks {
		if c.Passed {
			passed++
		} else {
			failed = append(failed, c.Name)
		}
	}
	s := &Signal{
		Source:    source,
		Score:     suites.CurveScore(float64(passed), float64(len(checks)), maxPoints),
		MaxPoints: maxPoints,
		Checks:    checks,
	}
	s.Level = levelFor(s.Score, maxPoints)
	s.Justification = fmt.Sprintf("%s: %d/%d checks passed", label, passed, len(checks))
	if len(failed) > 0 {
		s.Justification += " (failed: " + strings.Join(failed, "; ") + ")"
	}
	return s
}

func levelFor(score, maxPoints float64) string {
	if maxPoints <= 0 {
		return rubric.NotEvaluated
	}
	return rubric.LevelForPercent(score / maxPoints * 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
