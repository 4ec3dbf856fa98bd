package semantic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/signalnine/gradecheck/internal/rubric"
)

// HybridBreakdown records both inputs of a hybrid blend and its result.
type HybridBreakdown struct {
	UnitScore      float64 `json:"unit_test_score"`
	UnitWeight     float64 `json:"unit_test_weight"`
	SemanticScore  float64 `json:"gpt_score"`
	SemanticWeight float64 `json:"gpt_weight"`
	Final          float64 `json:"final_score"`
}

// Verdict is the semantic evaluation of one criterion. Score is the value
// the criterion should receive: the blend for hybrid criteria, otherwise
// the model's score.
type Verdict struct {
	CriterionID   string           `json:"criterion_id"`
	Title         string           `json:"criterion_title"`
	Method        rubric.Method    `json:"evaluation_method"`
	Score         float64          `json:"score"`
	MaxPoints     float64          `json:"max_points"`
	SemanticScore float64          `json:"gpt_score"`
	Level         string           `json:"level_achieved"`
	Justification string           `json:"justification"`
	Strengths     []string         `json:"strengths"`
	Weaknesses    []string         `json:"weaknesses"`
	Improvements  []string         `json:"improvements"`
	FilesAnalyzed []string         `json:"files_analyzed"`
	Hybrid        *HybridBreakdown `json:"hybrid_calculation,omitempty"`
	Failed        bool             `json:"evaluation_failed,omitempty"`
	Error         string           `json:"error,omitempty"`
	Attempts      int              `json:"attempts"`
	InputTokens   int              `json:"input_tokens"`
	OutputTokens  int              `json:"output_tokens"`
}

// Usable reports whether the verdict carries a real score.
func (v *Verdict) Usable() bool {
	return v != nil && !v.Failed
}

type rawVerdict struct {
	Score         *float64 `json:"score"`
	Level         string   `json:"level_achieved"`
	Justification string   `json:"justification"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Improvements  []string `json:"improvements"`
	FilesAnalyzed []string `json:"files_analyzed"`
}

// ParseVerdict decodes model output into a verdict for a criterion worth
// maxPoints. Code fences and chatter around the JSON object are ignored.
// The score must lie in [min(1, maxPoints), maxPoints].
func ParseVerdict(content string, maxPoints float64) (*Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var raw rawVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parsing verdict: %w", err)
	}
	if raw.Score == nil {
		return nil, fmt.Errorf("verdict has no score")
	}
	lo := MinScore(maxPoints)
	if *raw.Score < lo || *raw.Score > maxPoints {
		return nil, fmt.Errorf("verdict score %s outside [%s, %s]", num(*raw.Score), num(lo), num(maxPoints))
	}
	if strings.TrimSpace(raw.Level) == "" {
		return nil, fmt.Errorf("verdict has no level_achieved")
	}
	if strings.TrimSpace(raw.Justification) == "" {
		return nil, fmt.Errorf("verdict has no justification")
	}
	return &Verdict{
		Score:         *raw.Score,
		MaxPoints:     maxPoints,
		SemanticScore: *raw.Score,
		Level:         raw.Level,
		Justification: raw.Justification,
		Strengths:     orEmpty(raw.Strengths),
		Weaknesses:    orEmpty(raw.Weaknesses),
		Improvements:  orEmpty(raw.Improvements),
		FilesAnalyzed: orEmpty(raw.FilesAnalyzed),
	}, nil
}

// Blend combines a unit test score and a semantic score with the
// criterion's weights, rounded to two decimals.
func Blend(unit, unitWeight, semantic, semanticWeight float64) float64 {
	return rubric.RoundPoints(unit*unitWeight + semantic*semanticWeight)
}

// NewHybrid builds the breakdown for a hybrid criterion.
func NewHybrid(c rubric.Criterion, unit, semantic float64) *HybridBreakdown {
	uw, sw := c.Weights()
	return &HybridBreakdown{
		UnitScore:      unit,
		UnitWeight:     uw,
		SemanticScore:  semantic,
		SemanticWeight: sw,
		Final:          Blend(unit, uw, semantic, sw),
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
