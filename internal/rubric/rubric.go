// Package rubric loads and validates scoring rubrics. A loaded Rubric is
// read-only for the rest of a run.
package rubric

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Method string

const (
	MethodUnitTest Method = "unit_test"
	MethodSemantic Method = "gpt_semantic"
	MethodHybrid   Method = "hybrid"
)

// Valid reports whether m is one of the known evaluation methods.
func (m Method) Valid() bool {
	switch m {
	case MethodUnitTest, MethodSemantic, MethodHybrid:
		return true
	}
	return false
}

// UsesSemantic reports whether criteria with this method need a semantic verdict.
func (m Method) UsesSemantic() bool {
	return m == MethodSemantic || m == MethodHybrid
}

// UsesTests reports whether criteria with this method draw on unit test results.
func (m Method) UsesTests() bool {
	return m == MethodUnitTest || m == MethodHybrid
}

// Label is the human-readable method name used in reports.
func (m Method) Label() string {
	switch m {
	case MethodUnitTest:
		return "Unit Testing"
	case MethodSemantic:
		return "Semantic Analysis"
	case MethodHybrid:
		return "Hybrid (Unit Tests + Semantic Analysis)"
	}
	return string(m)
}

// weightTolerance absorbs float noise in weight pairs such as 0.3/0.7.
const weightTolerance = 1e-9

// pointsTolerance bounds the gap between total_points and the summed
// max_points, so hand-written decimals like 2.5 + 0.1 still load.
const pointsTolerance = 1e-6

type Criterion struct {
	ID             string            `json:"id" yaml:"id"`
	Title          string            `json:"title" yaml:"title"`
	MaxPoints      float64           `json:"max_points" yaml:"max_points"`
	Method         Method            `json:"evaluation_method" yaml:"evaluation_method"`
	Levels         map[string]string `json:"levels" yaml:"levels"`
	Instructions   string            `json:"gpt_instructions" yaml:"gpt_instructions"`
	UnitTestWeight *float64          `json:"unit_test_weight,omitempty" yaml:"unit_test_weight,omitempty"`
	SemanticWeight *float64          `json:"gpt_weight,omitempty" yaml:"gpt_weight,omitempty"`
}

// Weights returns the hybrid weight split. Non-hybrid criteria return zeros.
func (c Criterion) Weights() (unit, semantic float64) {
	if c.UnitTestWeight != nil {
		unit = *c.UnitTestWeight
	}
	if c.SemanticWeight != nil {
		semantic = *c.SemanticWeight
	}
	return unit, semantic
}

type Metadata struct {
	Name        string  `json:"name,omitempty" yaml:"name,omitempty"`
	Version     string  `json:"version,omitempty" yaml:"version,omitempty"`
	TotalPoints float64 `json:"total_points" yaml:"total_points"`
}

type document struct {
	Metadata Metadata    `json:"metadata" yaml:"metadata"`
	Criteria []Criterion `json:"criteria" yaml:"criteria"`
}

type Rubric struct {
	source   string
	metadata Metadata
	criteria []Criterion
	index    map[string]int
}

// Load reads a rubric from a .json, .yaml or .yml file. Any problem with the
// file, including its absence, is reported as a *ConfigError.
func Load(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Msg: "reading rubric", Err: err}
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Parse(path, data, format)
}

// Parse decodes and validates rubric data. format is "json" or "yaml".
func Parse(source string, data []byte, format string) (*Rubric, error) {
	var doc document
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &ConfigError{Source: source, Msg: "parsing rubric", Err: err}
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &ConfigError{Source: source, Msg: "parsing rubric", Err: err}
		}
	}
	r := &Rubric{source: source, metadata: doc.Metadata, criteria: doc.Criteria}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rubric) validate() error {
	fail := func(field, format string, args ...any) error {
		return &ConfigError{Source: r.source, Field: field, Msg: fmt.Sprintf(format, args...)}
	}
	if r.metadata.TotalPoints <= 0 {
		return fail("metadata.total_points", "must be positive, got %v", r.metadata.TotalPoints)
	}
	if len(r.criteria) == 0 {
		return fail("criteria", "no criteria defined")
	}
	r.index = make(map[string]int, len(r.criteria))
	sum := 0.0
	for i, c := range r.criteria {
		field := fmt.Sprintf("criteria[%d]", i)
		if c.ID == "" {
			return fail(field+".id", "id is required")
		}
		if _, dup := r.index[c.ID]; dup {
			return fail(field+".id", "duplicate criterion id %q", c.ID)
		}
		r.index[c.ID] = i
		if c.Title == "" {
			return fail(field+".title", "criterion %q: title is required", c.ID)
		}
		if c.MaxPoints <= 0 || math.IsNaN(c.MaxPoints) {
			return fail(field+".max_points", "criterion %q: max_points must be positive, got %v", c.ID, c.MaxPoints)
		}
		sum += c.MaxPoints
		if !c.Method.Valid() {
			return fail(field+".evaluation_method", "criterion %q: unknown evaluation method %q", c.ID, c.Method)
		}
		hasWeights := c.UnitTestWeight != nil || c.SemanticWeight != nil
		if c.Method != MethodHybrid {
			if hasWeights {
				return fail(field, "criterion %q: weights are only allowed on hybrid criteria", c.ID)
			}
			continue
		}
		if c.UnitTestWeight == nil || c.SemanticWeight == nil {
			return fail(field, "criterion %q: hybrid criteria need unit_test_weight and gpt_weight", c.ID)
		}
		uw, sw := c.Weights()
		if uw < 0 || sw < 0 {
			return fail(field, "criterion %q: weights must not be negative", c.ID)
		}
		if math.Abs(uw+sw-1.0) > weightTolerance {
			return fail(field, "criterion %q: weights sum to %v, want 1.0", c.ID, uw+sw)
		}
	}
	if math.Abs(sum-r.metadata.TotalPoints) > pointsTolerance {
		return fail("metadata.total_points", "declares %v but criteria max_points sum to %v", r.metadata.TotalPoints, sum)
	}
	return nil
}

func (r *Rubric) Source() string     { return r.source }
func (r *Rubric) Metadata() Metadata { return r.metadata }

// MaxScore is the rubric's declared point total.
func (r *Rubric) MaxScore() float64 { return r.metadata.TotalPoints }

// Criteria returns the criteria in rubric order. The slice is a copy.
func (r *Rubric) Criteria() []Criterion {
	out := make([]Criterion, len(r.criteria))
	copy(out, r.criteria)
	return out
}

func (r *Rubric) Criterion(id string) (Criterion, bool) {
	i, ok := r.index[id]
	if !ok {
		return Criterion{}, false
	}
	return r.criteria[i], true
}

// Require fails with a *ConfigError naming the first id the rubric does not define.
func (r *Rubric) Require(context string, ids ...string) error {
	for _, id := range ids {
		if _, ok := r.index[id]; !ok {
			return &ConfigError{Source: context, Msg: fmt.Sprintf("references unknown criterion %q", id)}
		}
	}
	return nil
}

// RoundPoints rounds a point value to two decimals.
func RoundPoints(v float64) float64 {
	return math.Round(v*100) / 100
}

// NotEvaluated is the level recorded for criteria with no usable data.
const NotEvaluated = "Not Evaluated"

// LevelForPercent names the performance level for a score expressed as a
// percentage of the criterion's max points.
func LevelForPercent(pct float64) string {
	switch {
	case pct >= 90:
		return "Excellent"
	case pct >= 75:
		return "Good"
	case pct >= 50:
		return "Fair"
	default:
		return "Poor"
	}
}
