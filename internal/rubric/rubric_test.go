package rubric_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/gradecheck/internal/rubric"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	r, err := rubric.Load("../../testdata/rubric.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.MaxScore() != 50 {
		t.Errorf("max score: got %v, want 50", r.MaxScore())
	}
	criteria := r.Criteria()
	if len(criteria) != 11 {
		t.Fatalf("expected 11 criteria, got %d", len(criteria))
	}
	if criteria[0].ID != "criterion_1" || criteria[10].ID != "criterion_11" {
		t.Errorf("criteria out of order: first %q, last %q", criteria[0].ID, criteria[10].ID)
	}
	c, ok := r.Criterion("criterion_8")
	if !ok {
		t.Fatal("criterion_8 not found")
	}
	uw, sw := c.Weights()
	if c.Method != rubric.MethodHybrid || uw != 0.5 || sw != 0.5 {
		t.Errorf("criterion_8: method %q weights %v/%v", c.Method, uw, sw)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "rubric.yaml", `metadata:
  total_points: 7
criteria:
  - id: a
    title: Alpha
    max_points: 4
    evaluation_method: hybrid
    unit_test_weight: 0.3
    gpt_weight: 0.7
    levels:
      Excellent: great
  - id: b
    title: Beta
    max_points: 3
    evaluation_method: unit_test
`)
	r, err := rubric.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, _ := r.Criterion("a")
	if c.Levels["Excellent"] != "great" {
		t.Errorf("levels not decoded: %v", c.Levels)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := rubric.Load(filepath.Join(t.TempDir(), "nope.json"))
	var cfgErr *rubric.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
}

func TestLoadInvalidWeights(t *testing.T) {
	_, err := rubric.Load("../../testdata/rubric-invalid.json")
	var cfgErr *rubric.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no total", `{"metadata":{},"criteria":[{"id":"a","title":"A","max_points":1,"evaluation_method":"unit_test"}]}`},
		{"no criteria", `{"metadata":{"total_points":1},"criteria":[]}`},
		{"missing id", `{"metadata":{"total_points":1},"criteria":[{"title":"A","max_points":1,"evaluation_method":"unit_test"}]}`},
		{"zero points", `{"metadata":{"total_points":1},"criteria":[{"id":"a","title":"A","max_points":0,"evaluation_method":"unit_test"}]}`},
		{"negative points", `{"metadata":{"total_points":1},"criteria":[{"id":"a","title":"A","max_points":-2,"evaluation_method":"unit_test"}]}`},
		{"bad method", `{"metadata":{"total_points":1},"criteria":[{"id":"a","title":"A","max_points":1,"evaluation_method":"vibes"}]}`},
		{"duplicate id", `{"metadata":{"total_points":2},"criteria":[{"id":"a","title":"A","max_points":1,"evaluation_method":"unit_test"},{"id":"a","title":"B","max_points":1,"evaluation_method":"unit_test"}]}`},
		{"hybrid missing weight", `{"metadata":{"total_points":1},"criteria":[{"id":"a","title":"A","max_points":1,"evaluation_method":"hybrid","unit_test_weight":1}]}`},
		{"weights on semantic", `{"metadata":{"total_points":1},"criteria":[{"id":"a","title":"A","max_points":1,"evaluation_method":"gpt_semantic","gpt_weight":1}]}`},
		{"total mismatch", `{"metadata":{"total_points":5},"criteria":[{"id":"a","title":"A","max_points":1,"evaluation_method":"unit_test"},{"id":"b","title":"B","max_points":2,"evaluation_method":"unit_test"}]}`},
		{"malformed", `{"metadata":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rubric.Parse("inline", []byte(tt.doc), "json")
			var cfgErr *rubric.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestWeightsSumToOne(t *testing.T) {
	doc := `{"metadata":{"total_points":4},"criteria":[{"id":"a","title":"A","max_points":4,"evaluation_method":"hybrid","unit_test_weight":0.3,"gpt_weight":0.7}]}`
	if _, err := rubric.Parse("inline", []byte(doc), "json"); err != nil {
		t.Fatalf("0.3/0.7 split rejected: %v", err)
	}
}

func TestRequire(t *testing.T) {
	r, err := rubric.Load("../../testdata/rubric.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Require("suites", "criterion_1", "criterion_11"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err = r.Require("overrides", "criterion_99")
	var cfgErr *rubric.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError for unknown id, got %v", err)
	}
}

func TestCriteriaIsACopy(t *testing.T) {
	r, err := rubric.Load("../../testdata/rubric.json")
	if err != nil {
		t.Fatal(err)
	}
	c := r.Criteria()
	c[0].MaxPoints = 999
	again, _ := r.Criterion(c[0].ID)
	if again.MaxPoints == 999 {
		t.Error("mutating Criteria() result changed the rubric")
	}
}

func TestRoundPoints(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{3.499, 3.5},
		{3.504, 3.5},
		{1.125, 1.13},
		{0, 0},
	}
	for _, tt := range tests {
		if got := rubric.RoundPoints(tt.in); got != tt.want {
			t.Errorf("RoundPoints(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
