package suites_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/suites"
	"github.com/signalnine/gradecheck/internal/timeout"
)

type fakeExecutor struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
	block   map[string]bool
}

func (f *fakeExecutor) Execute(ctx context.Context, file string) ([]byte, error) {
	f.calls = append(f.calls, file)
	if f.block[file] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte(f.outputs[file]), f.errs[file]
}

func loadRubric(t *testing.T) *rubric.Rubric {
	t.Helper()
	r, err := rubric.Load("../../testdata/rubric.json")
	if err != nil {
		t.Fatalf("loading rubric: %v", err)
	}
	return r
}

func touch(t *testing.T, dir string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(dir, f)
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte("// suite"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCurveFractionBoundaries(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{1.0, 1.0},
		{0.90, 1.0},
		{math.Nextafter(0.90, 0), 0.875},
		{0.8999, 0.875},
		{0.75, 0.875},
		{math.Nextafter(0.75, 0), 0.75},
		{0.60, 0.75},
		{math.Nextafter(0.60, 0), 0.625},
		{0.50, 0.625},
		{math.Nextafter(0.50, 0), 0.50},
		{0.40, 0.50},
		{math.Nextafter(0.40, 0), 0.375},
		{0.25, 0.375},
		{math.Nextafter(0.25, 0), 0.25},
		{0, 0.25},
	}
	for _, tt := range tests {
		if got := suites.CurveFraction(tt.rate); got != tt.want {
			t.Errorf("CurveFraction(%v) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestCurveScore(t *testing.T) {
	tests := []struct {
		name                    string
		passed, total, max, want float64
	}{
		{"all pass", 10, 10, 4, 4},
		{"nine of ten", 9, 10, 4, 4},
		{"split counts", 9.0 / 7, 10.0 / 7, 4, 4},
		{"three quarters", 3, 4, 5, 4.38},
		{"none pass", 0, 8, 4, 1},
		{"no tests", 0, 0, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suites.CurveScore(tt.passed, tt.total, tt.max); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseReport(t *testing.T) {
	rep, err := suites.ParseReport([]byte(`{"success":false,"numTotalTests":5,"numPassedTests":3,"numFailedTests":2,"testResults":[{"message":"boom","perfStats":{"runtime":42}}]}`))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if rep.NumTotalTests != 5 || rep.NumPassedTests != 3 || rep.NumFailedTests != 2 {
		t.Errorf("counts: %+v", rep)
	}
	if _, err := suites.ParseReport([]byte(`{"numTotalTests":1}`)); err == nil {
		t.Error("expected error for document without success field")
	}
	if _, err := suites.ParseReport([]byte(`not json`)); err == nil {
		t.Error("expected error for garbage")
	}
}

func TestSalvage(t *testing.T) {
	noisy := "Determining test suites to run...\n{weird} noise\n" +
		`{"success":false,"numTotalTests":4,"numPassedTests":1,"numFailedTests":3}` +
		"\nerror Command failed with exit code 1."
	rep, ok := suites.Salvage([]byte(noisy))
	if !ok {
		t.Fatal("expected salvage to find the report")
	}
	if rep.NumPassedTests != 1 || rep.NumTotalTests != 4 {
		t.Errorf("salvaged counts: %+v", rep)
	}
	if _, ok := suites.Salvage([]byte("Segmentation fault")); ok {
		t.Error("expected no salvage from output without a report")
	}
}

func TestRunMixedOutcomes(t *testing.T) {
	r := loadRubric(t)
	dir := t.TempDir()
	touch(t, dir, "tests/a.test.js", "tests/crash.test.js", "tests/partial.test.js", "tests/split.test.js")

	exec := &fakeExecutor{
		outputs: map[string]string{
			"tests/a.test.js":       `{"success":true,"numTotalTests":10,"numPassedTests":9,"numFailedTests":1}`,
			"tests/crash.test.js":   "TypeError: cannot read properties of undefined",
			"tests/partial.test.js": `jest output {"success":false,"numTotalTests":4,"numPassedTests":1,"numFailedTests":3} trailing`,
			"tests/split.test.js":   `{"success":true,"numTotalTests":4,"numPassedTests":4,"numFailedTests":0}`,
		},
		errs: map[string]error{
			"tests/crash.test.js":   errors.New("exit status 1"),
			"tests/partial.test.js": errors.New("exit status 1"),
		},
	}
	specs := []suites.Spec{
		{Name: "A", File: "tests/a.test.js", Criteria: []string{"criterion_4"}},
		{Name: "Crash", File: "tests/crash.test.js", Criteria: []string{"criterion_5"}},
		{Name: "Missing", File: "tests/missing.test.js", Criteria: []string{"criterion_6"}},
		{Name: "Partial", File: "tests/partial.test.js", Criteria: []string{"criterion_7"}},
		{Name: "Split", File: "tests/split.test.js", Criteria: []string{"criterion_1", "criterion_2"}},
	}
	var seen []string
	agg, err := suites.NewAggregator(r, exec, specs, suites.Options{
		Dir:      dir,
		Timeout:  time.Second,
		OnResult: func(res suites.Result) { seen = append(seen, res.Name) },
	})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	out := agg.Run(context.Background(), specs)

	if len(exec.calls) != 4 {
		t.Errorf("expected 4 executions (missing file skipped), got %v", exec.calls)
	}
	if len(seen) != 5 {
		t.Errorf("OnResult called %d times, want 5", len(seen))
	}

	wantStatus := []suites.Status{suites.StatusPassed, suites.StatusError, suites.StatusSkipped, suites.StatusFailed, suites.StatusPassed}
	for i, res := range out.Suites {
		if res.Status != wantStatus[i] {
			t.Errorf("suite %s: status %q, want %q", res.Name, res.Status, wantStatus[i])
		}
	}
	if out.Suites[1].Error == "" {
		t.Error("crashed suite should record an error")
	}
	if out.TotalTests != 18 || out.Passed != 14 {
		t.Errorf("totals: %d/%d", out.Passed, out.TotalTests)
	}

	if got := out.Criteria["criterion_4"].Score; got != 5 {
		t.Errorf("criterion_4 score: got %v, want 5", got)
	}
	c5 := out.Criteria["criterion_5"]
	if c5.Evaluated() || c5.Score != 0 || len(c5.Errors) == 0 {
		t.Errorf("criterion_5 after crash: %+v", c5)
	}
	if c6 := out.Criteria["criterion_6"]; c6.Evaluated() || c6.Score != 0 {
		t.Errorf("criterion_6 after skip: %+v", c6)
	}
	if got := out.Criteria["criterion_7"].Score; got != 1.5 {
		t.Errorf("criterion_7 salvaged score: got %v, want 1.5", got)
	}
	c1 := out.Criteria["criterion_1"]
	if c1.Total != 2 || c1.Passed != 2 || c1.Score != 4 {
		t.Errorf("criterion_1 split tally: %+v", c1)
	}
}

func TestRunTimeout(t *testing.T) {
	r := loadRubric(t)
	dir := t.TempDir()
	touch(t, dir, "slow.test.js", "next.test.js")
	exec := &fakeExecutor{
		outputs: map[string]string{"next.test.js": `{"success":true,"numTotalTests":1,"numPassedTests":1,"numFailedTests":0}`},
		block:   map[string]bool{"slow.test.js": true},
	}
	specs := []suites.Spec{
		{Name: "Slow", File: "slow.test.js", Criteria: []string{"criterion_1"}},
		{Name: "Next", File: "next.test.js", Criteria: []string{"criterion_2"}},
	}
	agg, err := suites.NewAggregator(r, exec, specs, suites.Options{Dir: dir, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	out := agg.Run(context.Background(), specs)
	if out.Suites[0].Status != suites.StatusError {
		t.Errorf("slow suite: status %q, want error", out.Suites[0].Status)
	}
	if out.Suites[1].Status != suites.StatusPassed {
		t.Errorf("suite after timeout did not run: %+v", out.Suites[1])
	}
}

func TestTimeoutErrorSurfaces(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()
	err := timeout.Check(ctx, "suite x", time.Millisecond, ctx.Err())
	if !timeout.Is(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestNewAggregatorRejectsBadSpecs(t *testing.T) {
	r := loadRubric(t)
	tests := []struct {
		name string
		spec suites.Spec
	}{
		{"unknown criterion", suites.Spec{Name: "Bad", File: "x.test.js", Criteria: []string{"criterion_42"}}},
		{"duplicate criterion", suites.Spec{Name: "Twice", File: "x.test.js", Criteria: []string{"criterion_1", "criterion_2", "criterion_1"}}},
		{"no criteria", suites.Spec{Name: "Empty", File: "x.test.js"}},
		{"no file", suites.Spec{Name: "NoFile", Criteria: []string{"criterion_1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := suites.NewAggregator(r, &fakeExecutor{}, []suites.Spec{tt.spec}, suites.Options{})
			var cfgErr *rubric.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestWithoutCredit(t *testing.T) {
	out := &suites.Outcome{Criteria: map[string]suites.Tally{"criterion_1": {Total: 4, Passed: 4, Score: 4}}}
	zeroed := out.WithoutCredit()
	if zeroed.Criteria["criterion_1"].Score != 0 {
		t.Error("score not zeroed")
	}
	if out.Criteria["criterion_1"].Score != 4 {
		t.Error("original outcome mutated")
	}
	if zeroed.Criteria["criterion_1"].Passed != 4 {
		t.Error("counts should be kept")
	}
}

func TestExpandCommand(t *testing.T) {
	got := suites.ExpandCommand("npx jest {file} --json --outputFile={output}", "tests/a.test.js", "/results/r.json")
	want := []string{"npx", "jest", "tests/a.test.js", "--json", "--outputFile=/results/r.json"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExecExecutor(t *testing.T) {
	dir := t.TempDir()
	e := &suites.ExecExecutor{Command: `echo {"success":true,"numTotalTests":1,"numPassedTests":1,"numFailedTests":0}`, Dir: dir}
	out, err := e.Execute(context.Background(), "ignored.test.js")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := suites.ParseReport(out); err != nil {
		t.Errorf("ParseReport: %v (output %q)", err, out)
	}

	fail := &suites.ExecExecutor{Command: "false {file}", Dir: dir}
	if _, err := fail.Execute(context.Background(), "x"); err == nil {
		t.Error("expected error from failing command")
	}
}
