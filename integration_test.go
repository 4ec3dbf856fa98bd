//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/evidence"
	"github.com/signalnine/gradecheck/internal/gitops"
	"github.com/signalnine/gradecheck/internal/pipeline"
	"github.com/signalnine/gradecheck/internal/result"
	"github.com/signalnine/gradecheck/internal/signals"
	"github.com/signalnine/gradecheck/internal/suites"
)

// createFixtureRepo creates a minimal student project under git.
func createFixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		c := exec.Command(args[0], args[1:]...)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			t.Fatalf("%v: %v: %s", args, err, out)
		}
	}
	run("git", "init", "-b", "main")
	run("git", "config", "user.email", "test@test.com")
	run("git", "config", "user.name", "Test")

	os.MkdirAll(filepath.Join(dir, "src", "components"), 0o755)
	os.WriteFile(filepath.Join(dir, "src", "components", "Header.jsx"), []byte("export default function Header() {\n  return (<header className=\"md:flex\" />);\n}\n"), 0o644)
	run("git", "add", ".")
	run("git", "commit", "-m", "feat: add responsive header component")

	os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Bistro\n\nRestaurant site.\n"), 0o644)
	run("git", "add", ".")
	run("git", "commit", "-m", "docs: describe the project in the readme")
	run("git", "tag", "v1")
	return dir
}

const integrationRubric = `{
  "metadata": {"total_points": 6},
  "criteria": [
    {"id": "c1", "title": "Components", "max_points": 4, "evaluation_method": "unit_test"},
    {"id": "c2", "title": "Git History", "max_points": 2, "evaluation_method": "unit_test"}
  ]
}`

func TestGradeClonedRepoIntegration(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fixture := createFixtureRepo(t)
	target := filepath.Join(t.TempDir(), "bistro")
	if err := gitops.CloneAndCheckout(ctx, fixture, "v1", target); err != nil {
		t.Fatalf("CloneAndCheckout: %v", err)
	}

	work := t.TempDir()
	rubricPath := filepath.Join(work, "rubric.json")
	os.WriteFile(rubricPath, []byte(integrationRubric), 0o644)
	suiteDir := filepath.Join(work, "tests")
	os.MkdirAll(suiteDir, 0o755)
	os.WriteFile(filepath.Join(suiteDir, "components.sh"),
		[]byte(`echo '{"success": false, "numTotalTests": 4, "numPassedTests": 3, "numFailedTests": 1, "testResults": []}'`+"\n"), 0o644)

	cfg := config.Default()
	cfg.Rubric = rubricPath
	cfg.Results.Dir = filepath.Join(work, "results")
	cfg.Suites.Dir = suiteDir
	cfg.Suites.Command = "sh {file}"
	cfg.Suites.Specs = []suites.Spec{{Name: "Components", File: "components.sh", Criteria: []string{"c1"}}}
	cfg.Evidence = map[string]evidence.Spec{}
	cfg.Overrides = map[string]string{"c2": signals.SourceGit}
	cfg.History.Enabled = false

	var out bytes.Buffer
	res, err := pipeline.Run(ctx, pipeline.Options{Config: cfg, Target: target, SkipSemantic: true, Out: &out})
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}

	rep := res.Report
	if rep.TestExecution.TotalTests != 4 || rep.TestExecution.Passed != 3 {
		t.Errorf("test execution: %+v", rep.TestExecution)
	}
	// 3/4 passed lands on the 0.75 step of the curve.
	if c := rep.Criteria[0]; c.Score != 3.5 {
		t.Errorf("c1: %+v", c)
	}
	git := rep.Criteria[1]
	if git.Source != signals.SourceGit || git.Git == nil || git.Git.TotalCommits != 2 {
		t.Errorf("git criterion: %+v", git)
	}
	for _, name := range []string{result.MetaFile, result.SignalsFile, result.ReportJSONFile, result.ReportMarkdownFile} {
		if _, err := os.Stat(filepath.Join(res.RunDir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}
