package result_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/gradecheck/internal/result"
)

func TestWriteAndReadMeta(t *testing.T) {
	dir := t.TempDir()
	meta := &result.RunMeta{
		RunID:       "run-1",
		Target:      "/srv/student",
		Rubric:      "rubric.json",
		DurationS:   42.5,
		ExitReason:  result.ExitCompleted,
		TotalScore:  41.5,
		MaxScore:    50,
		Percentage:  83,
		LetterGrade: "B+",
	}
	if err := result.WriteMeta(dir, meta); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}
	got, err := result.ReadMeta(filepath.Join(dir, result.MetaFile))
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if got.RunID != meta.RunID || got.TotalScore != meta.TotalScore || got.LetterGrade != "B+" {
		t.Errorf("got %+v, want %+v", got, meta)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	in := map[string]int{"passed": 9, "total": 10}
	if err := result.WriteRecord(dir, result.UnitTestsFile, in); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	var out map[string]int
	if err := result.ReadRecord(dir, result.UnitTestsFile, &out); err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if out["passed"] != 9 || out["total"] != 10 {
		t.Errorf("got %v", out)
	}
	if err := result.ReadRecord(dir, "missing.json", &out); err == nil {
		t.Error("expected error for missing record")
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base, "")
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}

	named, err := result.CreateRunDir(base, "batch-alice")
	if err != nil {
		t.Fatalf("CreateRunDir named: %v", err)
	}
	if filepath.Base(named) != "batch-alice" {
		t.Errorf("named run dir: %s", named)
	}
	if target, _ := os.Readlink(latest); target != named {
		t.Errorf("latest should follow the newest run, got %q", target)
	}
}

func TestCollectMetas(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"b", "a", "c"} {
		dir, err := result.CreateRunDir(base, name)
		if err != nil {
			t.Fatal(err)
		}
		result.WriteMeta(dir, &result.RunMeta{RunID: name, StartedAt: now.Add(time.Duration(i) * time.Minute)})
	}
	junk := filepath.Join(base, "runs", "a", "junk")
	os.MkdirAll(junk, 0o755)
	os.WriteFile(filepath.Join(junk, result.MetaFile), []byte("{"), 0o644)

	metas, err := result.CollectMetas(base)
	if err != nil {
		t.Fatalf("CollectMetas: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("expected 3 runs (latest symlink not followed), got %d", len(metas))
	}
	if metas[0].RunID != "b" || metas[2].RunID != "c" {
		t.Errorf("not sorted by start time: %s %s %s", metas[0].RunID, metas[1].RunID, metas[2].RunID)
	}
}
