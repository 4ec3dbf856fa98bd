package signals_test

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/gradecheck/internal/signals"
	"github.com/signalnine/gradecheck/internal/timeout"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	c := exec.Command("git", args...)
	c.Dir = dir
	if out, err := c.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func createRepo(t *testing.T, messages ...string) string {
	t.Helper()
	dir := t.TempDir()
	git(t, dir, "init", "-b", "main")
	git(t, dir, "config", "user.email", "test@test.com")
	git(t, dir, "config", "user.name", "Test")
	for i, msg := range messages {
		os.WriteFile(filepath.Join(dir, "file.txt"), []byte(fmt.Sprintf("%d", i)), 0o644)
		git(t, dir, "add", ".")
		git(t, dir, "commit", "-m", msg)
	}
	return dir
}

func TestAnalyzeGitHealthyHistory(t *testing.T) {
	var msgs []string
	for i := 0; i < 12; i++ {
		msgs = append(msgs, fmt.Sprintf("feat: add menu section %d", i))
	}
	repo := createRepo(t, msgs...)
	s, err := signals.AnalyzeGit(context.Background(), repo, 3, 0)
	if err != nil {
		t.Fatalf("AnalyzeGit: %v", err)
	}
	if !approx(s.Score, 3) || s.Level != "Excellent" {
		t.Errorf("score=%v level=%s, want 3 Excellent; %s", s.Score, s.Level, s.Justification)
	}
	if s.Git.TotalCommits != 12 || s.Git.Meaningful != 12 || s.Git.Branches != 1 {
		t.Errorf("metrics: %+v", s.Git)
	}
	if s.Git.CommitFrequency <= 0 {
		t.Errorf("commit frequency: %v", s.Git.CommitFrequency)
	}
}

func TestAnalyzeGitPoorHistory(t *testing.T) {
	repo := createRepo(t, "wip", "update", "fix")
	s, err := signals.AnalyzeGit(context.Background(), repo, 3, 0)
	if err != nil {
		t.Fatalf("AnalyzeGit: %v", err)
	}
	// 3 of 7 checks pass: commits exist, descriptive verbs, a branch.
	if !approx(s.Score, 1.5) || s.Level != "Fair" {
		t.Errorf("score=%v level=%s; %s", s.Score, s.Level, s.Justification)
	}
	if s.Git.Vague != 3 || !approx(s.Git.GenericRatio, 1) {
		t.Errorf("metrics: %+v", s.Git)
	}
	if !strings.Contains(s.Justification, "3/7 checks passed") {
		t.Errorf("justification: %s", s.Justification)
	}
}

func TestAnalyzeGitNotARepo(t *testing.T) {
	if _, err := signals.AnalyzeGit(context.Background(), t.TempDir(), 3, 0); err == nil {
		t.Error("expected error outside a repository")
	}
}

func TestAnalyzeGitDeadline(t *testing.T) {
	repo := createRepo(t, "feat: add header")
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := signals.AnalyzeGit(ctx, repo, 3, time.Minute)
	if !timeout.Is(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(err.Error(), "git analysis timed out after 1m0s") {
		t.Errorf("message: %v", err)
	}
}

func TestLoadGitAnalysis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "git-analysis.json")
	os.WriteFile(path, []byte(`{"score_recommendation": 5, "justification": "Great cadence.",
		"total_commits": 40, "commit_frequency": 2.5,
		"commit_message_quality": {"meaningful": 35, "vague": 5}}`), 0o644)

	s, err := signals.LoadGitAnalysis(path, 3)
	if err != nil {
		t.Fatalf("LoadGitAnalysis: %v", err)
	}
	if s.Score != 3 || s.Justification != "Great cadence." || s.Git.Meaningful != 35 || s.Git.Vague != 5 {
		t.Errorf("signal: %+v git=%+v", s, s.Git)
	}

	os.WriteFile(path, []byte(`{"total_commits": 4}`), 0o644)
	if _, err := signals.LoadGitAnalysis(path, 3); err == nil {
		t.Error("expected error without score_recommendation")
	}
	if _, err := signals.LoadGitAnalysis(filepath.Join(dir, "missing.json"), 3); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "GradingBot") {
			t.Errorf("user agent: %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<div id=\"root\"></div>"))
	}))
	defer ok.Close()
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer missing.Close()

	tests := []struct {
		name   string
		url    string
		hosts  []string
		score  float64
		status string
	}{
		// present, format, 200, html pass; https and host fail: 4/6
		{"reachable plain http", ok.URL, nil, 1.5, signals.StatusAccessible},
		// host now known: 5/6
		{"known host", ok.URL, []string{"127.0.0.1"}, 1.75, signals.StatusAccessible},
		// present, format pass: 2/6
		{"not found", missing.URL, nil, 0.75, signals.StatusFailed},
		// present only: 1/6
		{"bad scheme", "ftp://files.example.com", nil, 0.5, signals.StatusFailed},
		{"empty", "", nil, 0, signals.StatusMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := signals.NewProber(time.Second, tt.hosts)
			s := p.Probe(context.Background(), tt.url, 2)
			if !approx(s.Score, tt.score) {
				t.Errorf("score: got %v, want %v (%s)", s.Score, tt.score, s.Justification)
			}
			if s.Deployment == nil || s.Deployment.Status != tt.status {
				t.Errorf("deployment: %+v", s.Deployment)
			}
		})
	}
}

func TestProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	s := signals.NewProber(20*time.Millisecond, nil).Probe(context.Background(), slow.URL, 2)
	var reach signals.Check
	for _, c := range s.Checks {
		if c.Name == "responds with HTTP 200" {
			reach = c
		}
	}
	if reach.Passed || !strings.Contains(reach.Detail, "timed out") {
		t.Errorf("reach check: %+v", reach)
	}
}

func TestReadDeploymentURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "DEPLOYMENT_URL.txt")
	os.WriteFile(path, []byte("  https://bistro.netlify.app \nsecond line\n"), 0o644)
	url, err := signals.ReadDeploymentURL(path)
	if err != nil || url != "https://bistro.netlify.app" {
		t.Errorf("got %q, %v", url, err)
	}
}

func TestLoadDeploymentTest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployment-test.json")
	os.WriteFile(path, []byte(`{"deployment_url": "https://bistro.vercel.app", "passed": 9, "failed": 1}`), 0o644)
	s, err := signals.LoadDeploymentTest(path, 2)
	if err != nil {
		t.Fatalf("LoadDeploymentTest: %v", err)
	}
	if s.Score != 2 || s.Deployment.Status != signals.StatusAccessible || s.Deployment.URL != "https://bistro.vercel.app" {
		t.Errorf("signal: %+v %+v", s, s.Deployment)
	}

	os.WriteFile(path, []byte(`{"passed": 0, "failed": 0}`), 0o644)
	if _, err := signals.LoadDeploymentTest(path, 2); err == nil {
		t.Error("expected error with no checks")
	}
}
