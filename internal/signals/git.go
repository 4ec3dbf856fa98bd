package signals

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/signalnine/gradecheck/internal/gitops"
	"github.com/signalnine/gradecheck/internal/rubric"
	"github.com/signalnine/gradecheck/internal/timeout"
)

// messageWindow is how many recent commit subjects the message checks read.
const messageWindow = 50

const DefaultGitTimeout = 30 * time.Second

var (
	semanticPattern    = regexp.MustCompile(`(?i)^(feat|fix|docs|style|refactor|test|chore|build|ci|perf)(\(.*?\))?:`)
	genericPattern     = regexp.MustCompile(`(?i)^(update|changes?|fix|test|wip|temp)$`)
	descriptivePattern = regexp.MustCompile(`(?i)add|create|implement|update|fix|remove|delete|refactor|improve|enhance`)
)

type GitMetrics struct {
	TotalCommits     int     `json:"total_commits"`
	Branches         int     `json:"branch_count"`
	CommitFrequency  float64 `json:"commit_frequency"`
	Meaningful       int     `json:"meaningful_messages"`
	Vague            int     `json:"vague_messages"`
	SemanticRatio    float64 `json:"semantic_ratio"`
	GenericRatio     float64 `json:"generic_ratio"`
	DescriptiveRatio float64 `json:"descriptive_ratio"`
}

// AnalyzeGit inspects the repository at dir and scores its history out of
// maxPoints, giving up after limit (DefaultGitTimeout when zero). A
// directory that is not a repository is an error so callers can fall back
// to the criterion's normal scoring.
func AnalyzeGit(ctx context.Context, dir string, maxPoints float64, limit time.Duration) (*Signal, error) {
	if !gitops.IsRepo(dir) {
		return nil, fmt.Errorf("%s is not a git repository", dir)
	}
	if limit <= 0 {
		limit = DefaultGitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	total, err := gitops.CommitCount(ctx, dir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeout.Check(ctx, "git analysis", limit, err)
		}
		// An empty repository has no HEAD.
		total = 0
	}
	var commits []gitops.Commit
	if total > 0 {
		if commits, err = gitops.Log(ctx, dir, messageWindow); err != nil {
			return nil, timeout.Check(ctx, "git analysis", limit, err)
		}
	}
	branches, err := gitops.BranchCount(ctx, dir)
	if err != nil && ctx.Err() != nil {
		return nil, timeout.Check(ctx, "git analysis", limit, err)
	}

	m := &GitMetrics{TotalCommits: total, Branches: branches}
	var semantic, generic, descriptive int
	days := map[string]bool{}
	for _, c := range commits {
		msg := strings.TrimSpace(c.Subject)
		if len(msg) >= 10 {
			m.Meaningful++
		}
		if semanticPattern.MatchString(msg) {
			semantic++
		}
		if genericPattern.MatchString(msg) {
			generic++
		}
		if descriptivePattern.MatchString(msg) {
			descriptive++
		}
		if !c.Time.IsZero() {
			days[c.Time.Format("2006-01-02")] = true
		}
	}
	n := len(commits)
	m.Vague = n - m.Meaningful
	meaningfulRatio := ratio(m.Meaningful, n)
	m.SemanticRatio = ratio(semantic, n)
	m.GenericRatio = ratio(generic, n)
	m.DescriptiveRatio = ratio(descriptive, n)
	if len(days) > 0 {
		m.CommitFrequency = rubric.RoundPoints(float64(n) / float64(len(days)))
	}

	checks := []Check{
		{Name: "has commits", Passed: total > 0, Detail: fmt.Sprintf("%d commits", total)},
		{Name: "at least 10 commits", Passed: total >= 10, Detail: fmt.Sprintf("%d commits", total)},
		{Name: "meaningful messages", Passed: n > 0 && meaningfulRatio > 0.7, Detail: percent(meaningfulRatio)},
		{Name: "semantic prefixes", Passed: n > 0 && m.SemanticRatio > 0.1, Detail: percent(m.SemanticRatio)},
		{Name: "few generic messages", Passed: n > 0 && m.GenericRatio < 0.3, Detail: percent(m.GenericRatio)},
		{Name: "descriptive messages", Passed: n > 0 && m.DescriptiveRatio > 0.5, Detail: percent(m.DescriptiveRatio)},
		{Name: "has branches", Passed: branches > 0, Detail: fmt.Sprintf("%d branches", branches)},
	}
	s := fromChecks(SourceGit, "Git history", checks, maxPoints)
	s.Git = m
	return s, nil
}

type gitAnalysisFile struct {
	ScoreRecommendation *float64 `json:"score_recommendation"`
	Justification       string   `json:"justification"`
	TotalCommits        int      `json:"total_commits"`
	CommitFrequency     float64  `json:"commit_frequency"`
	Quality             struct {
		Meaningful int `json:"meaningful"`
		Vague      int `json:"vague"`
	} `json:"commit_message_quality"`
}

// LoadGitAnalysis reads a precomputed git-analysis.json. Its recommended
// score is clamped to [0, maxPoints].
func LoadGitAnalysis(path string, maxPoints float64) (*Signal, error) {
	var f gitAnalysisFile
	if err := readJSON(path, &f); err != nil {
		return nil, err
	}
	if f.ScoreRecommendation == nil {
		return nil, fmt.Errorf("%s: missing score_recommendation", path)
	}
	score := clamp(*f.ScoreRecommendation, 0, maxPoints)
	justification := f.Justification
	if justification == "" {
		justification = fmt.Sprintf("Git history analysis recommends %s/%s", fmtPoints(score), fmtPoints(maxPoints))
	}
	return &Signal{
		Source:        SourceGit,
		Score:         score,
		MaxPoints:     maxPoints,
		Level:         levelFor(score, maxPoints),
		Justification: justification,
		Git: &GitMetrics{
			TotalCommits:    f.TotalCommits,
			CommitFrequency: f.CommitFrequency,
			Meaningful:      f.Quality.Meaningful,
			Vague:           f.Quality.Vague,
		},
	}, nil
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func percent(r float64) string {
	return fmt.Sprintf("%.0f%%", r*100)
}

func fmtPoints(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
