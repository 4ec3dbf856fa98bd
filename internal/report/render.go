package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/gradecheck/internal/rubric"
)

// Render writes rep as "json", "markdown" or a plain table (the default).
func Render(rep *Report, format string, w io.Writer) error {
	switch format {
	case "markdown", "md":
		return WriteMarkdown(rep, w)
	case "json":
		return WriteJSON(rep, w)
	default:
		return WriteTable(rep, w)
	}
}

func WriteJSON(rep *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func WriteTable(rep *Report, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CRITERION\tMETHOD\tSOURCE\tSCORE\tLEVEL")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, c := range rep.Criteria {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f/%s\t%s\n", c.Title, c.Method, c.Source, c.Score, points(c.MaxPoints), c.Level)
	}
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	fmt.Fprintf(tw, "TOTAL\t\t\t%.2f/%s\t%s (%.1f%%)\n", rep.TotalScore, points(rep.MaxScore), rep.LetterGrade, rep.Percentage)
	return tw.Flush()
}

// Band is where a criterion falls on the 4-point assessment scale.
type Band int

const (
	BandNeedsWork Band = iota
	BandGood
	BandExcellent
)

// AssessmentBand normalizes a score to four points: 3.5 and up is
// excellent, 3.0 and up is good.
func AssessmentBand(c CriterionScore) Band {
	if c.MaxPoints <= 0 {
		return BandNeedsWork
	}
	n := c.Score / c.MaxPoints * 4
	switch {
	case n >= 3.5-gradeEpsilon:
		return BandExcellent
	case n >= 3.0-gradeEpsilon:
		return BandGood
	}
	return BandNeedsWork
}

func WriteMarkdown(rep *Report, w io.Writer) error {
	var b strings.Builder
	var excellent, good, needsWork []CriterionScore
	for _, c := range rep.Criteria {
		switch AssessmentBand(c) {
		case BandExcellent:
			excellent = append(excellent, c)
		case BandGood:
			good = append(good, c)
		default:
			needsWork = append(needsWork, c)
		}
	}

	b.WriteString("# Grading Report\n\n")
	fmt.Fprintf(&b, "**Student Repository**: %s\n", rep.Repository)
	fmt.Fprintf(&b, "**Grading Date**: %s\n", rep.GradingDate)
	fmt.Fprintf(&b, "**Total Score**: %.2f / %s (%.1f%%)\n", rep.TotalScore, points(rep.MaxScore), rep.Percentage)
	fmt.Fprintf(&b, "**Letter Grade**: %s\n\n---\n\n", rep.LetterGrade)

	b.WriteString("## Executive Summary\n\n")
	if len(excellent) > 0 {
		strength := "good"
		if len(excellent) > 3 {
			strength = "strong"
		}
		fmt.Fprintf(&b, "Your project demonstrates %s technical implementation with particularly excellent work in %s. ",
			strength, lowerTitles(excellent, 3))
	}
	if len(needsWork) > 0 {
		fmt.Fprintf(&b, "Areas for improvement include %s.", lowerTitles(needsWork, 3))
	}
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Build Status\n\n")
	switch rep.BuildStatus {
	case BuildSuccess:
		b.WriteString("**Build Successful**\n- No build errors detected\n\n")
	case BuildFailed:
		b.WriteString("**Build Failed**\n- Some unit tests could not run due to build errors\n- Unit-testable criteria awarded 0 points\n- Semantic evaluation completed on available code\n\n")
	default:
		b.WriteString("Build status unknown\n\n")
	}
	b.WriteString("---\n\n")

	if te := rep.TestExecution; te != nil && te.TotalTests > 0 {
		b.WriteString("## Test Execution Summary\n\n")
		fmt.Fprintf(&b, "**Total Tests**: %d\n**Passed**: %d (%.1f%%)\n**Failed**: %d\n\n", te.TotalTests, te.Passed, te.SuccessRate, te.Failed)
		b.WriteString("| Suite | Status | Passed | Total |\n|-------|--------|--------|-------|\n")
		for _, s := range te.Suites {
			fmt.Fprintf(&b, "| %s | %s | %d | %d |\n", s.Name, s.Status, s.Passed, s.Total)
		}
		b.WriteString("\n---\n\n")
	}

	b.WriteString("## Detailed Breakdown\n\n")
	for i, c := range rep.Criteria {
		writeCriterion(&b, i+1, c)
	}

	b.WriteString("## Overall Assessment\n\n")
	writeAreas(&b, "**Excellent Areas** (3.5-4.0 on a 4-point scale)", excellent)
	writeAreas(&b, "**Good Areas** (3.0-3.4 on a 4-point scale)", good)
	if len(needsWork) > 0 {
		writeAreas(&b, "**Areas Needing Improvement** (below 3.0 on a 4-point scale)", needsWork)
	}
	if imps := TopImprovements(rep, 5); len(imps) > 0 {
		b.WriteString("**Top Priority Improvements**:\n")
		for i, imp := range imps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, imp)
		}
		b.WriteString("\n")
	}
	if len(excellent) > 0 {
		top := excellent[0]
		praise := top.Justification
		if praise == "" {
			praise = "Your excellent work in " + top.Title
		}
		fmt.Fprintf(&b, "**Congratulations on**: %s\n\n", praise)
	}
	b.WriteString("---\n\n")

	b.WriteString("## Grading Metadata\n\n")
	if rep.RubricName != "" {
		fmt.Fprintf(&b, "- **Rubric**: %s", rep.RubricName)
		if rep.RubricVersion != "" {
			fmt.Fprintf(&b, " (v%s)", rep.RubricVersion)
		}
		b.WriteString("\n")
	}
	if s := rep.Semantic; s != nil {
		if s.Skipped {
			fmt.Fprintf(&b, "- **Semantic Evaluation**: skipped (%s)\n", s.SkipReason)
		} else {
			fmt.Fprintf(&b, "- **Semantic Model**: %s/%s\n", s.Provider, s.Model)
			fmt.Fprintf(&b, "- **API Calls**: %d (%d tokens, est. $%.4f)\n", s.APICalls, s.TotalTokens, s.EstimatedCostUSD)
		}
	}
	fmt.Fprintf(&b, "- **Grading Timestamp**: %s\n", rep.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	if rep.Code != nil {
		fmt.Fprintf(&b, "- **Total Files Analyzed**: %d\n", rep.Code.TotalFiles)
		fmt.Fprintf(&b, "- **Total Lines of Code**: %d\n", rep.Code.TotalLines)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeCriterion(b *strings.Builder, n int, c CriterionScore) {
	fmt.Fprintf(b, "### %d. %s\n", n, c.Title)
	fmt.Fprintf(b, "**Score**: %.1f / %s (%s)\n", c.Score, points(c.MaxPoints), c.Level)
	fmt.Fprintf(b, "**Evaluation Method**: %s\n\n", c.Method.Label())

	if u := c.UnitTests; u != nil {
		b.WriteString("**Unit Test Results**:\n")
		if u.Total > 0 {
			fmt.Fprintf(b, "- Tests Passed: %s/%s\n", count(u.Passed), count(u.Total))
		}
		if h := c.Hybrid; h != nil {
			fmt.Fprintf(b, "- Unit Test Score: %s/%s (%s%% weight)\n", points(h.UnitScore), points(c.MaxPoints), points(h.UnitWeight*100))
			fmt.Fprintf(b, "- Semantic Score: %s/%s (%s%% weight)\n", points(h.SemanticScore), points(c.MaxPoints), points(h.SemanticWeight*100))
			fmt.Fprintf(b, "- Final Score: %s/%s\n", points(h.Final), points(c.MaxPoints))
		}
		b.WriteString("\n")
	}
	if c.Justification != "" {
		fmt.Fprintf(b, "**Justification**:\n%s\n\n", c.Justification)
	}
	if c.Error != "" {
		fmt.Fprintf(b, "**Error**: %s\n\n", c.Error)
	}
	writeList(b, "**Strengths**", c.Strengths, "%s")
	writeList(b, "**Weaknesses**", c.Weaknesses, "%s")
	writeList(b, "**Improvements**", c.Improvements, "%s")
	writeList(b, "**Files Analyzed**", c.FilesAnalyzed, "`%s`")
	if g := c.Git; g != nil {
		b.WriteString("**Git Metrics**:\n")
		fmt.Fprintf(b, "- Total Commits: %d\n", g.TotalCommits)
		fmt.Fprintf(b, "- Commit Frequency: %s per active day\n", points(g.CommitFrequency))
		fmt.Fprintf(b, "- Meaningful Messages: %d\n", g.Meaningful)
		fmt.Fprintf(b, "- Vague Messages: %d\n\n", g.Vague)
	}
	if c.DeploymentURL != "" || c.DeploymentStatus != "" {
		b.WriteString("**Deployment**:\n")
		fmt.Fprintf(b, "- URL: %s\n- Status: %s\n\n", orDash(c.DeploymentURL), c.DeploymentStatus)
	}
	b.WriteString("---\n\n")
}

func writeList(b *strings.Builder, title string, items []string, format string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for _, it := range items {
		fmt.Fprintf(b, "- "+format+"\n", it)
	}
	b.WriteString("\n")
}

func writeAreas(b *strings.Builder, title string, areas []CriterionScore) {
	b.WriteString(title + ":\n")
	for _, a := range areas {
		fmt.Fprintf(b, "- %s (%.1f/%s)\n", a.Title, a.Score, points(a.MaxPoints))
	}
	b.WriteString("\n")
}

// TopImprovements returns up to n distinct improvement suggestions in
// rubric order.
func TopImprovements(rep *Report, n int) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range rep.Criteria {
		for _, imp := range c.Improvements {
			if seen[imp] {
				continue
			}
			seen[imp] = true
			out = append(out, imp)
			if len(out) == n {
				return out
			}
		}
	}
	return out
}

func lowerTitles(cs []CriterionScore, n int) string {
	if len(cs) > n {
		cs = cs[:n]
	}
	titles := make([]string, len(cs))
	for i, c := range cs {
		titles[i] = strings.ToLower(c.Title)
	}
	return strings.Join(titles, ", ")
}

func points(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", rubric.RoundPoints(v)), "0"), ".")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
