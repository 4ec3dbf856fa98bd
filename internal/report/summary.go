package report

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/gradecheck/internal/result"
)

// TargetSummary aggregates every graded run of one target.
type TargetSummary struct {
	Target          string  `json:"target"`
	Runs            int     `json:"runs"`
	CompletedRate   float64 `json:"completed_rate"`
	LatestScore     float64 `json:"latest_score"`
	MaxScore        float64 `json:"max_score"`
	LatestGrade     string  `json:"latest_grade"`
	MeanPercentage  float64 `json:"mean_percentage"`
	MeanSemanticUSD float64 `json:"mean_semantic_cost_usd"`
}

// Summarize reads every run under dir and writes one row per target.
func Summarize(dir, format string, w io.Writer) error {
	metas, err := result.CollectMetas(dir)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		return fmt.Errorf("no graded runs under %s", dir)
	}
	summaries := aggregate(metas)
	switch format {
	case "markdown", "md":
		return writeSummaryMarkdown(summaries, w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	default:
		return writeSummaryTable(summaries, w)
	}
}

// aggregate expects metas oldest first, so the last run seen per target is
// its latest.
func aggregate(metas []*result.RunMeta) []TargetSummary {
	type accum struct {
		count     int
		completed int
		pct       float64
		cost      float64
		latest    *result.RunMeta
	}
	byTarget := map[string]*accum{}
	for _, m := range metas {
		name := filepath.Base(m.Target)
		a, ok := byTarget[name]
		if !ok {
			a = &accum{}
			byTarget[name] = a
		}
		a.count++
		a.pct += m.Percentage
		a.cost += m.SemanticCostUSD
		if m.ExitReason == result.ExitCompleted {
			a.completed++
		}
		a.latest = m
	}

	var summaries []TargetSummary
	for name, a := range byTarget {
		summaries = append(summaries, TargetSummary{
			Target:          name,
			Runs:            a.count,
			CompletedRate:   float64(a.completed) / float64(a.count),
			LatestScore:     a.latest.TotalScore,
			MaxScore:        a.latest.MaxScore,
			LatestGrade:     a.latest.LetterGrade,
			MeanPercentage:  a.pct / float64(a.count),
			MeanSemanticUSD: a.cost / float64(a.count),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Target < summaries[j].Target
	})
	return summaries
}

func writeSummaryTable(summaries []TargetSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tRUNS\tCOMPLETED\tLATEST\tGRADE\tMEAN %\tMEAN COST")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.0f%%\t%.2f/%s\t%s\t%.1f\t$%.4f\n",
			s.Target, s.Runs, s.CompletedRate*100, s.LatestScore, points(s.MaxScore), s.LatestGrade, s.MeanPercentage, s.MeanSemanticUSD)
	}
	return tw.Flush()
}

func writeSummaryMarkdown(summaries []TargetSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Target | Runs | Completed | Latest | Grade | Mean % | Mean Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %.0f%% | %.2f/%s | %s | %.1f | $%.4f |\n",
			s.Target, s.Runs, s.CompletedRate*100, s.LatestScore, points(s.MaxScore), s.LatestGrade, s.MeanPercentage, s.MeanSemanticUSD)
	}
	return nil
}
