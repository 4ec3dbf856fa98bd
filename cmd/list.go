package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/history"
	"github.com/signalnine/gradecheck/internal/result"
	"github.com/signalnine/gradecheck/internal/rubric"
)

func newListCmd() *cobra.Command {
	var (
		rubricPath string
		runs       bool
		target     string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rubric criteria and suite mappings, or graded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if runs {
				if !cfg.History.Enabled {
					return fmt.Errorf("run history is disabled in %s", cfgFile)
				}
				store, err := history.Open(cmd.Context(), history.Driver(cfg.History.Driver), cfg.HistoryDSN())
				if err != nil {
					return err
				}
				defer store.Close()
				entries, err := store.List(cmd.Context(), target, limit)
				if err != nil {
					return err
				}
				return writeRuns(os.Stdout, entries)
			}
			if rubricPath != "" {
				cfg.Rubric = rubricPath
			}
			r, err := rubric.Load(cfg.Rubric)
			if err != nil {
				return err
			}
			return writeCriteria(os.Stdout, r, cfg)
		},
	}
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "rubric file (json or yaml)")
	cmd.Flags().BoolVar(&runs, "runs", false, "list graded runs from history")
	cmd.Flags().StringVar(&target, "target", "", "with --runs, only runs of this target path")
	cmd.Flags().IntVar(&limit, "limit", 20, "with --runs, max runs to list (0 for all)")
	return cmd
}

func writeCriteria(out io.Writer, r *rubric.Rubric, cfg *config.Config) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTITLE\tPOINTS\tMETHOD\tSIGNAL\n")
	for _, c := range r.Criteria() {
		sig := cfg.Overrides[c.ID]
		if sig == "" {
			sig = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%s\n", c.ID, c.Title, c.MaxPoints, c.Method, sig)
	}
	fmt.Fprintf(w, "\nSUITE\tFILE\tCRITERIA\n")
	for _, s := range cfg.Suites.Specs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.File, strings.Join(s.Criteria, ", "))
	}
	return w.Flush()
}

func writeRuns(out io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No graded runs recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STARTED\tTARGET\tSCORE\tGRADE\tEXIT\tRUN DIR\n")
	for _, e := range entries {
		score := "-"
		if e.ExitReason != result.ExitFailed {
			score = fmt.Sprintf("%.2f/%g", e.TotalScore, e.MaxScore)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Format("2006-01-02 15:04"), e.Target, score, orDash(e.LetterGrade), e.ExitReason, e.RunDir)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
