package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/pipeline"
	"github.com/signalnine/gradecheck/internal/report"
	"github.com/signalnine/gradecheck/internal/result"
)

func newReportCmd() *cobra.Command {
	var (
		format     string
		recompile  bool
		rubricPath string
	)
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Render a stored report, or summarize every run under a results directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			runDir := filepath.Join(cfg.Results.Dir, "latest")
			if len(args) > 0 {
				runDir = args[0]
			}
			resolved, err := filepath.EvalSymlinks(runDir)
			if err != nil {
				return fmt.Errorf("resolving run dir: %w", err)
			}

			if recompile {
				rep, err := pipeline.Recompile(resolved, cfg, rubricPath)
				if err != nil {
					return err
				}
				return report.Render(rep, format, os.Stdout)
			}
			if !config.Exists(filepath.Join(resolved, result.ReportJSONFile)) {
				return report.Summarize(resolved, format, os.Stdout)
			}
			rep, err := report.Read(resolved)
			if err != nil {
				return err
			}
			return report.Render(rep, format, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().BoolVar(&recompile, "recompile", false, "rebuild the report from the run's stage records")
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "rubric for --recompile (default: the one the run was graded with)")
	return cmd
}
