package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/rubric"
)

func newValidateCmd() *cobra.Command {
	var rubricPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the rubric and every criterion the config refers to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if rubricPath != "" {
				cfg.Rubric = rubricPath
			}
			r, err := rubric.Load(cfg.Rubric)
			if err != nil {
				return err
			}
			ok := color.GreenString("✓")
			fmt.Printf("%s rubric %s: %d criteria, %g points\n", ok, cfg.Rubric, len(r.Criteria()), r.MaxScore())
			if err := cfg.Check(r); err != nil {
				return err
			}
			fmt.Printf("%s %d suites, %d overrides, %d evidence extractors\n", ok, len(cfg.Suites.Specs), len(cfg.Overrides), len(cfg.Evidence))
			return nil
		},
	}
	cmd.Flags().StringVar(&rubricPath, "rubric", "", "rubric file (json or yaml)")
	return cmd
}
