package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/history"
)

var cfgFile string

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradecheck",
		Short: "Grade student web projects against a rubric",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	root.AddCommand(newGradeCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newServeCmd())
	return root
}

// openHistory opens the configured history store. A store that cannot be
// opened is logged and grading continues without it.
func openHistory(ctx context.Context, cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(ctx, history.Driver(cfg.History.Driver), cfg.HistoryDSN())
	if err != nil {
		log.Printf("warning: run history disabled: %v", err)
		return nil
	}
	return store
}
