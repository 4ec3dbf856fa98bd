package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/signalnine/gradecheck/internal/config"
	"github.com/signalnine/gradecheck/internal/history"
	"github.com/signalnine/gradecheck/internal/metrics"
	"github.com/signalnine/gradecheck/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Serve.Addr
			}
			store, err := history.Open(cmd.Context(), history.Driver(cfg.History.Driver), cfg.HistoryDSN())
			if err != nil {
				return fmt.Errorf("opening run history: %w", err)
			}
			defer store.Close()

			log.Printf("gradecheck serving run history on http://%s", addr)
			return http.ListenAndServe(addr, server.New(store, metrics.New()))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
