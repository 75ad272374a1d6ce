package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/IDKDeadXD/DiscordBotDashboard/common/version"
	"github.com/IDKDeadXD/DiscordBotDashboard/internal/botdash/app"
)

func newServeCommand(g *globalOptions) *cobra.Command {
	var (
		httpAddr string
		interval string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reconciler and the health/metrics server",
		Long: `Run botdash as a service: wait for the container engine, mark deploys
interrupted by a previous shutdown as failed, then reconcile bot statuses
with their containers on a fixed interval. When an HTTP address is set,
/health, /status and /metrics are served on it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("reconcile-interval") {
				d, err := parseInterval(interval)
				if err != nil {
					return err
				}
				cfg.ReconcileInterval = d
			}

			slog.Info("starting botdash", "version", version.Version, "commit", version.GitCommit)
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Stop()
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "health/status/metrics listen address, e.g. :8080 (BOTDASH_HTTP_ADDR)")
	cmd.Flags().StringVar(&interval, "reconcile-interval", "", "time between reconcile passes, or off (BOTDASH_RECONCILE_INTERVAL)")
	return cmd
}

// parseInterval reads a reconcile interval. "off" disables the loop.
func parseInterval(s string) (time.Duration, error) {
	if s == "off" {
		return -1, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("--reconcile-interval: want a positive duration or off, got %q", s)
	}
	return d, nil
}
