// Package serve implements the long-running server command.
package serve

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ishaqmohammed8765-png/flipscan/cmd/common"
	"github.com/ishaqmohammed8765-png/flipscan/internal/api"
	"github.com/ishaqmohammed8765-png/flipscan/internal/schedule"
)

// Command creates the serve command. It runs the interval scheduler
// and the HTTP API in one process until interrupted.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	var apiOnly bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := common.Build(ctx, *cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.SeedTargets(ctx); err != nil {
				return err
			}

			var summaries api.SummarySource
			errCh := make(chan error, 2)
			if !apiOnly {
				manager := schedule.NewManager(deps.Orchestrator, deps.Settings.ScanInterval, deps.Log)
				summaries = manager
				go func() {
					errCh <- manager.Start(ctx)
				}()
			}

			server := api.NewServer(deps.Store, summaries, deps.Settings, deps.Log)
			go func() {
				errCh <- server.Start(ctx)
			}()

			// The first component to fail, or the signal-driven
			// shutdown, ends the process.
			if err := <-errCh; err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apiOnly, "api-only", false, "serve the HTTP API without the scan scheduler")
	return cmd
}
