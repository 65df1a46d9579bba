// Package schedule implements the cron-driven scan command.
package schedule

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ishaqmohammed8765-png/flipscan/cmd/common"
	schedulepkg "github.com/ishaqmohammed8765-png/flipscan/internal/schedule"
)

// Command creates the schedule command. It runs scan cycles on the
// configured interval, without the HTTP API, until interrupted.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run scan cycles on the configured interval",
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

			manager := schedulepkg.NewManager(deps.Orchestrator, deps.Settings.ScanInterval, deps.Log)
			return manager.Start(ctx)
		},
	}
}
