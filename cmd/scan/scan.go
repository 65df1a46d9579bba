// Package scan implements the one-shot scan cycle command.
package scan

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ishaqmohammed8765-png/flipscan/cmd/common"
	scanpkg "github.com/ishaqmohammed8765-png/flipscan/internal/scan"
)

// Command creates the scan command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle over all enabled targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			deps, err := common.Build(ctx, *cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.SeedTargets(ctx); err != nil {
				return err
			}

			summary, err := deps.Orchestrator.Run(ctx)
			if err != nil {
				return err
			}

			printSummary(summary)
			return nil
		},
	}
}

func printSummary(summary *scanpkg.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Scan cycle " + summary.CycleID)
	t.AppendRows([]table.Row{
		{"Duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String()},
		{"Targets scanned", summary.TargetsScanned},
		{"Targets skipped", summary.TargetsSkipped},
		{"Targets failed", summary.TargetsFailed},
		{"Raw listings", summary.RawListings},
		{"Kept listings", summary.KeptListings},
		{"New listings", summary.NewListings},
		{"Evaluations", summary.Evaluations},
		{"Deals", summary.Deals},
		{"Maybes", summary.Maybes},
		{"Alerts sent", summary.AlertsSent},
		{"Requests used", summary.RequestsUsed},
		{"Budget exhausted", summary.BudgetExhausted},
	})
	t.Render()

	if len(summary.Opportunities) > 0 {
		opps := table.NewWriter()
		opps.SetOutputMirror(os.Stdout)
		opps.SetStyle(table.StyleLight)
		opps.SetTitle("Opportunities")
		opps.AppendHeader(table.Row{"Target", "Title", "Buy", "Resale", "Profit", "Decision"})
		for _, opp := range summary.Opportunities {
			opps.AppendRow(table.Row{
				opp.TargetName,
				opp.Title,
				fmt.Sprintf("£%.2f", opp.TotalBuyGBP),
				fmt.Sprintf("£%.2f", opp.ResaleEstGBP),
				fmt.Sprintf("£%.2f", opp.ExpectedProfitGBP),
				opp.Decision,
			})
		}
		opps.Render()
	}

	for _, diag := range summary.Diagnostics {
		if diag.Status == "failed" {
			fmt.Printf("target %q failed: %s\n", diag.TargetName, diag.Error)
		}
		if len(diag.RetrySteps) > 1 {
			fmt.Printf("target %q retries: %s\n", diag.TargetName, strings.Join(diag.RetrySteps, " -> "))
		}
	}
}
