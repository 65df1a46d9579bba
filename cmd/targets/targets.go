// Package targets implements the target management commands.
package targets

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ishaqmohammed8765-png/flipscan/cmd/common"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// Command creates the targets command group.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage saved search targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(listCommand(cfgFile, debug))
	cmd.AddCommand(addCommand(cfgFile, debug))
	cmd.AddCommand(enableCommand(cfgFile, debug, true))
	cmd.AddCommand(enableCommand(cfgFile, debug, false))
	return cmd
}

func listCommand(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := common.Build(ctx, *cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			targets, err := deps.Store.Targets.ListAll(ctx)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Query", "Condition", "Type", "Max Buy", "Enabled"})
			for i := range targets {
				target := &targets[i]
				t.AppendRow(table.Row{
					target.Name,
					target.EffectiveQuery(),
					strValue(target.Condition),
					target.ListingType,
					moneyValue(target.MaxBuyGBP),
					target.Enabled,
				})
			}
			t.Render()
			return nil
		},
	}
}

func addCommand(cfgFile *string, debug *bool) *cobra.Command {
	var (
		query       string
		categoryID  string
		condition   string
		listingType string
		maxBuy      float64
		maxShipping float64
		disabled    bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := common.Build(ctx, *cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			target := &domain.Target{
				Name:        strings.TrimSpace(args[0]),
				Query:       strings.TrimSpace(query),
				ListingType: listingType,
				Enabled:     !disabled,
			}
			if categoryID != "" {
				target.CategoryID = &categoryID
			}
			if condition != "" {
				target.Condition = &condition
			}
			if cmd.Flags().Changed("max-buy") {
				target.MaxBuyGBP = &maxBuy
			}
			if cmd.Flags().Changed("max-shipping") {
				target.MaxShippingGBP = &maxShipping
			}

			saved, err := deps.Store.Targets.Upsert(ctx, target)
			if err != nil {
				return err
			}
			fmt.Printf("saved target %q (id %d)\n", saved.Name, saved.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "search text (defaults to the target name)")
	cmd.Flags().StringVar(&categoryID, "category", "", "marketplace category id")
	cmd.Flags().StringVar(&condition, "condition", "", "required condition (new, used, refurbished)")
	cmd.Flags().StringVar(&listingType, "type", domain.ListingTypeAny, "listing type (any, auction, buy_it_now)")
	cmd.Flags().Float64Var(&maxBuy, "max-buy", 0, "maximum total buy price in GBP")
	cmd.Flags().Float64Var(&maxShipping, "max-shipping", 0, "maximum inbound shipping in GBP")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the target disabled")
	return cmd
}

func enableCommand(cfgFile *string, debug *bool, enable bool) *cobra.Command {
	use, short := "enable <name>", "Enable a target"
	if !enable {
		use, short = "disable <name>", "Disable a target"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := common.Build(ctx, *cfgFile, *debug)
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := deps.Store.Targets.SetEnabled(ctx, args[0], enable); err != nil {
				return err
			}
			state := "enabled"
			if !enable {
				state = "disabled"
			}
			fmt.Printf("target %q %s\n", args[0], state)
			return nil
		},
	}
}

func strValue(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func moneyValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("£%.2f", *v)
}
