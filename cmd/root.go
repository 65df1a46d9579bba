// Package cmd implements the flipscan command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cmdscan "github.com/ishaqmohammed8765-png/flipscan/cmd/scan"
	cmdschedule "github.com/ishaqmohammed8765-png/flipscan/cmd/schedule"
	cmdserve "github.com/ishaqmohammed8765-png/flipscan/cmd/serve"
	cmdtargets "github.com/ishaqmohammed8765-png/flipscan/cmd/targets"
)

const version = "0.3.0"

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "flipscan",
		Short: "A marketplace arbitrage scanner",
		Long: `Crawls marketplaces for underpriced listings, prices them against
sold comparables and alerts on profitable flips.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so viper sees its variables.
	_ = godotenv.Load()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yaml or ~/.flipscan/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flipscan version %s\n", version)
		},
	})

	rootCmd.AddCommand(cmdscan.Command(&cfgFile, &debug))
	rootCmd.AddCommand(cmdserve.Command(&cfgFile, &debug))
	rootCmd.AddCommand(cmdschedule.Command(&cfgFile, &debug))
	rootCmd.AddCommand(cmdtargets.Command(&cfgFile, &debug))
}
