package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/occurrences/internal/repro"
)

var (
	configPath string
	logLevel   string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "occ",
	Short: "Seed occurrences and read them back eagerly and lazily",
	Long: `With no subcommand, occ seeds ten occurrences into an empty table, prints
every occurrence with its prices from a materialized query, then prints them
again through a lazy stream. Each step uses its own database session.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r := &repro.Runner{
			Sessions:  a.db,
			Publisher: a.publisher,
			Out:       cmd.OutOrStdout(),
			Styles:    a.styles,
			Logger:    a.logger,
		}
		return r.Run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (overrides OCC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides OCC_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "steps", Title: "Scenario steps:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Scenario steps
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(listCmd)

	// System
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
