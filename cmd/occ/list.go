package main

import (
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/occurrences/internal/repro"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "Print every occurrence with its prices",
	GroupID: "steps",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lazy, _ := cmd.Flags().GetBool("lazy")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r := &repro.Runner{
			Sessions: a.db,
			Out:      cmd.OutOrStdout(),
			Styles:   a.styles,
			Logger:   a.logger,
		}
		if lazy {
			return r.PrintStream(cmd.Context())
		}
		return r.PrintAll(cmd.Context())
	},
}

func init() {
	listCmd.Flags().Bool("lazy", false, "read through a stream instead of a materialized query")
}
