package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/occurrences/internal/repro"
)

var seedCmd = &cobra.Command{
	Use:     "seed",
	Short:   "Insert the ten test occurrences if the table is empty",
	GroupID: "steps",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r := &repro.Runner{Sessions: a.db, Publisher: a.publisher, Logger: a.logger}
		created, err := r.Seed(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d occurrences created\n", len(created))
		return nil
	},
}
