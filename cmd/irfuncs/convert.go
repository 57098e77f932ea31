package main

import (
	"github.com/spf13/cobra"

	"irfuncs/internal/irfile"
)

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Re-encode an IR document (json, yaml, msgpack by extension)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Loading validates identifiers and edge types before anything is
		// written.
		x, err := irfile.Load(args[0])
		if err != nil {
			return err
		}
		if err := irfile.Save(args[1], x); err != nil {
			return err
		}
		logger.Info("converted", "in", args[0], "out", args[1], "nodes", x.NodeCount())
		return nil
	},
}
