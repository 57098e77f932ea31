package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"irfuncs/internal/irfile"
	"irfuncs/internal/lift"
)

var liftCmd = &cobra.Command{
	Use:   "lift <elf> <out>",
	Short: "Build an IR document from the function symbols of an arm64 or amd64 ELF file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		syms, _ := cmd.Flags().GetStringSlice("symbol")
		x, st, err := lift.ELF(args[0], lift.Options{Logger: logger, Symbols: syms})
		if err != nil {
			return err
		}
		if err := irfile.Save(args[1], x); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d functions, %d blocks, %d edges (%d skipped)\n",
			args[1], st.Functions, st.Blocks, st.Edges, st.Skipped)
		return nil
	},
}

func init() {
	liftCmd.Flags().StringSlice("symbol", nil, "lift only functions with these names")
}
