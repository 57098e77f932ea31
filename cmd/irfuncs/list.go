package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"irfuncs/internal/functions"
	"irfuncs/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list <ir-file | functions.jsonl>",
	Short: "List the functions derived from an IR document",
	Long:  `A .jsonl argument is read as the functions.jsonl written by export and listed without deriving again.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		module, _ := cmd.Flags().GetString("module")
		if strings.HasSuffix(args[0], ".jsonl") {
			recs, err := readRecords(args[0], module)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		}
		results, err := loadAndDerive(cmd.Context(), args[0], module, cfg.Derive.Jobs)
		if err != nil {
			return err
		}
		printList(cmd.OutOrStdout(), results)
		return nil
	},
}

func init() {
	listCmd.Flags().String("module", "", "only this module")
}

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	nameColor    = color.New(color.Bold)
	unknownColor = color.New(color.FgYellow)
	noExitColor  = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
)

// printList writes one line per function: id, display name and the
// entry/block/exit counts. Unnamed functions and functions without exits
// are highlighted.
func printList(w io.Writer, results []moduleResult) {
	for _, r := range results {
		printModuleHeader(w, r.View.Name(), r.View.ISA(), len(r.Funcs))
		for _, f := range r.Funcs {
			printFunctionLine(w, f.ID().String(), f.DisplayName(),
				len(f.EntryBlocks()), len(f.AllBlocks()), len(f.ExitBlocks()))
		}
	}
}

// readRecords loads an exported functions.jsonl, keeping the records of
// module ("" = all).
func readRecords(path, module string) ([]output.FunctionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := output.ReadJSONL[output.FunctionRecord](f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if module == "" {
		return recs, nil
	}
	var out []output.FunctionRecord
	for _, r := range recs {
		if r.Module == module {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no module named %q in %s", module, path)
	}
	return out, nil
}

// printRecords lists exported records in the printList format, grouped by
// module in file order.
func printRecords(w io.Writer, recs []output.FunctionRecord) {
	var order []string
	byModule := make(map[string][]output.FunctionRecord)
	for _, r := range recs {
		if _, seen := byModule[r.Module]; !seen {
			order = append(order, r.Module)
		}
		byModule[r.Module] = append(byModule[r.Module], r)
	}
	for _, name := range order {
		mod := byModule[name]
		printModuleHeader(w, name, "", len(mod))
		for _, r := range mod {
			printFunctionLine(w, r.ID, r.Name, len(r.Entries), len(r.Blocks), len(r.Exits))
		}
	}
}

func printModuleHeader(w io.Writer, name, isa string, count int) {
	headerColor.Fprintf(w, "%s", name)
	if isa != "" {
		fmt.Fprintf(w, " (%s)", isa)
	}
	fmt.Fprintf(w, ": %d functions\n", count)
}

func printFunctionLine(w io.Writer, id, name string, entries, blocks, exits int) {
	shown := nameColor.Sprint(name)
	if name == functions.UnknownName {
		shown = unknownColor.Sprint(name)
	}
	counts := fmt.Sprintf("entries=%d blocks=%d exits=%d", entries, blocks, exits)
	if exits == 0 {
		counts = noExitColor.Sprint(counts)
	}
	fmt.Fprintf(w, "  %s  %s  %s\n", dimColor.Sprint(id), shown, counts)
}
