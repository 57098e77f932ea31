package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"irfuncs/internal/callgraph"
	"irfuncs/internal/disasm"
	"irfuncs/internal/functions"
	"irfuncs/internal/ir"
)

var showCmd = &cobra.Command{
	Use:   "show <ir-file> <function>",
	Short: "Show one function's blocks with disassembly",
	Long:  `The function is named by id, by display name, or by any one of its symbol names.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		module, _ := cmd.Flags().GetString("module")
		noAsm, _ := cmd.Flags().GetBool("no-asm")
		asDOT, _ := cmd.Flags().GetBool("dot")
		results, err := loadAndDerive(cmd.Context(), args[0], module, cfg.Derive.Jobs)
		if err != nil {
			return err
		}
		r, f, err := findFunction(results, args[1])
		if err != nil {
			return err
		}
		if asDOT {
			fmt.Fprint(cmd.OutOrStdout(), functionCFGDOT(r, f))
			return nil
		}
		isa := disasm.ISA(0)
		if !noAsm {
			isa = moduleISA(r.View)
		}
		printFunction(cmd.OutOrStdout(), r.View, f, isa)
		return nil
	},
}

func init() {
	showCmd.Flags().String("module", "", "only this module")
	showCmd.Flags().Bool("no-asm", false, "omit disassembly")
	showCmd.Flags().Bool("dot", false, "print the function's block CFG as DOT instead")
}

// functionCFGDOT renders one function's block CFG with lattice.
func functionCFGDOT(r moduleResult, f functions.ReadOnly) string {
	fc := callgraph.BuildFuncCFG(r.View, r.Funcs, f)
	return lrender.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{fc}}, "irfuncs "+fc.Name)
}

// moduleISA returns the decoder for a module, or 0 when its ISA has none.
func moduleISA(v ir.ModuleView) disasm.ISA {
	isa, err := disasm.ParseISA(v.ISA())
	if err != nil {
		logger.Debug("no disassembly", "module", v.Name(), "err", err)
		return 0
	}
	return isa
}

// symbolLookup names block addresses by their first symbol.
func symbolLookup(v ir.ModuleView) disasm.SymbolLookup {
	names := make(map[uint64]string)
	for _, b := range v.CodeBlocks() {
		if syms := v.FindSymbols(b); len(syms) > 0 {
			if _, taken := names[b.Address()]; !taken {
				names[b.Address()] = syms[0].Name()
			}
		}
	}
	return disasm.MapLookup(names)
}

func printFunction(w io.Writer, v ir.ModuleView, f functions.ReadOnly, isa disasm.ISA) {
	headerColor.Fprintf(w, "%s\n", f.DisplayName())
	fmt.Fprintf(w, "  id:     %s\n", f.ID())
	fmt.Fprintf(w, "  module: %s\n", v.Name())
	if s, ok := f.CanonicalName(); ok {
		fmt.Fprintf(w, "  canonical: %s\n", s.Name())
	}
	if names := f.Names(); len(names) > 0 {
		fmt.Fprintf(w, "  names:  %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "  blocks: %d  entries: %d  exits: %d\n",
		len(f.AllBlocks()), len(f.EntryBlocks()), len(f.ExitBlocks()))

	// Entries outside the block set are listed first.
	blocks := f.AllBlocks()
	for _, e := range f.EntryBlocks() {
		if !f.HasBlock(e) {
			blocks = append([]ir.BlockView{e}, blocks...)
		}
	}

	lookup := symbolLookup(v)
	for _, b := range blocks {
		marker := "  "
		switch {
		case f.IsEntry(b) && f.IsExit(b):
			marker = "EX"
		case f.IsEntry(b):
			marker = "E "
		case f.IsExit(b):
			marker = " X"
		}
		fmt.Fprintln(w)
		nameColor.Fprintf(w, "%s 0x%x", marker, b.Address())
		fmt.Fprintf(w, " size=%d", b.Size())
		if !f.HasBlock(b) {
			noExitColor.Fprint(w, " (entry outside block set)")
		}
		fmt.Fprintln(w)

		if isa == 0 {
			continue
		}
		data := b.Bytes()
		if len(data) == 0 {
			continue
		}
		insts, err := disasm.Disassemble(data, disasm.Options{ISA: isa, BaseAddr: b.Address(), Symbols: lookup})
		if err != nil {
			logger.Warn("disassembly failed", "block", b.ID(), "err", err)
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(disasm.Format(insts, lookup), "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}
