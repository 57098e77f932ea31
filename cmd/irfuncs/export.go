package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"irfuncs/internal/callgraph"
	"irfuncs/internal/disasm"
	"irfuncs/internal/output"
	"irfuncs/internal/render"
)

var exportCmd = &cobra.Command{
	Use:   "export <ir-file>",
	Short: "Write function records, summaries and DOT graphs",
	Long: `export writes to --out:

  functions.jsonl              one record per derived function
  summary.json                 per-module counts and call graph statistics
  <module>/dot/<function>.dot  per-function block CFG
  <module>/cfg.dot             all block CFGs (lattice)
  <module>/callgraph.dot       function call graph (lattice)
  <module>/callgraph_styled.dot
  <module>/asm/<function>.txt  disassembly, with --asm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := exportOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		results, err := loadAndDerive(cmd.Context(), args[0], opts.module, cfg.Derive.Jobs)
		if err != nil {
			return err
		}
		return export(args[0], results, opts)
	},
}

func init() {
	exportCmd.Flags().String("out", "", "output directory (required)")
	exportCmd.Flags().String("module", "", "only this module")
	exportCmd.Flags().String("theme", "", "DOT theme: nasa, night (default from config)")
	exportCmd.Flags().Int("max-insts", 0, "instruction lines per block in DOT (0 = config)")
	exportCmd.Flags().Int("max-nodes", 0, "max function nodes in the styled call graph (0 = all)")
	exportCmd.Flags().Bool("asm", false, "also write per-function disassembly")
	exportCmd.Flags().StringSlice("from", nil, "limit call graphs to functions reachable from these")
	_ = exportCmd.MarkFlagRequired("out")
}

type exportOptions struct {
	out      string
	module   string
	theme    render.Theme
	maxInsts int
	maxNodes int
	asm      bool
	from     []string
}

func exportOptionsFromFlags(cmd *cobra.Command) (exportOptions, error) {
	var o exportOptions
	o.out, _ = cmd.Flags().GetString("out")
	o.module, _ = cmd.Flags().GetString("module")
	o.maxNodes, _ = cmd.Flags().GetInt("max-nodes")
	o.asm, _ = cmd.Flags().GetBool("asm")
	o.from, _ = cmd.Flags().GetStringSlice("from")

	themeName, _ := cmd.Flags().GetString("theme")
	if themeName == "" {
		themeName = cfg.Render.Theme
	}
	theme, err := render.ThemeByName(themeName)
	if err != nil {
		return o, err
	}
	o.theme = theme

	o.maxInsts, _ = cmd.Flags().GetInt("max-insts")
	if o.maxInsts <= 0 {
		o.maxInsts = cfg.Render.MaxInsts
	}
	return o, nil
}

func export(input string, results []moduleResult, opts exportOptions) error {
	if err := os.MkdirAll(opts.out, 0755); err != nil {
		return fmt.Errorf("create %s: %w", opts.out, err)
	}

	var recs []output.FunctionRecord
	summary := output.Summary{Input: input}
	for _, r := range results {
		for _, f := range r.Funcs {
			recs = append(recs, output.NewFunctionRecord(r.View.Name(), f))
		}
		stats, err := exportModule(r, opts)
		if err != nil {
			return fmt.Errorf("module %s: %w", r.View.Name(), err)
		}
		summary.Modules = append(summary.Modules, output.Summarize(r.View.Name(), r.View.ISA(), r.Funcs, stats))
	}

	if err := output.WriteFunctionsJSONL(opts.out, recs); err != nil {
		return err
	}
	if err := output.WriteSummaryJSON(opts.out, summary); err != nil {
		return err
	}
	logger.Info("exported", "dir", opts.out, "functions", len(recs), "modules", len(results))
	return nil
}

// exportModule writes the DOT and asm files of one module into its own
// subdirectory and returns its call graph statistics.
func exportModule(r moduleResult, opts exportOptions) (render.CallgraphStats, error) {
	dir := filepath.Join(opts.out, output.FileName(r.View.Name()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return render.CallgraphStats{}, fmt.Errorf("create %s: %w", dir, err)
	}
	isa := moduleISA(r.View)
	lookup := symbolLookup(r.View)
	labels := callgraph.Labels(r.Funcs)

	for _, f := range r.Funcs {
		label := labels[f.ID()]
		dot := render.FunctionDOT(r.View, f, render.CFGOptions{Theme: opts.theme, ISA: isa, MaxInsts: opts.maxInsts})
		if dot != "" {
			if err := output.WriteDOT(dir, label, dot); err != nil {
				return render.CallgraphStats{}, err
			}
		}
		if opts.asm && isa != 0 {
			var insts []disasm.Inst
			for _, b := range f.AllBlocks() {
				bi, err := disasm.Disassemble(b.Bytes(), disasm.Options{ISA: isa, BaseAddr: b.Address(), Symbols: lookup})
				if err != nil {
					return render.CallgraphStats{}, err
				}
				insts = append(insts, bi...)
			}
			if err := output.WriteASM(dir, label, insts, lookup); err != nil {
				return render.CallgraphStats{}, err
			}
		}
	}

	cg := callgraph.BuildCallGraph(r.View, r.Funcs)
	cfgGraph := callgraph.BuildCFG(r.View, r.Funcs)
	if len(opts.from) > 0 {
		keep := callgraph.ReachableSet(cg, opts.from)
		cg = callgraph.Subgraph(cg, keep)
		cfgGraph = filterCFG(cfgGraph, keep)
	}

	title := "irfuncs " + r.View.Name()
	files := map[string]string{
		"cfg.dot":              lrender.DOTCFG(cfgGraph, title),
		"callgraph.dot":        lrender.DOT(cg, title),
		"callgraph_styled.dot": render.CallgraphDOT(cg, title, opts.theme, opts.maxNodes),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return render.CallgraphStats{}, fmt.Errorf("write %s: %w", name, err)
		}
	}
	return render.ComputeStats(cg), nil
}

func filterCFG(g *lattice.CFGGraph, keep map[string]bool) *lattice.CFGGraph {
	out := &lattice.CFGGraph{}
	for _, f := range g.Funcs {
		if keep[f.Name] {
			out.Funcs = append(out.Funcs, f)
		}
	}
	return out
}
