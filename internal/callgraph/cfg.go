package callgraph

import (
	"github.com/google/uuid"
	"github.com/zboralski/lattice"

	"irfuncs/internal/functions"
	"irfuncs/internal/ir"
)

// BuildCFG constructs a lattice.CFGGraph with one FuncCFG per function.
func BuildCFG(g Graph, fns []functions.ReadOnly) *lattice.CFGGraph {
	labels := Labels(fns)
	entries := entryIndex(fns)

	cg := &lattice.CFGGraph{}
	for _, f := range fns {
		cg.Funcs = append(cg.Funcs, buildFuncCFG(g, f, labels[f.ID()], entries, labels))
	}
	return cg
}

// BuildFuncCFG builds the block CFG of a single function. Blocks are
// numbered in address order and each stands for one row; exit blocks are
// terminal. Only edges between member blocks become successors. Calls are
// attached to the block they leave from.
func BuildFuncCFG(g Graph, fns []functions.ReadOnly, f functions.ReadOnly) *lattice.FuncCFG {
	labels := Labels(fns)
	return buildFuncCFG(g, f, labels[f.ID()], entryIndex(fns), labels)
}

func buildFuncCFG(g Graph, f functions.ReadOnly, name string, entries map[uuid.UUID]uuid.UUID, labels map[uuid.UUID]string) *lattice.FuncCFG {
	blocks := f.AllBlocks()
	index := make(map[uuid.UUID]int, len(blocks))
	for i, b := range blocks {
		index[b.ID()] = i
	}

	lcfg := &lattice.FuncCFG{Name: name}
	for i, b := range blocks {
		lb := &lattice.BasicBlock{
			ID:    i,
			Start: i,
			End:   i + 1,
			Term:  f.IsExit(b),
		}
		for _, e := range g.Successors(b.ID()) {
			if isCall(e) {
				if callee := calleeName(g, e.To, entries, labels); callee != "" {
					lb.Calls = append(lb.Calls, lattice.CallSite{Offset: i, Callee: callee})
				}
				continue
			}
			to, member := index[e.To]
			if !member {
				continue
			}
			lb.Succs = append(lb.Succs, lattice.Successor{BlockID: to, Cond: cond(e)})
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}

// cond labels conditional edges: "T" for the taken branch, "F" for the
// fallthrough, "" otherwise.
func cond(e ir.Edge) string {
	if e.Label == nil || !e.Label.Conditional {
		return ""
	}
	switch e.Label.Type {
	case ir.EdgeBranch:
		return "T"
	case ir.EdgeFallthrough:
		return "F"
	}
	return ""
}
