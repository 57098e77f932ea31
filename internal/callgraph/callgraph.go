// Package callgraph projects derived functions onto lattice graphs: a
// function-level call graph and per-function block CFGs.
package callgraph

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/zboralski/lattice"

	"irfuncs/internal/functions"
	"irfuncs/internal/ir"
)

// Graph is the read side of a module needed to follow call edges.
type Graph interface {
	Lookup(id uuid.UUID) (ir.Node, bool)
	Successors(id uuid.UUID) []ir.Edge
	FindSymbols(b ir.BlockView) []ir.SymbolView
}

// Labels assigns each function a unique node name. The name is the
// function's head name; functions sharing a head name, and unnamed ones, are
// suffixed with their lowest entry address. A suffixed name that is already
// taken gets the id prefix, then a counter.
func Labels(fns []functions.ReadOnly) map[uuid.UUID]string {
	base := make(map[uuid.UUID]string, len(fns))
	count := make(map[string]int)
	for _, f := range fns {
		name := headName(f)
		base[f.ID()] = name
		count[name]++
	}

	// Unique head names are kept as is and reserved first.
	out := make(map[uuid.UUID]string, len(fns))
	taken := make(map[string]bool, len(fns))
	for _, f := range fns {
		if name := base[f.ID()]; name != "" && count[name] == 1 {
			out[f.ID()] = name
			taken[name] = true
		}
	}

	for _, f := range fns {
		if _, done := out[f.ID()]; done {
			continue
		}
		name := base[f.ID()]
		if name == "" {
			name = "sub"
		}
		if addr, ok := lowestEntry(f); ok {
			name = fmt.Sprintf("%s_%x", name, addr)
		} else {
			name = fmt.Sprintf("%s_%s", name, f.ID().String()[:8])
		}
		if taken[name] {
			name = fmt.Sprintf("%s_%s", name, f.ID().String()[:8])
		}
		for i, stem := 2, name; taken[name]; i++ {
			name = fmt.Sprintf("%s_%d", stem, i)
		}
		out[f.ID()] = name
		taken[name] = true
	}
	return out
}

// headName is the head of the display name: the sole name symbol, else the
// canonical symbol, else the first name symbol.
func headName(f functions.ReadOnly) string {
	syms := f.NameSymbols()
	if len(syms) == 1 {
		return syms[0].Name()
	}
	if s, ok := f.CanonicalName(); ok && len(syms) > 1 {
		return s.Name()
	}
	if len(syms) > 0 {
		return syms[0].Name()
	}
	return ""
}

func lowestEntry(f functions.ReadOnly) (uint64, bool) {
	entries := f.EntryBlocks()
	if len(entries) == 0 {
		return 0, false
	}
	return entries[0].Address(), true
}

// entryIndex maps every entry block to the function it starts.
func entryIndex(fns []functions.ReadOnly) map[uuid.UUID]uuid.UUID {
	idx := make(map[uuid.UUID]uuid.UUID)
	for _, f := range fns {
		for _, b := range f.EntryBlocks() {
			if _, taken := idx[b.ID()]; !taken {
				idx[b.ID()] = f.ID()
			}
		}
	}
	return idx
}

// calleeName names the target of a call edge: the function it enters, a
// symbol on the target block, a symbol node, or the block address. Unknown
// identifiers yield "".
func calleeName(g Graph, to uuid.UUID, entries map[uuid.UUID]uuid.UUID, labels map[uuid.UUID]string) string {
	if fn, ok := entries[to]; ok {
		return labels[fn]
	}
	n, ok := g.Lookup(to)
	if !ok {
		return ""
	}
	switch v := n.(type) {
	case ir.BlockView:
		if syms := g.FindSymbols(v); len(syms) > 0 {
			return syms[0].Name()
		}
		return fmt.Sprintf("0x%x", v.Address())
	case ir.SymbolView:
		return v.Name()
	}
	return ""
}

func isCall(e ir.Edge) bool {
	return e.Label != nil && (e.Label.Type == ir.EdgeCall || e.Label.Type == ir.EdgeSyscall)
}

// BuildCallGraph constructs a lattice.Graph from derived functions. Each
// function becomes a node. Each call edge leaving one of its blocks becomes
// an edge to the callee; calls into unknown identifiers are skipped.
func BuildCallGraph(g Graph, fns []functions.ReadOnly) *lattice.Graph {
	labels := Labels(fns)
	entries := entryIndex(fns)

	out := &lattice.Graph{}
	for _, f := range fns {
		caller := labels[f.ID()]
		out.Nodes = append(out.Nodes, caller)
		for _, b := range f.AllBlocks() {
			for _, e := range g.Successors(b.ID()) {
				if !isCall(e) {
					continue
				}
				callee := calleeName(g, e.To, entries, labels)
				if callee == "" {
					continue
				}
				out.Edges = append(out.Edges, lattice.Edge{Caller: caller, Callee: callee})
			}
		}
	}
	out.Dedup()
	return out
}

// EntryPoints returns the graph nodes that no edge calls, sorted.
func EntryPoints(g *lattice.Graph) []string {
	called := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Caller != e.Callee {
			called[e.Callee] = true
		}
	}
	var roots []string
	for _, n := range g.Nodes {
		if !called[n] {
			roots = append(roots, n)
		}
	}
	sort.Strings(roots)
	return roots
}

// ReachableSet walks call edges breadth first from roots and returns every
// name reached, roots included.
func ReachableSet(g *lattice.Graph, roots []string) map[string]bool {
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		adj[e.Caller] = append(adj[e.Caller], e.Callee)
	}

	reachable := make(map[string]bool)
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		if !reachable[r] {
			reachable[r] = true
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, target := range adj[fn] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// Subgraph keeps the nodes in keep and the edges whose caller is kept.
func Subgraph(g *lattice.Graph, keep map[string]bool) *lattice.Graph {
	out := &lattice.Graph{}
	for _, n := range g.Nodes {
		if keep[n] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if keep[e.Caller] && keep[e.Callee] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}
