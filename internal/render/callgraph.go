package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"
)

// CallgraphDOT renders a function call graph as DOT. Graph nodes are drawn
// as boxes, entry points with a heavy border; callees that are not functions
// (imports, unnamed blocks) are plaintext. maxNodes limits the number of
// function nodes rendered (0 = all).
func CallgraphDOT(g *lattice.Graph, title string, t Theme, maxNodes int) string {
	funcs := append([]string(nil), g.Nodes...)
	sort.Strings(funcs)
	if maxNodes > 0 && len(funcs) > maxNodes {
		funcs = funcs[:maxNodes]
	}
	funcSet := make(map[string]bool, len(funcs))
	for _, f := range funcs {
		funcSet[f] = true
	}
	allFuncs := make(map[string]bool, len(g.Nodes))
	for _, f := range g.Nodes {
		allFuncs[f] = true
	}

	type edgeKey struct{ from, to string }
	called := make(map[string]bool)
	count := make(map[edgeKey]int)
	var edges []edgeKey
	for _, e := range g.Edges {
		if e.Caller != e.Callee {
			called[e.Callee] = true
		}
		if !funcSet[e.Caller] || (allFuncs[e.Callee] && !funcSet[e.Callee]) {
			continue
		}
		k := edgeKey{e.Caller, e.Callee}
		if count[k] == 0 {
			edges = append(edges, k)
		}
		count[k]++
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from < edges[j].from
		}
		return edges[i].to < edges[j].to
	})

	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee];\n")
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	for _, f := range funcs {
		label := truncLabel(f, 60)
		if !called[f] {
			fmt.Fprintf(&b, "  %s [label=%q, penwidth=1.5, color=%q];\n", dotID(f), label, t.EntryBorder)
		} else {
			fmt.Fprintf(&b, "  %s [label=%q];\n", dotID(f), label)
		}
	}
	b.WriteByte('\n')

	external := make(map[string]bool)
	for _, e := range edges {
		if allFuncs[e.to] || external[e.to] {
			continue
		}
		external[e.to] = true
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
			dotID(e.to), truncLabel(e.to, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	for _, e := range edges {
		attrs := fmt.Sprintf("color=%q", t.EdgeCall)
		if n := count[e]; n > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(n)*0.1)
			if n > 2 {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%dx</font>>", t.EdgeCall, n)
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(e.from), dotID(e.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

// CallgraphStats summarizes a call graph.
type CallgraphStats struct {
	TotalFunctions int         `json:"total_functions"`
	TotalEdges     int         `json:"total_edges"`
	External       int         `json:"external_callees"`
	EntryPoints    int         `json:"entry_points"`
	TopCallers     []NameCount `json:"top_callers,omitempty"` // sorted desc
	TopCallees     []NameCount `json:"top_callees,omitempty"` // sorted desc
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ComputeStats computes call graph statistics.
func ComputeStats(g *lattice.Graph) CallgraphStats {
	stats := CallgraphStats{
		TotalFunctions: len(g.Nodes),
		TotalEdges:     len(g.Edges),
	}

	funcs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		funcs[n] = true
	}
	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)
	external := make(map[string]bool)
	for _, e := range g.Edges {
		callerCount[e.Caller]++
		if e.Caller != e.Callee {
			calleeCount[e.Callee]++
		}
		if !funcs[e.Callee] {
			external[e.Callee] = true
		}
	}
	stats.External = len(external)
	for _, n := range g.Nodes {
		if calleeCount[n] == 0 {
			stats.EntryPoints++
		}
	}

	stats.TopCallers = topNMap(callerCount, 20)
	stats.TopCallees = topNMap(calleeCount, 20)
	return stats
}

// topNMap returns the top N entries from a map, sorted by count descending
// then name.
func topNMap(m map[string]int, n int) []NameCount {
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
