package render

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"irfuncs/internal/disasm"
	"irfuncs/internal/functions"
	"irfuncs/internal/ir"
)

// Graph is the read side of a module a function CFG is drawn from.
type Graph interface {
	Lookup(id uuid.UUID) (ir.Node, bool)
	Successors(id uuid.UUID) []ir.Edge
	FindSymbols(b ir.BlockView) []ir.SymbolView
}

// CFGOptions controls function CFG rendering.
type CFGOptions struct {
	Theme    Theme
	ISA      disasm.ISA // 0 draws blocks without instructions
	MaxInsts int        // per-block instruction lines before eliding; 0 = 12
}

// FunctionDOT renders the blocks of one function as DOT. Entry blocks get a
// heavy border and exit blocks a fill. Edges between member blocks are
// colored by type; calls and returns point at plaintext nodes outside the
// function.
func FunctionDOT(g Graph, f functions.ReadOnly, opts CFGOptions) string {
	blocks := f.AllBlocks()
	if len(blocks) == 0 {
		return ""
	}
	t := opts.Theme

	var b strings.Builder
	b.WriteString("digraph cfg {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.4;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q, margin=\"0.08,0.04\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee];\n")
	fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
	fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
		t.TextColor, dotEscape(f.DisplayName()))
	b.WriteByte('\n')

	member := make(map[uuid.UUID]bool, len(blocks))
	for _, blk := range blocks {
		member[blk.ID()] = true
	}

	for _, blk := range blocks {
		lines := blockLines(blk, opts)
		label := strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"

		attrs := ""
		if f.IsEntry(blk) {
			attrs = fmt.Sprintf(", penwidth=1.5, color=%q", t.EntryBorder)
		}
		if f.IsExit(blk) {
			attrs += fmt.Sprintf(", fillcolor=%q", t.ExitFill)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", blockID(blk.ID()), label, attrs)
	}
	b.WriteByte('\n')

	external := make(map[string]bool)
	for _, blk := range blocks {
		from := blockID(blk.ID())
		for _, e := range g.Successors(blk.ID()) {
			color, style, tag := edgeAttrs(e, t)
			to := blockID(e.To)
			if !member[e.To] {
				if e.Label == nil || (e.Label.Type != ir.EdgeCall && e.Label.Type != ir.EdgeSyscall &&
					e.Label.Type != ir.EdgeReturn && e.Label.Type != ir.EdgeSysret) {
					continue
				}
				name := externalName(g, e)
				to = dotID(name)
				if !external[name] {
					external[name] = true
					fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
						to, truncLabel(name, 50), t.ExternalText)
				}
			}
			attrs := fmt.Sprintf("color=%q, style=%q", color, style)
			if tag != "" {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%s</font>>", color, tag)
			}
			fmt.Fprintf(&b, "  %s -> %s [%s];\n", from, to, attrs)
		}
	}

	b.WriteString("}\n")
	return b.String()
}

func blockID(id uuid.UUID) string {
	return "bb_" + strings.ReplaceAll(id.String(), "-", "")
}

// blockLines is the label of one block: its address and size, then the
// decoded instructions when the block carries bytes.
func blockLines(blk ir.BlockView, opts CFGOptions) []string {
	head := fmt.Sprintf("0x%x (%d bytes)", blk.Address(), blk.Size())
	lines := []string{dotEscape(head)}

	data := blk.Bytes()
	if opts.ISA == 0 || len(data) == 0 {
		return lines
	}
	insts, err := disasm.Disassemble(data, disasm.Options{ISA: opts.ISA, BaseAddr: blk.Address()})
	if err != nil {
		return lines
	}
	var body []string
	for _, inst := range insts {
		body = append(body, dotEscape(fmt.Sprintf("0x%x: %s", inst.Addr, inst.Text)))
	}
	keep := 5
	if opts.MaxInsts > 0 {
		keep = max(1, (opts.MaxInsts-2)/2)
	}
	return append(lines, elide(body, keep)...)
}

// edgeAttrs picks color, style and a short tag for an edge.
func edgeAttrs(e ir.Edge, t Theme) (color, style, tag string) {
	if e.Label == nil {
		return t.EdgeUnlabeled, "dashed", ""
	}
	switch e.Label.Type {
	case ir.EdgeCall, ir.EdgeSyscall:
		color, style = t.EdgeCall, "solid"
	case ir.EdgeReturn, ir.EdgeSysret:
		color, style = t.EdgeReturn, "solid"
	default:
		color, style = t.EdgeDirect, "solid"
		if e.Label.Conditional {
			if e.Label.Type == ir.EdgeBranch {
				color, tag = t.EdgeTrue, "T"
			} else {
				color, tag = t.EdgeFalse, "F"
			}
		}
	}
	if !e.Label.Direct {
		style = "dotted"
	}
	if tag == "" && e.Label.Type != ir.EdgeBranch && e.Label.Type != ir.EdgeFallthrough {
		tag = e.Label.Type.String()
	}
	return color, style, tag
}

// externalName names the far end of an edge leaving the function.
func externalName(g Graph, e ir.Edge) string {
	if e.Label.Type == ir.EdgeReturn || e.Label.Type == ir.EdgeSysret {
		return e.Label.Type.String()
	}
	n, ok := g.Lookup(e.To)
	if !ok {
		return "?" + e.To.String()[:8]
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
	return e.To.String()
}
