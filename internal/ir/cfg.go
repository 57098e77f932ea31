package ir

import (
	"fmt"

	"github.com/google/uuid"
)

// EdgeType is the control-flow kind carried by an edge label.
type EdgeType uint8

const (
	EdgeBranch EdgeType = iota
	EdgeCall
	EdgeFallthrough
	EdgeReturn
	EdgeSyscall
	EdgeSysret
)

var edgeTypeNames = [...]string{
	EdgeBranch:      "branch",
	EdgeCall:        "call",
	EdgeFallthrough: "fallthrough",
	EdgeReturn:      "return",
	EdgeSyscall:     "syscall",
	EdgeSysret:      "sysret",
}

func (t EdgeType) String() string {
	if int(t) < len(edgeTypeNames) {
		return edgeTypeNames[t]
	}
	return fmt.Sprintf("edge-type(%d)", uint8(t))
}

// ParseEdgeType is the inverse of EdgeType.String. "syscall-return" is
// accepted as an alias for "sysret".
func ParseEdgeType(s string) (EdgeType, error) {
	for i, name := range edgeTypeNames {
		if s == name {
			return EdgeType(i), nil
		}
	}
	if s == "syscall-return" {
		return EdgeSysret, nil
	}
	return 0, fmt.Errorf("ir: unknown edge type %q", s)
}

// EdgeLabel describes a CFG edge.
type EdgeLabel struct {
	Conditional bool
	Direct      bool
	Type        EdgeType
}

// Edge is one outgoing CFG edge. Label is nil for unlabeled edges.
type Edge struct {
	From  uuid.UUID
	To    uuid.UUID
	Label *EdgeLabel
}

// CFG is a directed multigraph over node identifiers. Endpoints are not
// required to be code blocks, or to be registered at all.
type CFG struct {
	succs map[uuid.UUID][]Edge
	count int
}

// NewCFG returns an empty graph.
func NewCFG() *CFG {
	return &CFG{succs: make(map[uuid.UUID][]Edge)}
}

// AddEdge appends an edge. The label is copied.
func (g *CFG) AddEdge(from, to uuid.UUID, label *EdgeLabel) {
	e := Edge{From: from, To: to}
	if label != nil {
		l := *label
		e.Label = &l
	}
	g.succs[from] = append(g.succs[from], e)
	g.count++
}

// Successors returns the outgoing edges of id in insertion order. Labels are
// copies; editing them does not change the graph.
func (g *CFG) Successors(id uuid.UUID) []Edge {
	edges := g.succs[id]
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = e.clone()
	}
	return out
}

func (e Edge) clone() Edge {
	if e.Label != nil {
		l := *e.Label
		e.Label = &l
	}
	return e
}

// Edges returns every edge, grouped by source in bytewise source order.
func (g *CFG) Edges() []Edge {
	srcs := make([]uuid.UUID, 0, len(g.succs))
	for id := range g.succs {
		srcs = append(srcs, id)
	}
	sortIDs(srcs)
	out := make([]Edge, 0, g.count)
	for _, id := range srcs {
		for _, e := range g.succs[id] {
			out = append(out, e.clone())
		}
	}
	return out
}

// Len returns the number of edges.
func (g *CFG) Len() int { return g.count }
