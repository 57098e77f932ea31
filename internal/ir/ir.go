// Package ir is an in-memory binary program representation: code blocks and
// symbols addressed by UUID, a control-flow graph with labeled edges, and
// per-module auxiliary data tables.
//
// The IR owns every node. Anything else (derived functions, renderers) holds
// non-owning references that go stale once the IR is mutated.
package ir

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies the concrete type of a node.
type Kind uint8

const (
	KindCodeBlock Kind = iota + 1
	KindSymbol
	KindModule
)

func (k Kind) String() string {
	switch k {
	case KindCodeBlock:
		return "code-block"
	case KindSymbol:
		return "symbol"
	case KindModule:
		return "module"
	default:
		return "unknown"
	}
}

// Node is anything registered in the IR's node directory.
type Node interface {
	ID() uuid.UUID
	Kind() Kind
}

// IR is the root container. It owns the node directory, the CFG and the
// modules.
//
// Derivations read the IR concurrently under Snapshot; mutations go through
// Mutate. Builder methods on Module, CodeBlock and Symbol do not lock on
// their own: callers that share an IR across goroutines wrap them in Mutate.
type IR struct {
	mu      sync.RWMutex
	nodes   map[uuid.UUID]Node
	modules []*Module
	cfg     *CFG
}

// New returns an empty IR.
func New() *IR {
	return &IR{
		nodes: make(map[uuid.UUID]Node),
		cfg:   NewCFG(),
	}
}

// Lookup resolves an identifier against the global node directory.
func (x *IR) Lookup(id uuid.UUID) (Node, bool) {
	n, ok := x.nodes[id]
	return n, ok
}

// CFG returns the IR-wide control-flow graph.
func (x *IR) CFG() *CFG { return x.cfg }

// Modules returns the modules in insertion order.
func (x *IR) Modules() []*Module {
	out := make([]*Module, len(x.modules))
	copy(out, x.modules)
	return out
}

// Module returns the first module with the given name.
func (x *IR) Module(name string) (*Module, bool) {
	for _, m := range x.modules {
		if m.name == name {
			return m, true
		}
	}
	return nil, false
}

// Snapshot runs fn while holding the read lock. Any number of snapshots may
// run at once; none overlaps a Mutate.
func (x *IR) Snapshot(fn func(*IR) error) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return fn(x)
}

// Mutate runs fn while holding the write lock.
func (x *IR) Mutate(fn func(*IR) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return fn(x)
}

// register adds n to the directory. An existing node with the same
// identifier is replaced.
func (x *IR) register(n Node) {
	x.nodes[n.ID()] = n
}

// NodeCount returns the number of registered nodes.
func (x *IR) NodeCount() int { return len(x.nodes) }

// sortIDs orders identifiers bytewise.
func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
}

// Less reports whether a sorts before b bytewise.
func Less(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
