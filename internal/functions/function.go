// Package functions derives Function views from the function facts recorded
// in a module's aux data (entry blocks, block sets, canonical names) and the
// IR's control-flow graph.
//
// A Function holds non-owning references into the IR. It is a snapshot: any
// later mutation of the IR may leave it describing blocks and symbols that
// no longer look the way they did at derivation time.
//
// The same derivation runs over a mutable module (Function[*ir.CodeBlock,
// *ir.Symbol]) or a read-only view (Function[ir.BlockView, ir.SymbolView]).
// Narrow turns the former into the latter; there is no way back.
package functions

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"irfuncs/internal/ir"
)

// BlockRef is a reference to a code block: *ir.CodeBlock or ir.BlockView.
type BlockRef interface {
	comparable
	ir.Node
	Address() uint64
	Size() uint64
}

// SymbolRef is a reference to a symbol: *ir.Symbol or ir.SymbolView.
type SymbolRef interface {
	comparable
	ir.Node
	Name() string
}

// Function is one derived function. Values are built by Build and never
// change afterwards; the slice accessors return copies.
type Function[B BlockRef, S SymbolRef] struct {
	id           uuid.UUID
	entryBlocks  []B
	allBlocks    []B
	exitBlocks   []B
	nameSymbols  []S
	canonical    S
	hasCanonical bool
	displayName  string
}

// ID returns the identifier the function is keyed by in aux data.
func (f Function[B, S]) ID() uuid.UUID { return f.id }

// EntryBlocks returns the resolved entry blocks, ordered by address.
func (f Function[B, S]) EntryBlocks() []B { return slices.Clone(f.entryBlocks) }

// AllBlocks returns the resolved blocks of the function, ordered by address.
func (f Function[B, S]) AllBlocks() []B { return slices.Clone(f.allBlocks) }

// ExitBlocks returns the blocks through which control leaves the function.
// It is always a subset of AllBlocks.
func (f Function[B, S]) ExitBlocks() []B { return slices.Clone(f.exitBlocks) }

// NameSymbols returns every symbol that refers to an entry block, ordered
// by name then identifier.
func (f Function[B, S]) NameSymbols() []S { return slices.Clone(f.nameSymbols) }

// CanonicalName returns the symbol recorded as the function's primary name.
func (f Function[B, S]) CanonicalName() (S, bool) { return f.canonical, f.hasCanonical }

// DisplayName returns the consolidated name; never empty.
func (f Function[B, S]) DisplayName() string { return f.displayName }

// Names returns the name of every name symbol, in NameSymbols order.
func (f Function[B, S]) Names() []string {
	names := make([]string, len(f.nameSymbols))
	for i, s := range f.nameSymbols {
		names[i] = s.Name()
	}
	return names
}

// HasBlock reports whether b belongs to the function's block set.
func (f Function[B, S]) HasBlock(b B) bool { return slices.Contains(f.allBlocks, b) }

// IsEntry reports whether b is an entry block.
func (f Function[B, S]) IsEntry(b B) bool { return slices.Contains(f.entryBlocks, b) }

// IsExit reports whether b is an exit block.
func (f Function[B, S]) IsExit(b B) bool { return slices.Contains(f.exitBlocks, b) }

func (f Function[B, S]) String() string {
	return fmt.Sprintf("[UUID=%s, Name=%s, Entry=%s, Exit=%s, All=%s]",
		f.id, f.displayName,
		formatAddrs(f.entryBlocks), formatAddrs(f.exitBlocks), formatAddrs(f.allBlocks))
}

func formatAddrs[B BlockRef](blocks []B) string {
	addrs := make([]uint64, len(blocks))
	for i, b := range blocks {
		addrs[i] = b.Address()
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("0x%x", a)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// sortBlocks orders blocks by address, then identifier.
func sortBlocks[B BlockRef](blocks []B) {
	sort.Slice(blocks, func(i, j int) bool {
		ai, aj := blocks[i].Address(), blocks[j].Address()
		if ai != aj {
			return ai < aj
		}
		return ir.Less(blocks[i].ID(), blocks[j].ID())
	})
}

// sortSymbols orders symbols by name, then identifier.
func sortSymbols[S SymbolRef](syms []S) {
	sort.Slice(syms, func(i, j int) bool {
		ni, nj := syms[i].Name(), syms[j].Name()
		if ni != nj {
			return ni < nj
		}
		return ir.Less(syms[i].ID(), syms[j].ID())
	})
}
