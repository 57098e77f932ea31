package ir

import "github.com/google/uuid"

// Read-only references. A view wraps a node without exposing any mutator,
// and nothing outside this package can unwrap it, so a view never widens
// back into a mutable reference.

// BlockView is a read-only reference to a code block. The zero value refers
// to nothing and must not be used.
type BlockView struct{ b *CodeBlock }

func (v BlockView) ID() uuid.UUID   { return v.b.id }
func (v BlockView) Kind() Kind      { return KindCodeBlock }
func (v BlockView) Address() uint64 { return v.b.address }
func (v BlockView) Size() uint64    { return v.b.size }
func (v BlockView) Valid() bool     { return v.b != nil }

// Bytes returns a copy of the block contents.
func (v BlockView) Bytes() []byte {
	if v.b.bytes == nil {
		return nil
	}
	out := make([]byte, len(v.b.bytes))
	copy(out, v.b.bytes)
	return out
}

// SymbolView is a read-only reference to a symbol.
type SymbolView struct{ s *Symbol }

func (v SymbolView) ID() uuid.UUID { return v.s.id }
func (v SymbolView) Kind() Kind    { return KindSymbol }
func (v SymbolView) Name() string  { return v.s.name }
func (v SymbolView) Valid() bool   { return v.s != nil }

// Referent returns the identifier of the node the symbol refers to.
func (v SymbolView) Referent() (uuid.UUID, bool) { return v.s.Referent() }

// ModuleView is a read-only module handle. Lookups through it yield views,
// never mutable nodes.
type ModuleView struct{ m *Module }

// View narrows the module to a read-only handle.
func (m *Module) View() ModuleView { return ModuleView{m: m} }

func (v ModuleView) ID() uuid.UUID { return v.m.id }
func (v ModuleView) Kind() Kind    { return KindModule }
func (v ModuleView) Name() string  { return v.m.name }
func (v ModuleView) ISA() string   { return v.m.isa }

// Facts returns read access to the module's side tables.
func (v ModuleView) Facts() AuxDataReader { return v.m.aux }

// Lookup resolves an identifier to a read-only node.
func (v ModuleView) Lookup(id uuid.UUID) (Node, bool) {
	n, ok := v.m.ir.Lookup(id)
	if !ok {
		return nil, false
	}
	return viewOf(n), true
}

// Successors returns the outgoing CFG edges of the node with the given id.
func (v ModuleView) Successors(id uuid.UUID) []Edge {
	return v.m.ir.cfg.Successors(id)
}

// FindSymbols returns read-only references to the symbols whose referent is
// b, ordered by name then identifier.
func (v ModuleView) FindSymbols(b BlockView) []SymbolView {
	if !b.Valid() {
		return nil
	}
	syms := v.m.FindSymbols(b.b)
	out := make([]SymbolView, len(syms))
	for i, s := range syms {
		out[i] = s.View()
	}
	return out
}

// CodeBlocks returns read-only references to the module's blocks.
func (v ModuleView) CodeBlocks() []BlockView {
	out := make([]BlockView, len(v.m.blocks))
	for i, b := range v.m.blocks {
		out[i] = b.View()
	}
	return out
}

// Symbols returns read-only references to the module's symbols.
func (v ModuleView) Symbols() []SymbolView {
	out := make([]SymbolView, len(v.m.symbols))
	for i, s := range v.m.symbols {
		out[i] = s.View()
	}
	return out
}

func viewOf(n Node) Node {
	switch n := n.(type) {
	case *CodeBlock:
		return n.View()
	case *Symbol:
		return n.View()
	case *Module:
		return n.View()
	default:
		return n
	}
}
