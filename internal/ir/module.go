package ir

import (
	"sort"

	"github.com/google/uuid"
)

// Module is one binary image inside an IR.
type Module struct {
	id      uuid.UUID
	ir      *IR
	name    string
	isa     string
	blocks  []*CodeBlock
	symbols []*Symbol
	aux     *AuxData

	// byReferent indexes symbols by the identifier they refer to.
	byReferent map[uuid.UUID][]*Symbol
}

// AddModule creates a module and registers it with the IR.
func (x *IR) AddModule(name, isa string) *Module {
	return x.AddModuleWithID(uuid.New(), name, isa)
}

// AddModuleWithID is AddModule with a caller-chosen identifier.
func (x *IR) AddModuleWithID(id uuid.UUID, name, isa string) *Module {
	m := &Module{
		id:         id,
		ir:         x,
		name:       name,
		isa:        isa,
		aux:        newAuxData(),
		byReferent: make(map[uuid.UUID][]*Symbol),
	}
	x.modules = append(x.modules, m)
	x.register(m)
	return m
}

func (m *Module) ID() uuid.UUID { return m.id }
func (m *Module) Kind() Kind    { return KindModule }
func (m *Module) Name() string  { return m.name }
func (m *Module) IR() *IR       { return m.ir }

// ISA returns the instruction set name ("arm64", "amd64"), or "" if unknown.
func (m *Module) ISA() string { return m.isa }

// AuxData returns the module's side tables.
func (m *Module) AuxData() *AuxData { return m.aux }

// Facts returns read access to the module's side tables.
func (m *Module) Facts() AuxDataReader { return m.aux }

// AddCodeBlock creates a block with a fresh identifier.
func (m *Module) AddCodeBlock(address, size uint64) *CodeBlock {
	return m.AddCodeBlockWithID(uuid.New(), address, size)
}

// AddCodeBlockWithID creates a block with a caller-chosen identifier.
func (m *Module) AddCodeBlockWithID(id uuid.UUID, address, size uint64) *CodeBlock {
	b := &CodeBlock{id: id, module: m, address: address, size: size}
	m.blocks = append(m.blocks, b)
	m.ir.register(b)
	return b
}

// AddSymbol creates a symbol referring to referent (uuid.Nil for none).
func (m *Module) AddSymbol(name string, referent uuid.UUID) *Symbol {
	return m.AddSymbolWithID(uuid.New(), name, referent)
}

// AddSymbolWithID creates a symbol with a caller-chosen identifier.
func (m *Module) AddSymbolWithID(id uuid.UUID, name string, referent uuid.UUID) *Symbol {
	s := &Symbol{id: id, module: m, name: name, referent: referent}
	m.symbols = append(m.symbols, s)
	m.indexSymbol(s)
	m.ir.register(s)
	return s
}

// CodeBlocks returns the module's blocks in insertion order.
func (m *Module) CodeBlocks() []*CodeBlock {
	out := make([]*CodeBlock, len(m.blocks))
	copy(out, m.blocks)
	return out
}

// Symbols returns the module's symbols in insertion order.
func (m *Module) Symbols() []*Symbol {
	out := make([]*Symbol, len(m.symbols))
	copy(out, m.symbols)
	return out
}

// Lookup resolves an identifier against the owning IR's directory.
func (m *Module) Lookup(id uuid.UUID) (Node, bool) {
	return m.ir.Lookup(id)
}

// Successors returns the outgoing CFG edges of the node with the given id.
func (m *Module) Successors(id uuid.UUID) []Edge {
	return m.ir.cfg.Successors(id)
}

// FindSymbols returns the module's symbols whose referent is b, ordered by
// name then identifier.
func (m *Module) FindSymbols(b *CodeBlock) []*Symbol {
	if b == nil {
		return nil
	}
	syms := m.byReferent[b.id]
	out := make([]*Symbol, len(syms))
	copy(out, syms)
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return Less(out[i].id, out[j].id)
	})
	return out
}

func (m *Module) indexSymbol(s *Symbol) {
	if s.referent == uuid.Nil {
		return
	}
	m.byReferent[s.referent] = append(m.byReferent[s.referent], s)
}

func (m *Module) unindexSymbol(s *Symbol) {
	syms := m.byReferent[s.referent]
	for i, other := range syms {
		if other == s {
			m.byReferent[s.referent] = append(syms[:i:i], syms[i+1:]...)
			break
		}
	}
	if len(m.byReferent[s.referent]) == 0 {
		delete(m.byReferent, s.referent)
	}
}
