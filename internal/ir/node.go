package ir

import "github.com/google/uuid"

// CodeBlock is a contiguous run of instructions and a CFG vertex.
type CodeBlock struct {
	id      uuid.UUID
	module  *Module
	address uint64
	size    uint64
	bytes   []byte
}

func (b *CodeBlock) ID() uuid.UUID   { return b.id }
func (b *CodeBlock) Kind() Kind      { return KindCodeBlock }
func (b *CodeBlock) Address() uint64 { return b.address }
func (b *CodeBlock) Size() uint64    { return b.size }
func (b *CodeBlock) Module() *Module { return b.module }

// Bytes returns the block's raw instruction bytes, or nil if the block was
// created without contents.
func (b *CodeBlock) Bytes() []byte { return b.bytes }

// SetSize changes the block size. Derived views holding this block observe
// the change; derived exit sets do not.
func (b *CodeBlock) SetSize(n uint64) { b.size = n }

// SetBytes replaces the raw contents and updates the size to match.
func (b *CodeBlock) SetBytes(data []byte) {
	b.bytes = data
	b.size = uint64(len(data))
}

// View narrows the block to a read-only reference.
func (b *CodeBlock) View() BlockView { return BlockView{b: b} }

// Symbol names a location. Its referent is usually a code block.
type Symbol struct {
	id       uuid.UUID
	module   *Module
	name     string
	referent uuid.UUID // uuid.Nil when the symbol has no referent
}

func (s *Symbol) ID() uuid.UUID   { return s.id }
func (s *Symbol) Kind() Kind      { return KindSymbol }
func (s *Symbol) Name() string    { return s.name }
func (s *Symbol) Module() *Module { return s.module }

// Referent returns the identifier of the node the symbol refers to.
func (s *Symbol) Referent() (uuid.UUID, bool) {
	return s.referent, s.referent != uuid.Nil
}

// SetName renames the symbol.
func (s *Symbol) SetName(name string) { s.name = name }

// SetReferent repoints the symbol and keeps the module's referent index in
// sync.
func (s *Symbol) SetReferent(id uuid.UUID) {
	if s.module != nil {
		s.module.unindexSymbol(s)
	}
	s.referent = id
	if s.module != nil {
		s.module.indexSymbol(s)
	}
}

// View narrows the symbol to a read-only reference.
func (s *Symbol) View() SymbolView { return SymbolView{s: s} }
