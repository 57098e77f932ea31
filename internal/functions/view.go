package functions

import "irfuncs/internal/ir"

// Mutable is a function derived from an exclusively owned module. Its
// references permit mutation of the underlying blocks and symbols.
type Mutable = Function[*ir.CodeBlock, *ir.Symbol]

// ReadOnly is a function whose references only allow reading.
type ReadOnly = Function[ir.BlockView, ir.SymbolView]

// BuildMutable derives functions from a module the caller owns.
func BuildMutable(m *ir.Module, opts Options) []Mutable {
	return Build[*ir.CodeBlock, *ir.Symbol](m, opts)
}

// BuildReadOnly derives functions from a shared, read-only module view.
func BuildReadOnly(v ir.ModuleView, opts Options) []ReadOnly {
	return Build[ir.BlockView, ir.SymbolView](v, opts)
}

// Narrow converts a mutable function into its read-only form. Every field
// is carried over; only the reference kind changes.
func Narrow(f Mutable) ReadOnly {
	out := ReadOnly{
		id:           f.id,
		entryBlocks:  blockViews(f.entryBlocks),
		allBlocks:    blockViews(f.allBlocks),
		exitBlocks:   blockViews(f.exitBlocks),
		nameSymbols:  symbolViews(f.nameSymbols),
		hasCanonical: f.hasCanonical,
		displayName:  f.displayName,
	}
	if f.hasCanonical {
		out.canonical = f.canonical.View()
	}
	return out
}

// NarrowAll applies Narrow to every function.
func NarrowAll(fns []Mutable) []ReadOnly {
	out := make([]ReadOnly, len(fns))
	for i, f := range fns {
		out[i] = Narrow(f)
	}
	return out
}

func blockViews(blocks []*ir.CodeBlock) []ir.BlockView {
	if blocks == nil {
		return nil
	}
	out := make([]ir.BlockView, len(blocks))
	for i, b := range blocks {
		out[i] = b.View()
	}
	return out
}

func symbolViews(syms []*ir.Symbol) []ir.SymbolView {
	if syms == nil {
		return nil
	}
	out := make([]ir.SymbolView, len(syms))
	for i, s := range syms {
		out[i] = s.View()
	}
	return out
}
