package functions

import (
	"log/slog"

	"github.com/google/uuid"

	"irfuncs/internal/ir"
)

// Source is everything a derivation reads from a module. *ir.Module
// satisfies Source[*ir.CodeBlock, *ir.Symbol]; ir.ModuleView satisfies
// Source[ir.BlockView, ir.SymbolView].
type Source[B BlockRef, S SymbolRef] interface {
	NodeSource
	EdgeSource
	// FindSymbols returns the symbols whose referent is b.
	FindSymbols(b B) []S
	// Facts returns the aux data holding the function tables.
	Facts() ir.AuxDataReader
}

// Options controls derivation.
type Options struct {
	Logger *slog.Logger // receives debug records for skipped identifiers; nil discards
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Build derives one Function per key of the functionEntries table, ordered
// by identifier. A function whose identifiers all fail to resolve is still
// returned, with empty sets. Missing tables read as empty; Build never fails.
//
// The IR must not be mutated while Build runs.
func Build[B BlockRef, S SymbolRef](src Source[B, S], opts Options) []Function[B, S] {
	log := opts.logger()
	r := resolver[B, S]{src: src, log: log}
	f := loadFacts(src.Facts())

	ids := f.functionIDs()
	fns := make([]Function[B, S], 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.assemble(id, f))
	}
	log.Debug("derived functions", "count", len(fns))
	return fns
}

func (r resolver[B, S]) assemble(id uuid.UUID, f facts) Function[B, S] {
	fn := Function[B, S]{id: id}

	fn.entryBlocks = r.blocks(id, "entry", f.entries[id])
	fn.nameSymbols = r.nameSymbols(fn.entryBlocks)
	fn.allBlocks = r.blocks(id, "block", f.blocks[id])
	if symID, ok := f.names[id]; ok {
		fn.canonical, fn.hasCanonical = r.symbol(id, "name", symID)
	}
	fn.exitBlocks = FindExitBlocks(r.src, fn.allBlocks)
	fn.displayName = DisplayName(fn.nameSymbols, fn.canonical, fn.hasCanonical)
	return fn
}

// nameSymbols collects every symbol referring to one of the entry blocks.
func (r resolver[B, S]) nameSymbols(entries []B) []S {
	var syms []S
	seen := make(map[uuid.UUID]struct{})
	for _, b := range entries {
		for _, s := range r.src.FindSymbols(b) {
			if _, dup := seen[s.ID()]; dup {
				continue
			}
			seen[s.ID()] = struct{}{}
			syms = append(syms, s)
		}
	}
	sortSymbols(syms)
	return syms
}
