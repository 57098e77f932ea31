package functions

import (
	"log/slog"

	"github.com/google/uuid"

	"irfuncs/internal/ir"
)

// NodeSource resolves identifiers to nodes.
type NodeSource interface {
	Lookup(id uuid.UUID) (ir.Node, bool)
}

// Resolve looks id up and returns it as a T when the node has the expected
// kind. Unknown identifiers and kind mismatches both yield false.
func Resolve[T ir.Node](src NodeSource, id uuid.UUID, kind ir.Kind) (T, bool) {
	var zero T
	n, ok := src.Lookup(id)
	if !ok || n.Kind() != kind {
		return zero, false
	}
	t, ok := n.(T)
	return t, ok
}

// resolver resolves the identifier lists of one derivation pass and reports
// what it drops.
type resolver[B BlockRef, S SymbolRef] struct {
	src Source[B, S]
	log *slog.Logger
}

// blocks resolves ids as code blocks, dropping duplicates and unresolvable
// identifiers. The result is ordered by address.
func (r resolver[B, S]) blocks(fn uuid.UUID, field string, ids []uuid.UUID) []B {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]B, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		b, ok := Resolve[B](r.src, id, ir.KindCodeBlock)
		if !ok {
			r.skip(fn, field, id)
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil
	}
	sortBlocks(out)
	return out
}

// symbol resolves id as a symbol.
func (r resolver[B, S]) symbol(fn uuid.UUID, field string, id uuid.UUID) (S, bool) {
	s, ok := Resolve[S](r.src, id, ir.KindSymbol)
	if !ok {
		r.skip(fn, field, id)
	}
	return s, ok
}

func (r resolver[B, S]) skip(fn uuid.UUID, field string, id uuid.UUID) {
	r.log.Debug("skipping unresolvable identifier",
		"function", fn.String(),
		"field", field,
		"id", id.String())
}
