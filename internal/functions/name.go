package functions

import (
	"strings"

	"github.com/google/uuid"
)

// UnknownName is the display name of a function with no name symbols.
const UnknownName = "<unknown>"

// DisplayName consolidates the names of a function into one string:
//
//	no symbols     "<unknown>"
//	one symbol     its name
//	several        "head (a.k.a other1, other2)"
//
// The head is the canonical symbol when one is designated, otherwise the
// first symbol by (name, identifier). Every other symbol appears once in
// the a.k.a list, in (name, identifier) order, so the result does not depend
// on the order of names.
func DisplayName[S SymbolRef](names []S, canonical S, hasCanonical bool) string {
	syms := uniqueSymbols(names)
	switch len(syms) {
	case 0:
		return UnknownName
	case 1:
		return syms[0].Name()
	}

	sortSymbols(syms)
	head := syms[0]
	if hasCanonical {
		head = canonical
	}

	var b strings.Builder
	b.WriteString(head.Name())
	b.WriteString(" (a.k.a ")
	first := true
	for _, s := range syms {
		if s.ID() == head.ID() {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(s.Name())
		first = false
	}
	b.WriteByte(')')
	return b.String()
}

func uniqueSymbols[S SymbolRef](names []S) []S {
	seen := make(map[uuid.UUID]struct{}, len(names))
	out := make([]S, 0, len(names))
	for _, s := range names {
		if _, dup := seen[s.ID()]; dup {
			continue
		}
		seen[s.ID()] = struct{}{}
		out = append(out, s)
	}
	return out
}
