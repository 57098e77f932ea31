package functions

import (
	"sort"

	"github.com/google/uuid"

	"irfuncs/internal/ir"
)

// facts is the typed view of the three function tables. A table missing
// from the module is a nil map and reads as empty.
type facts struct {
	entries ir.IDSetTable
	blocks  ir.IDSetTable
	names   ir.IDTable
}

func loadFacts(r ir.AuxDataReader) facts {
	var f facts
	f.entries, _ = ir.FunctionEntries(r)
	f.blocks, _ = ir.FunctionBlocks(r)
	f.names, _ = ir.FunctionNames(r)
	return f
}

// functionIDs returns the keys of the entry table in bytewise order.
func (f facts) functionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ir.Less(ids[i], ids[j]) })
}
