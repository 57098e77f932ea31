package ir

import (
	"sort"

	"github.com/google/uuid"
)

// Aux data schema names for function facts.
const (
	FunctionEntriesName = "functionEntries"
	FunctionBlocksName  = "functionBlocks"
	FunctionNamesName   = "functionNames"
)

// IDSetTable maps a key to a set of identifiers. Duplicates within a value
// carry no meaning.
type IDSetTable map[uuid.UUID][]uuid.UUID

// IDTable maps a key to a single identifier.
type IDTable map[uuid.UUID]uuid.UUID

// AuxDataReader is read access to a module's aux data.
type AuxDataReader interface {
	Get(name string) (any, bool)
}

// AuxData holds named side tables attached to a module. Tables are stored
// and replaced independently.
type AuxData struct {
	tables map[string]any
}

func newAuxData() *AuxData {
	return &AuxData{tables: make(map[string]any)}
}

// Get returns the table stored under name.
func (a *AuxData) Get(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.tables[name]
	return v, ok
}

// Set stores v under name, replacing any previous table.
func (a *AuxData) Set(name string, v any) { a.tables[name] = v }

// Delete removes the table stored under name.
func (a *AuxData) Delete(name string) { delete(a.tables, name) }

// Names returns the stored table names in sorted order.
func (a *AuxData) Names() []string {
	names := make([]string, 0, len(a.tables))
	for name := range a.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetFunctionEntries stores the function-id to entry-block-ids table.
func (a *AuxData) SetFunctionEntries(t IDSetTable) { a.Set(FunctionEntriesName, t) }

// SetFunctionBlocks stores the function-id to block-ids table.
func (a *AuxData) SetFunctionBlocks(t IDSetTable) { a.Set(FunctionBlocksName, t) }

// SetFunctionNames stores the function-id to canonical-name-symbol table.
func (a *AuxData) SetFunctionNames(t IDTable) { a.Set(FunctionNamesName, t) }

// FunctionEntries returns the entry table. A table stored with a different
// type reads as absent.
func FunctionEntries(r AuxDataReader) (IDSetTable, bool) {
	return getTable[IDSetTable](r, FunctionEntriesName)
}

// FunctionBlocks returns the block-set table.
func FunctionBlocks(r AuxDataReader) (IDSetTable, bool) {
	return getTable[IDSetTable](r, FunctionBlocksName)
}

// FunctionNames returns the canonical-name table.
func FunctionNames(r AuxDataReader) (IDTable, bool) {
	return getTable[IDTable](r, FunctionNamesName)
}

func getTable[T any](r AuxDataReader, name string) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	v, ok := r.Get(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
