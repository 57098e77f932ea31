// Package irfile reads and writes IR documents: modules with their code
// blocks, symbols and function aux data, plus the CFG.
//
// The same document shape is encoded as JSON, YAML or msgpack; the format is
// picked from the file extension.
package irfile

// Document is the serialized form of an IR.
type Document struct {
	Modules []ModuleDoc `json:"modules" yaml:"modules" msgpack:"modules"`
	CFG     []EdgeDoc   `json:"cfg,omitempty" yaml:"cfg,omitempty" msgpack:"cfg,omitempty"`
}

// ModuleDoc is one module.
type ModuleDoc struct {
	ID      string      `json:"id,omitempty" yaml:"id,omitempty" msgpack:"id,omitempty"`
	Name    string      `json:"name" yaml:"name" msgpack:"name"`
	ISA     string      `json:"isa,omitempty" yaml:"isa,omitempty" msgpack:"isa,omitempty"`
	Blocks  []BlockDoc  `json:"blocks,omitempty" yaml:"blocks,omitempty" msgpack:"blocks,omitempty"`
	Symbols []SymbolDoc `json:"symbols,omitempty" yaml:"symbols,omitempty" msgpack:"symbols,omitempty"`
	AuxData AuxDataDoc  `json:"aux_data" yaml:"aux_data" msgpack:"aux_data"`
}

// BlockDoc is one code block. Address is "0x"-prefixed hex; Bytes is plain
// hex. Size defaults to the byte count when omitted.
type BlockDoc struct {
	ID      string `json:"id" yaml:"id" msgpack:"id"`
	Address string `json:"address" yaml:"address" msgpack:"address"`
	Size    uint64 `json:"size,omitempty" yaml:"size,omitempty" msgpack:"size,omitempty"`
	Bytes   string `json:"bytes,omitempty" yaml:"bytes,omitempty" msgpack:"bytes,omitempty"`
}

// SymbolDoc is one symbol. Referent is empty for symbols that refer to
// nothing.
type SymbolDoc struct {
	ID       string `json:"id" yaml:"id" msgpack:"id"`
	Name     string `json:"name" yaml:"name" msgpack:"name"`
	Referent string `json:"referent,omitempty" yaml:"referent,omitempty" msgpack:"referent,omitempty"`
}

// AuxDataDoc holds the function tables. A nil map means the table is absent
// from the module.
type AuxDataDoc struct {
	FunctionEntries map[string][]string `json:"functionEntries,omitempty" yaml:"functionEntries,omitempty" msgpack:"functionEntries,omitempty"`
	FunctionBlocks  map[string][]string `json:"functionBlocks,omitempty" yaml:"functionBlocks,omitempty" msgpack:"functionBlocks,omitempty"`
	FunctionNames   map[string]string   `json:"functionNames,omitempty" yaml:"functionNames,omitempty" msgpack:"functionNames,omitempty"`
}

// EdgeDoc is one CFG edge. Label is nil for unlabeled edges.
type EdgeDoc struct {
	From  string    `json:"from" yaml:"from" msgpack:"from"`
	To    string    `json:"to" yaml:"to" msgpack:"to"`
	Label *LabelDoc `json:"label,omitempty" yaml:"label,omitempty" msgpack:"label,omitempty"`
}

// LabelDoc is a CFG edge label. Type is one of branch, call, fallthrough,
// return, syscall, sysret.
type LabelDoc struct {
	Type        string `json:"type" yaml:"type" msgpack:"type"`
	Conditional bool   `json:"conditional,omitempty" yaml:"conditional,omitempty" msgpack:"conditional,omitempty"`
	Direct      bool   `json:"direct,omitempty" yaml:"direct,omitempty" msgpack:"direct,omitempty"`
}
