// Package output writes derived functions and their renderings to files.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"irfuncs/internal/disasm"
	"irfuncs/internal/functions"
	"irfuncs/internal/render"
)

// BlockRecord is one member block of a function.
type BlockRecord struct {
	ID      string `json:"id"`
	Address uint64 `json:"address"`
	Size    uint64 `json:"size"`
	Entry   bool   `json:"entry,omitempty"`
	Exit    bool   `json:"exit,omitempty"`
}

// FunctionRecord is the serialized form of one derived function.
type FunctionRecord struct {
	Module    string        `json:"module"`
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Canonical string        `json:"canonical,omitempty"`
	Names     []string      `json:"names,omitempty"`
	Entries   []uint64      `json:"entries"`
	Exits     []uint64      `json:"exits"`
	Blocks    []BlockRecord `json:"blocks"`
}

// NewFunctionRecord flattens f. Blocks with no address info still appear,
// keyed by identifier.
func NewFunctionRecord(module string, f functions.ReadOnly) FunctionRecord {
	rec := FunctionRecord{
		Module:  module,
		ID:      f.ID().String(),
		Name:    f.DisplayName(),
		Names:   f.Names(),
		Entries: []uint64{},
		Exits:   []uint64{},
		Blocks:  []BlockRecord{},
	}
	if s, ok := f.CanonicalName(); ok {
		rec.Canonical = s.Name()
	}
	for _, b := range f.EntryBlocks() {
		rec.Entries = append(rec.Entries, b.Address())
	}
	for _, b := range f.ExitBlocks() {
		rec.Exits = append(rec.Exits, b.Address())
	}
	for _, b := range f.AllBlocks() {
		rec.Blocks = append(rec.Blocks, BlockRecord{
			ID:      b.ID().String(),
			Address: b.Address(),
			Size:    b.Size(),
			Entry:   f.IsEntry(b),
			Exit:    f.IsExit(b),
		})
	}
	return rec
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL[T any](w io.Writer, recs []T) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("output: encode jsonl: %w", err)
		}
	}
	return bw.Flush()
}

// ReadJSONL decodes every line of r.
func ReadJSONL[T any](r io.Reader) ([]T, error) {
	var out []T
	dec := json.NewDecoder(r)
	for dec.More() {
		var v T
		if err := dec.Decode(&v); err != nil {
			return out, fmt.Errorf("output: decode jsonl record %d: %w", len(out), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteFunctionsJSONL writes records to functions.jsonl.
func WriteFunctionsJSONL(dir string, recs []FunctionRecord) error {
	path := filepath.Join(dir, "functions.jsonl")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteJSONL(f, recs); err != nil {
		return err
	}
	return f.Close()
}

// ModuleSummary describes the functions derived from one module.
type ModuleSummary struct {
	Name      string                `json:"name"`
	ISA       string                `json:"isa,omitempty"`
	Functions int                   `json:"functions"`
	Unnamed   int                   `json:"unnamed"`
	NoExit    int                   `json:"no_exit"`
	Blocks    int                   `json:"blocks"`
	Callgraph render.CallgraphStats `json:"callgraph"`
}

// Summary is the content of summary.json.
type Summary struct {
	Input   string          `json:"input"`
	Modules []ModuleSummary `json:"modules"`
}

// Summarize counts the functions of one module.
func Summarize(name, isa string, fns []functions.ReadOnly, stats render.CallgraphStats) ModuleSummary {
	s := ModuleSummary{Name: name, ISA: isa, Functions: len(fns), Callgraph: stats}
	for _, f := range fns {
		if f.DisplayName() == functions.UnknownName {
			s.Unnamed++
		}
		if len(f.ExitBlocks()) == 0 {
			s.NoExit++
		}
		s.Blocks += len(f.AllBlocks())
	}
	return s
}

// WriteSummaryJSON writes summary.json.
func WriteSummaryJSON(dir string, s Summary) error {
	return writeJSON(filepath.Join(dir, "summary.json"), s)
}

// WriteDOT writes dot/<name>.dot.
func WriteDOT(dir, name, dot string) error {
	return writeFile(filepath.Join(dir, "dot", FileName(name)+".dot"), dot)
}

// WriteASM writes disassembled instructions to asm/<name>.txt.
func WriteASM(dir, name string, insts []disasm.Inst, lookup disasm.SymbolLookup) error {
	return writeFile(filepath.Join(dir, "asm", FileName(name)+".txt"), disasm.Format(insts, lookup))
}

// FileName maps a function label to a portable file name.
func FileName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-', c == '.':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "_"
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
