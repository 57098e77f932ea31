package irfile

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"fortio.org/safecast"
	"github.com/google/uuid"

	"irfuncs/internal/ir"
)

// ErrDuplicateID is returned when two nodes of a document share an
// identifier.
var ErrDuplicateID = errors.New("irfile: duplicate node id")

// Load reads the document at path and builds an IR from it.
func Load(path string) (*ir.IR, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	x, err := ToIR(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return x, nil
}

// Save writes x to path in the format implied by the extension.
func Save(path string, x *ir.IR) error {
	return WriteDocument(path, FromIR(x))
}

// ToIR builds an IR from doc. Malformed identifiers, addresses and byte
// strings are errors, as is an identifier carried by more than one node;
// identifiers that are well formed but point nowhere are kept as they are.
func ToIR(doc *Document) (*ir.IR, error) {
	x := ir.New()
	for mi, md := range doc.Modules {
		if err := addModule(x, md); err != nil {
			return nil, fmt.Errorf("irfile: module %d (%s): %w", mi, md.Name, err)
		}
	}
	for i, ed := range doc.CFG {
		from, err := parseID(ed.From)
		if err != nil {
			return nil, fmt.Errorf("irfile: cfg edge %d: from: %w", i, err)
		}
		to, err := parseID(ed.To)
		if err != nil {
			return nil, fmt.Errorf("irfile: cfg edge %d: to: %w", i, err)
		}
		var label *ir.EdgeLabel
		if ed.Label != nil {
			et, err := ir.ParseEdgeType(ed.Label.Type)
			if err != nil {
				return nil, fmt.Errorf("irfile: cfg edge %d: %w", i, err)
			}
			label = &ir.EdgeLabel{
				Conditional: ed.Label.Conditional,
				Direct:      ed.Label.Direct,
				Type:        et,
			}
		}
		x.CFG().AddEdge(from, to, label)
	}
	return x, nil
}

func addModule(x *ir.IR, md ModuleDoc) error {
	var m *ir.Module
	if md.ID == "" {
		m = x.AddModule(md.Name, md.ISA)
	} else {
		id, err := parseID(md.ID)
		if err != nil {
			return fmt.Errorf("id: %w", err)
		}
		if err := fresh(x, id); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		m = x.AddModuleWithID(id, md.Name, md.ISA)
	}

	for i, bd := range md.Blocks {
		if err := addBlock(m, bd); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	for i, sd := range md.Symbols {
		id, err := parseID(sd.ID)
		if err != nil {
			return fmt.Errorf("symbol %d: id: %w", i, err)
		}
		if err := fresh(x, id); err != nil {
			return fmt.Errorf("symbol %d: %w", i, err)
		}
		referent := uuid.Nil
		if sd.Referent != "" {
			if referent, err = parseID(sd.Referent); err != nil {
				return fmt.Errorf("symbol %d: referent: %w", i, err)
			}
		}
		m.AddSymbolWithID(id, sd.Name, referent)
	}

	aux := m.AuxData()
	if md.AuxData.FunctionEntries != nil {
		t, err := parseIDSetTable(md.AuxData.FunctionEntries)
		if err != nil {
			return fmt.Errorf("%s: %w", ir.FunctionEntriesName, err)
		}
		aux.SetFunctionEntries(t)
	}
	if md.AuxData.FunctionBlocks != nil {
		t, err := parseIDSetTable(md.AuxData.FunctionBlocks)
		if err != nil {
			return fmt.Errorf("%s: %w", ir.FunctionBlocksName, err)
		}
		aux.SetFunctionBlocks(t)
	}
	if md.AuxData.FunctionNames != nil {
		t := make(ir.IDTable, len(md.AuxData.FunctionNames))
		for k, v := range md.AuxData.FunctionNames {
			fn, err := parseID(k)
			if err != nil {
				return fmt.Errorf("%s: key: %w", ir.FunctionNamesName, err)
			}
			sym, err := parseID(v)
			if err != nil {
				return fmt.Errorf("%s: %s: %w", ir.FunctionNamesName, k, err)
			}
			t[fn] = sym
		}
		aux.SetFunctionNames(t)
	}
	return nil
}

// fresh fails if id already names a node of x.
func fresh(x *ir.IR, id uuid.UUID) error {
	if n, ok := x.Lookup(id); ok {
		return fmt.Errorf("%w: %s (already a %s)", ErrDuplicateID, id, n.Kind())
	}
	return nil
}

func addBlock(m *ir.Module, bd BlockDoc) error {
	id, err := parseID(bd.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if err := fresh(m.IR(), id); err != nil {
		return err
	}
	addr, err := strconv.ParseUint(bd.Address, 0, 64)
	if err != nil {
		return fmt.Errorf("address %q: %w", bd.Address, err)
	}
	var data []byte
	if bd.Bytes != "" {
		if data, err = hex.DecodeString(bd.Bytes); err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
	}
	size := bd.Size
	if size == 0 && data != nil {
		if size, err = safecast.Conv[uint64](len(data)); err != nil {
			return fmt.Errorf("size: %w", err)
		}
	}
	b := m.AddCodeBlockWithID(id, addr, size)
	if data != nil {
		b.SetBytes(data)
		b.SetSize(size)
	}
	return nil
}

func parseIDSetTable(in map[string][]string) (ir.IDSetTable, error) {
	t := make(ir.IDSetTable, len(in))
	for k, vs := range in {
		fn, err := parseID(k)
		if err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
		ids := make([]uuid.UUID, 0, len(vs))
		for _, v := range vs {
			id, err := parseID(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			ids = append(ids, id)
		}
		t[fn] = ids
	}
	return t, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad uuid %q: %w", s, err)
	}
	return id, nil
}

// FromIR converts x into a document. Maps are emitted with sorted keys and
// sorted value lists so that encoding the same IR twice gives the same bytes.
func FromIR(x *ir.IR) *Document {
	doc := &Document{}
	for _, m := range x.Modules() {
		md := ModuleDoc{
			ID:   m.ID().String(),
			Name: m.Name(),
			ISA:  m.ISA(),
		}
		for _, b := range m.CodeBlocks() {
			bd := BlockDoc{
				ID:      b.ID().String(),
				Address: fmt.Sprintf("0x%x", b.Address()),
				Size:    b.Size(),
			}
			if data := b.Bytes(); data != nil {
				bd.Bytes = hex.EncodeToString(data)
			}
			md.Blocks = append(md.Blocks, bd)
		}
		for _, s := range m.Symbols() {
			sd := SymbolDoc{ID: s.ID().String(), Name: s.Name()}
			if ref, ok := s.Referent(); ok {
				sd.Referent = ref.String()
			}
			md.Symbols = append(md.Symbols, sd)
		}
		aux := m.Facts()
		if t, ok := ir.FunctionEntries(aux); ok {
			md.AuxData.FunctionEntries = formatIDSetTable(t)
		}
		if t, ok := ir.FunctionBlocks(aux); ok {
			md.AuxData.FunctionBlocks = formatIDSetTable(t)
		}
		if t, ok := ir.FunctionNames(aux); ok {
			md.AuxData.FunctionNames = make(map[string]string, len(t))
			for k, v := range t {
				md.AuxData.FunctionNames[k.String()] = v.String()
			}
		}
		doc.Modules = append(doc.Modules, md)
	}
	for _, e := range x.CFG().Edges() {
		ed := EdgeDoc{From: e.From.String(), To: e.To.String()}
		if e.Label != nil {
			ed.Label = &LabelDoc{
				Type:        e.Label.Type.String(),
				Conditional: e.Label.Conditional,
				Direct:      e.Label.Direct,
			}
		}
		doc.CFG = append(doc.CFG, ed)
	}
	return doc
}

func formatIDSetTable(t ir.IDSetTable) map[string][]string {
	out := make(map[string][]string, len(t))
	for k, ids := range t {
		vs := make([]string, len(ids))
		for i, id := range ids {
			vs[i] = id.String()
		}
		sort.Strings(vs)
		out[k.String()] = vs
	}
	return out
}
