// Package lift builds IR modules from the function symbols of an ELF image.
//
// Every distinct function address becomes one function: its bytes are
// decoded and split into basic blocks, decoded control transfers become CFG
// edges, and the function entry, block and name tables are filled in.
// Symbols sharing an address all name the same function.
package lift

import (
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"fortio.org/safecast"
	"github.com/google/uuid"

	"irfuncs/internal/disasm"
	"irfuncs/internal/elfx"
	"irfuncs/internal/ir"
)

// Image reads code bytes by virtual address. *elfx.File implements it.
type Image interface {
	ReadBytesAtVA(va uint64, n int) ([]byte, error)
}

// Options controls lifting.
type Options struct {
	Logger *slog.Logger
	// Symbols restricts lifting to functions carrying one of these names.
	// Empty lifts every function. Calls into functions left out still
	// resolve to a symbol node.
	Symbols []string
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Stats counts what a lift produced.
type Stats struct {
	Functions int `json:"functions"`
	Blocks    int `json:"blocks"`
	Edges     int `json:"edges"`
	External  int `json:"external"` // referent-less symbols for unlifted callees
	Skipped   int `json:"skipped"`  // functions whose bytes could not be read
}

// ELF opens path and lifts its function symbols into a new IR holding one
// module named after the file.
func ELF(path string, opts Options) (*ir.IR, Stats, error) {
	f, err := elfx.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	syms, err := f.FuncSymbols()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("lift: %s: %w", path, err)
	}
	x := ir.New()
	m := x.AddModule(filepath.Base(path), f.ISA())
	st, err := Module(m, syms, f, opts)
	if err != nil {
		return nil, st, err
	}
	return x, st, nil
}

type function struct {
	addr   uint64
	size   uint64
	syms   []elfx.FuncSymbol
	blocks []block
}

type block struct {
	cb   *ir.CodeBlock
	flow disasm.Flow // of the last instruction
}

// Module lifts syms into m, which must carry a decodable ISA. syms must be
// sorted by address as returned by elfx.File.FuncSymbols.
func Module(m *ir.Module, syms []elfx.FuncSymbol, img Image, opts Options) (Stats, error) {
	isa, err := disasm.ParseISA(m.ISA())
	if err != nil {
		return Stats{}, fmt.Errorf("lift: module %s: %w", m.Name(), err)
	}
	log := opts.logger().With("module", m.Name())

	var want map[string]bool
	if len(opts.Symbols) > 0 {
		want = make(map[string]bool, len(opts.Symbols))
		for _, name := range opts.Symbols {
			want[name] = true
		}
	}

	var st Stats
	all := group(syms)
	var fns []*function
	entry := make(map[uint64]uuid.UUID)
	for _, fn := range all {
		if want != nil && !slices.ContainsFunc(fn.syms, func(s elfx.FuncSymbol) bool { return want[s.Name] }) {
			continue
		}
		n, err := safecast.Conv[int](fn.size)
		if err != nil {
			return st, fmt.Errorf("lift: %s: %w", fn.syms[0].Name, err)
		}
		data, err := img.ReadBytesAtVA(fn.addr, n)
		if err != nil {
			log.Warn("skipping function", "name", fn.syms[0].Name, "addr", fmt.Sprintf("0x%x", fn.addr), "err", err)
			st.Skipped++
			continue
		}
		insts, err := disasm.Disassemble(data, disasm.Options{ISA: isa, BaseAddr: fn.addr})
		if err != nil {
			return st, err
		}
		if len(insts) == 0 {
			st.Skipped++
			continue
		}
		fn.blocks = split(m, isa, insts)
		entry[fn.addr] = fn.blocks[0].cb.ID()
		fns = append(fns, fn)
		st.Functions++
		st.Blocks += len(fn.blocks)
	}

	// Direct targets naming a function that was not lifted get a
	// referent-less symbol; everything else unresolved goes to proxy,
	// which no node carries.
	byAddr := make(map[uint64]*function, len(all))
	for _, fn := range all {
		byAddr[fn.addr] = fn
	}
	external := make(map[uint64]uuid.UUID)
	proxy := uuid.New()
	resolve := func(f disasm.Flow) uuid.UUID {
		if !f.Direct {
			return proxy
		}
		if id, ok := entry[f.Target]; ok {
			return id
		}
		if id, ok := external[f.Target]; ok {
			return id
		}
		if fn, ok := byAddr[f.Target]; ok {
			id := m.AddSymbol(canonical(fn.syms).Name, uuid.Nil).ID()
			external[f.Target] = id
			st.External++
			return id
		}
		return proxy
	}

	cfg := m.IR().CFG()
	edge := func(from, to uuid.UUID, label ir.EdgeLabel) {
		cfg.AddEdge(from, to, &label)
		st.Edges++
	}
	for _, fn := range fns {
		local := make(map[uint64]uuid.UUID, len(fn.blocks))
		for _, b := range fn.blocks {
			local[b.cb.Address()] = b.cb.ID()
		}
		for i, b := range fn.blocks {
			from, f := b.cb.ID(), b.flow
			switch f.Kind {
			case disasm.FlowCall:
				edge(from, resolve(f), ir.EdgeLabel{Direct: f.Direct, Type: ir.EdgeCall})
			case disasm.FlowReturn:
				edge(from, proxy, ir.EdgeLabel{Type: ir.EdgeReturn})
			case disasm.FlowBranch:
				to, ok := local[f.Target]
				if !f.Direct || !ok {
					to = resolve(f)
				}
				edge(from, to, ir.EdgeLabel{Conditional: f.Cond, Direct: f.Direct, Type: ir.EdgeBranch})
			}
			if f.Falls() && i+1 < len(fn.blocks) {
				edge(from, fn.blocks[i+1].cb.ID(), ir.EdgeLabel{
					Conditional: f.Kind == disasm.FlowBranch,
					Direct:      true,
					Type:        ir.EdgeFallthrough,
				})
			}
		}
	}

	entries, blocks, names := ir.IDSetTable{}, ir.IDSetTable{}, ir.IDTable{}
	for _, fn := range fns {
		id := uuid.New()
		head := fn.blocks[0].cb.ID()
		entries[id] = []uuid.UUID{head}
		ids := make([]uuid.UUID, len(fn.blocks))
		for i, b := range fn.blocks {
			ids[i] = b.cb.ID()
		}
		blocks[id] = ids

		pick := canonical(fn.syms)
		for _, s := range fn.syms {
			sym := m.AddSymbol(s.Name, head)
			if s.Name == pick.Name {
				names[id] = sym.ID()
			}
		}
	}
	aux := m.AuxData()
	aux.SetFunctionEntries(entries)
	aux.SetFunctionBlocks(blocks)
	aux.SetFunctionNames(names)

	log.Info("lifted", "functions", st.Functions, "blocks", st.Blocks, "edges", st.Edges, "skipped", st.Skipped)
	return st, nil
}

// group merges symbols that share an address. The function size is the
// largest size recorded for it.
func group(syms []elfx.FuncSymbol) []*function {
	var out []*function
	for _, s := range syms {
		if n := len(out); n > 0 && out[n-1].addr == s.Addr {
			fn := out[n-1]
			fn.syms = append(fn.syms, s)
			fn.size = max(fn.size, s.Size)
			continue
		}
		out = append(out, &function{addr: s.Addr, size: s.Size, syms: []elfx.FuncSymbol{s}})
	}
	return out
}

// canonical prefers global symbols, then names with fewer leading
// underscores, then the smallest name.
func canonical(syms []elfx.FuncSymbol) elfx.FuncSymbol {
	underscores := func(s string) int { return len(s) - len(strings.TrimLeft(s, "_")) }
	best := syms[0]
	for _, s := range syms[1:] {
		switch {
		case s.Global != best.Global:
			if s.Global {
				best = s
			}
		case underscores(s.Name) != underscores(best.Name):
			if underscores(s.Name) < underscores(best.Name) {
				best = s
			}
		case s.Name < best.Name:
			best = s
		}
	}
	return best
}

// split partitions insts into basic blocks and adds one code block per
// block to m:
//  1. Leaders are the first instruction, direct branch targets inside the
//     function and every instruction after a control transfer.
//  2. Each leader starts a block that runs to the next leader.
//
// Calls end blocks so that the call edge leaves the block holding the call.
func split(m *ir.Module, isa disasm.ISA, insts []disasm.Inst) []block {
	start := insts[0].Addr
	last := insts[len(insts)-1]
	end := last.Addr + uint64(last.Size())

	index := make(map[uint64]int, len(insts))
	for i, inst := range insts {
		index[inst.Addr] = i
	}

	flows := make([]disasm.Flow, len(insts))
	leaders := map[int]bool{0: true}
	for i, inst := range insts {
		f := disasm.Classify(isa, inst)
		flows[i] = f
		if !f.Ends() && f.Kind != disasm.FlowCall {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		if f.Kind == disasm.FlowBranch && f.Direct && f.Target >= start && f.Target < end {
			if idx, ok := index[f.Target]; ok {
				leaders[idx] = true
			}
		}
	}

	sorted := slices.Sorted(maps.Keys(leaders))
	out := make([]block, len(sorted))
	for i, lo := range sorted {
		hi := len(insts)
		if i+1 < len(sorted) {
			hi = sorted[i+1]
		}
		var data []byte
		for _, inst := range insts[lo:hi] {
			data = append(data, inst.Bytes...)
		}
		cb := m.AddCodeBlock(insts[lo].Addr, 0)
		cb.SetBytes(data)
		out[i] = block{cb: cb, flow: flows[hi-1]}
	}
	return out
}
