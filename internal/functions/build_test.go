package functions

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"irfuncs/internal/ir"
)

// fixture is a module with six one-byte blocks at 0x1000..0x1005 and the
// CFG used by the two-function example:
//
//	b0 -> b1 fallthrough
//	b0 -> b2 branch
//	b1 -> b2 fallthrough
//	b2 -> b3 return
//	b4 -> b5 return
type fixture struct {
	ir      *ir.IR
	mod     *ir.Module
	blocks  []*ir.CodeBlock
	entries ir.IDSetTable
	fblocks ir.IDSetTable
	names   ir.IDTable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	x := ir.New()
	m := x.AddModule("example", "arm64")
	f := &fixture{
		ir:      x,
		mod:     m,
		entries: ir.IDSetTable{},
		fblocks: ir.IDSetTable{},
		names:   ir.IDTable{},
	}
	for i := 0; i < 6; i++ {
		f.blocks = append(f.blocks, m.AddCodeBlock(0x1000+uint64(i), 1))
	}
	f.edge(0, 1, ir.EdgeFallthrough)
	f.edge(0, 2, ir.EdgeBranch)
	f.edge(1, 2, ir.EdgeFallthrough)
	f.edge(2, 3, ir.EdgeReturn)
	f.edge(4, 5, ir.EdgeReturn)
	return f
}

func (f *fixture) edge(src, dst int, et ir.EdgeType) {
	f.ir.CFG().AddEdge(f.blocks[src].ID(), f.blocks[dst].ID(), &ir.EdgeLabel{
		Conditional: et == ir.EdgeBranch,
		Direct:      true,
		Type:        et,
	})
}

// function records a function with the given entry and member blocks and a
// canonical name symbol on the first entry.
func (f *fixture) function(name string, entries, blocks []int) uuid.UUID {
	id := uuid.New()
	for _, e := range entries {
		f.entries[id] = append(f.entries[id], f.blocks[e].ID())
	}
	for _, b := range blocks {
		f.fblocks[id] = append(f.fblocks[id], f.blocks[b].ID())
	}
	sym := f.mod.AddSymbol(name, f.blocks[entries[0]].ID())
	f.names[id] = sym.ID()
	return id
}

func (f *fixture) commit() {
	aux := f.mod.AuxData()
	aux.SetFunctionEntries(f.entries)
	aux.SetFunctionBlocks(f.fblocks)
	aux.SetFunctionNames(f.names)
}

func byID[B BlockRef, S SymbolRef](fns []Function[B, S]) map[uuid.UUID]Function[B, S] {
	m := make(map[uuid.UUID]Function[B, S], len(fns))
	for _, fn := range fns {
		m[fn.ID()] = fn
	}
	return m
}

func blockAddrs[B BlockRef](blocks []B) []uint64 {
	out := make([]uint64, len(blocks))
	for i, b := range blocks {
		out[i] = b.Address()
	}
	return out
}

func equalAddrs(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuildTwoFunctions(t *testing.T) {
	f := newFixture(t)
	f1 := f.function("f1", []int{0}, []int{0, 1, 2})
	f2 := f.function("f2", []int{4}, []int{4, 5})
	f.commit()

	fns := BuildMutable(f.mod, Options{})
	if len(fns) != 2 {
		t.Fatalf("functions = %d, want 2", len(fns))
	}
	got := byID(fns)

	fn1, ok := got[f1]
	if !ok {
		t.Fatal("f1 missing")
	}
	if fn1.DisplayName() != "f1" {
		t.Errorf("f1 name = %q", fn1.DisplayName())
	}
	if a := blockAddrs(fn1.EntryBlocks()); !equalAddrs(a, []uint64{0x1000}) {
		t.Errorf("f1 entries = %x", a)
	}
	if a := blockAddrs(fn1.AllBlocks()); !equalAddrs(a, []uint64{0x1000, 0x1001, 0x1002}) {
		t.Errorf("f1 blocks = %x", a)
	}
	// Only b2 returns; b0 and b1 branch or fall through inside the function.
	if a := blockAddrs(fn1.ExitBlocks()); !equalAddrs(a, []uint64{0x1002}) {
		t.Errorf("f1 exits = %x, want [1002]", a)
	}
	canon, ok := fn1.CanonicalName()
	if !ok || canon.Name() != "f1" {
		t.Errorf("f1 canonical = %v, %v", canon, ok)
	}

	fn2 := got[f2]
	if a := blockAddrs(fn2.ExitBlocks()); !equalAddrs(a, []uint64{0x1004}) {
		t.Errorf("f2 exits = %x, want [1004]", a)
	}
	if fn2.DisplayName() != "f2" {
		t.Errorf("f2 name = %q", fn2.DisplayName())
	}
}

func TestBuildCallOutsideIsExit(t *testing.T) {
	// b4 calls b5, which is outside the function.
	x := ir.New()
	m := x.AddModule("m", "")
	b4 := m.AddCodeBlock(0x40, 4)
	b5 := m.AddCodeBlock(0x50, 4)
	x.CFG().AddEdge(b4.ID(), b5.ID(), &ir.EdgeLabel{Direct: true, Type: ir.EdgeCall})

	fn := uuid.New()
	m.AuxData().SetFunctionEntries(ir.IDSetTable{fn: {b4.ID()}})
	m.AuxData().SetFunctionBlocks(ir.IDSetTable{fn: {b4.ID()}})

	fns := BuildMutable(m, Options{})
	if len(fns) != 1 {
		t.Fatalf("functions = %d, want 1", len(fns))
	}
	exits := fns[0].ExitBlocks()
	if len(exits) != 1 || exits[0] != b4 {
		t.Errorf("exits = %v, want [b4]", exits)
	}
	if fns[0].DisplayName() != UnknownName {
		t.Errorf("name = %q, want %q", fns[0].DisplayName(), UnknownName)
	}
}

func TestBuildAliasedNames(t *testing.T) {
	// f3 is canonical, f4 aliases the same entry.
	f := newFixture(t)
	id := f.function("f3", []int{0}, []int{0, 1, 2})
	f.mod.AddSymbol("f4", f.blocks[0].ID())
	f.commit()

	fns := BuildMutable(f.mod, Options{})
	if got := fns[0].DisplayName(); got != "f3 (a.k.a f4)" {
		t.Errorf("name = %q, want %q", got, "f3 (a.k.a f4)")
	}
	if fns[0].ID() != id {
		t.Errorf("id = %s, want %s", fns[0].ID(), id)
	}
	names := fns[0].Names()
	if len(names) != 2 || names[0] != "f3" || names[1] != "f4" {
		t.Errorf("names = %v", names)
	}
}

func TestBuildSkipsUnresolvableEntries(t *testing.T) {
	// One entry id is unknown, another names a symbol.
	f := newFixture(t)
	id := f.function("f1", []int{0}, []int{0, 1, 2})
	sym := f.mod.AddSymbol("not-a-block", uuid.Nil)
	f.entries[id] = append(f.entries[id], uuid.New(), sym.ID())
	f.fblocks[id] = append(f.fblocks[id], uuid.New())
	f.commit()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fns := BuildMutable(f.mod, Options{Logger: logger})
	if len(fns) != 1 {
		t.Fatalf("functions = %d, want 1", len(fns))
	}
	if a := blockAddrs(fns[0].EntryBlocks()); !equalAddrs(a, []uint64{0x1000}) {
		t.Errorf("entries = %x, want [1000]", a)
	}
	if n := len(fns[0].AllBlocks()); n != 3 {
		t.Errorf("blocks = %d, want 3", n)
	}
	if n := strings.Count(logBuf.String(), "skipping unresolvable identifier"); n != 3 {
		t.Errorf("skip records = %d, want 3\n%s", n, logBuf.String())
	}
}

func TestBuildKeepsFunctionWithNothingResolved(t *testing.T) {
	x := ir.New()
	m := x.AddModule("m", "")
	fn := uuid.New()
	m.AuxData().SetFunctionEntries(ir.IDSetTable{fn: {uuid.New()}})
	m.AuxData().SetFunctionBlocks(ir.IDSetTable{fn: {uuid.New()}})
	m.AuxData().SetFunctionNames(ir.IDTable{fn: uuid.New()})

	fns := BuildMutable(m, Options{})
	if len(fns) != 1 || fns[0].ID() != fn {
		t.Fatalf("functions = %v", fns)
	}
	got := fns[0]
	if got.EntryBlocks() != nil || got.AllBlocks() != nil || got.ExitBlocks() != nil || got.NameSymbols() != nil {
		t.Errorf("expected empty sets, got %s", got)
	}
	if _, ok := got.CanonicalName(); ok {
		t.Error("canonical name should be absent")
	}
	if got.DisplayName() != UnknownName {
		t.Errorf("name = %q", got.DisplayName())
	}
}

func TestBuildMissingBlockTable(t *testing.T) {
	f := newFixture(t)
	id := f.function("f1", []int{0}, nil)
	f.mod.AuxData().SetFunctionEntries(f.entries)

	fns := BuildMutable(f.mod, Options{})
	if len(fns) != 1 {
		t.Fatalf("functions = %d, want 1", len(fns))
	}
	got := fns[0]
	if got.ID() != id {
		t.Errorf("id = %s", got.ID())
	}
	if len(got.AllBlocks()) != 0 || len(got.ExitBlocks()) != 0 {
		t.Errorf("blocks/exits should be empty: %s", got)
	}
	if len(got.EntryBlocks()) != 1 || len(got.NameSymbols()) != 1 {
		t.Errorf("entries/names should resolve: %s", got)
	}
	// No names table: the canonical name is absent but the single symbol
	// still names the function.
	if _, ok := got.CanonicalName(); ok {
		t.Error("canonical name should be absent without a names table")
	}
	if got.DisplayName() != "f1" {
		t.Errorf("name = %q", got.DisplayName())
	}
}

func TestBuildNoEntryTable(t *testing.T) {
	x := ir.New()
	m := x.AddModule("m", "")
	m.AuxData().SetFunctionBlocks(ir.IDSetTable{uuid.New(): {uuid.New()}})
	if fns := BuildMutable(m, Options{}); len(fns) != 0 {
		t.Errorf("functions = %d, want 0", len(fns))
	}
}

func TestBuildEntryOutsideBlockSetIsNeverExit(t *testing.T) {
	// b4 returns, but it is only listed as an entry.
	f := newFixture(t)
	f.function("f", []int{4}, []int{5})
	f.commit()

	fns := BuildMutable(f.mod, Options{})
	if exits := fns[0].ExitBlocks(); len(exits) != 0 {
		t.Errorf("exits = %v, want none", blockAddrs(exits))
	}
}

func TestBuildDeterministic(t *testing.T) {
	f := newFixture(t)
	f.function("f1", []int{0}, []int{0, 1, 2})
	f.function("f2", []int{4}, []int{4, 5})
	f.mod.AddSymbol("zz", f.blocks[4].ID())
	f.mod.AddSymbol("aa", f.blocks[4].ID())
	f.commit()

	first := BuildMutable(f.mod, Options{})
	for i := 0; i < 20; i++ {
		again := BuildMutable(f.mod, Options{})
		if len(again) != len(first) {
			t.Fatalf("run %d: %d functions, want %d", i, len(again), len(first))
		}
		for j := range first {
			if first[j].String() != again[j].String() {
				t.Fatalf("run %d: %s != %s", i, again[j], first[j])
			}
		}
	}
}

func TestBuildInvariants(t *testing.T) {
	f := newFixture(t)
	f.function("f1", []int{0}, []int{0, 1, 2})
	f.function("f2", []int{4}, []int{4, 5})
	f.function("g", []int{1, 2}, []int{1, 2, 3})
	f.mod.AddSymbol("g2", f.blocks[2].ID())
	f.commit()

	for _, fn := range BuildMutable(f.mod, Options{}) {
		for _, b := range fn.ExitBlocks() {
			if !fn.HasBlock(b) {
				t.Errorf("%s: exit 0x%x not in block set", fn.DisplayName(), b.Address())
			}
			if !fn.IsExit(b) {
				t.Errorf("%s: IsExit(0x%x) = false", fn.DisplayName(), b.Address())
			}
		}
		n := len(fn.NameSymbols())
		switch {
		case n == 0 && fn.DisplayName() != UnknownName:
			t.Errorf("no symbols but name %q", fn.DisplayName())
		case n == 1 && fn.DisplayName() != fn.NameSymbols()[0].Name():
			t.Errorf("one symbol but name %q", fn.DisplayName())
		case n > 1 && !strings.Contains(fn.DisplayName(), " (a.k.a "):
			t.Errorf("%d symbols but name %q", n, fn.DisplayName())
		}
	}
}

func TestBuildReadOnlyMatchesMutable(t *testing.T) {
	f := newFixture(t)
	f.function("f1", []int{0}, []int{0, 1, 2})
	f.function("f2", []int{4}, []int{4, 5})
	f.mod.AddSymbol("f2_alias", f.blocks[4].ID())
	f.commit()

	mut := BuildMutable(f.mod, Options{})
	ro := BuildReadOnly(f.mod.View(), Options{})
	narrowed := NarrowAll(mut)
	if len(ro) != len(mut) {
		t.Fatalf("read-only = %d, mutable = %d", len(ro), len(mut))
	}
	for i := range ro {
		if ro[i].String() != mut[i].String() {
			t.Errorf("read-only %s != mutable %s", ro[i], mut[i])
		}
		if ro[i].String() != narrowed[i].String() {
			t.Errorf("read-only %s != narrowed %s", ro[i], narrowed[i])
		}
		roCanon, ok1 := ro[i].CanonicalName()
		nCanon, ok2 := narrowed[i].CanonicalName()
		if ok1 != ok2 || roCanon != nCanon {
			t.Errorf("canonical mismatch: %v/%v vs %v/%v", roCanon, ok1, nCanon, ok2)
		}
		for j, b := range ro[i].ExitBlocks() {
			if b != narrowed[i].ExitBlocks()[j] {
				t.Errorf("exit %d differs", j)
			}
		}
	}
}

func TestMutableReferencesAllowMutation(t *testing.T) {
	f := newFixture(t)
	f.function("f1", []int{0}, []int{0, 1, 2})
	f.commit()

	fn := BuildMutable(f.mod, Options{})[0]
	fn.NameSymbols()[0].SetName("renamed")
	fn.EntryBlocks()[0].SetSize(8)

	if f.blocks[0].Size() != 8 {
		t.Errorf("size = %d, want 8", f.blocks[0].Size())
	}
	// The display name was computed at derivation time.
	if fn.DisplayName() != "f1" {
		t.Errorf("display name = %q, want snapshot value f1", fn.DisplayName())
	}
	if fn.Names()[0] != "renamed" {
		t.Errorf("names = %v", fn.Names())
	}
}

func TestFunctionString(t *testing.T) {
	f := newFixture(t)
	id := f.function("f1", []int{0}, []int{2, 0, 1})
	f.commit()

	fn := BuildMutable(f.mod, Options{})[0]
	want := "[UUID=" + id.String() + ", Name=f1, Entry=[0x1000], Exit=[0x1002], All=[0x1000, 0x1001, 0x1002]]"
	if fn.String() != want {
		t.Errorf("String() = %s\nwant %s", fn, want)
	}
}
