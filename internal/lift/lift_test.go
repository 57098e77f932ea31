package lift

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"testing"

	"irfuncs/internal/callgraph"
	"irfuncs/internal/elfx"
	"irfuncs/internal/functions"
	"irfuncs/internal/ir"
)

// image maps function addresses to code.
type image map[uint64][]byte

func (img image) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	data, ok := img[va]
	if !ok {
		return nil, fmt.Errorf("unmapped 0x%x", va)
	}
	return data[:min(n, len(data))], nil
}

func words(ws ...uint32) []byte {
	out := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

// program is arm64:
//
//	main   0x1000: cbz x0, 0x1008; bl helper; bl ext; nop; ret
//	helper 0x2000: ret (alias _helper)
//	ext    0x3000: ret
//	gone   0x4000: unreadable
func program() ([]elfx.FuncSymbol, image) {
	syms := []elfx.FuncSymbol{
		{Name: "main", Addr: 0x1000, Size: 20, Global: true},
		{Name: "_helper", Addr: 0x2000, Size: 4},
		{Name: "helper", Addr: 0x2000, Size: 4, Global: true},
		{Name: "ext", Addr: 0x3000, Size: 4, Global: true},
		{Name: "gone", Addr: 0x4000, Size: 4, Global: true},
	}
	img := image{
		0x1000: words(0xb4000040, 0x940003ff, 0x940007fe, 0xd503201f, 0xd65f03c0),
		0x2000: words(0xd65f03c0),
		0x3000: words(0xd65f03c0),
	}
	return syms, img
}

func byName(t *testing.T, fns []functions.Mutable, name string) functions.Mutable {
	t.Helper()
	for _, f := range fns {
		if slices.Contains(f.Names(), name) {
			return f
		}
	}
	t.Fatalf("no function named %s", name)
	return functions.Mutable{}
}

func addrs(blocks []*ir.CodeBlock) []uint64 {
	out := make([]uint64, len(blocks))
	for i, b := range blocks {
		out[i] = b.Address()
	}
	return out
}

func TestModule(t *testing.T) {
	syms, img := program()
	x := ir.New()
	m := x.AddModule("prog", "arm64")
	st, err := Module(m, syms, img, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if st.Functions != 3 || st.Blocks != 6 || st.Skipped != 1 || st.External != 0 {
		t.Errorf("stats = %+v", st)
	}

	fns := functions.BuildMutable(m, functions.Options{})
	if len(fns) != 3 {
		t.Fatalf("functions = %d, want 3", len(fns))
	}

	main := byName(t, fns, "main")
	if got, want := addrs(main.AllBlocks()), []uint64{0x1000, 0x1004, 0x1008, 0x100c}; !slices.Equal(got, want) {
		t.Errorf("main blocks = %#x, want %#x", got, want)
	}
	// Both calls leave the function and the last block returns.
	if got, want := addrs(main.ExitBlocks()), []uint64{0x1004, 0x1008, 0x100c}; !slices.Equal(got, want) {
		t.Errorf("main exits = %#x, want %#x", got, want)
	}
	if last := main.AllBlocks()[3]; last.Size() != 8 {
		t.Errorf("last block size = %d, want 8", last.Size())
	}

	helper := byName(t, fns, "_helper")
	if got := helper.DisplayName(); got != "helper (a.k.a _helper)" {
		t.Errorf("helper display = %q", got)
	}
}

func TestModuleEdges(t *testing.T) {
	syms, img := program()
	x := ir.New()
	m := x.AddModule("prog", "arm64")
	if _, err := Module(m, syms, img, Options{}); err != nil {
		t.Fatal(err)
	}
	main := byName(t, functions.BuildMutable(m, functions.Options{}), "main")
	head := main.EntryBlocks()[0]

	var kinds []string
	for _, e := range x.CFG().Successors(head.ID()) {
		kinds = append(kinds, fmt.Sprintf("%s cond=%v", e.Label.Type, e.Label.Conditional))
	}
	want := []string{"branch cond=true", "fallthrough cond=true"}
	if !slices.Equal(kinds, want) {
		t.Errorf("entry edges = %v, want %v", kinds, want)
	}
}

func TestModuleSymbolFilter(t *testing.T) {
	syms, img := program()
	x := ir.New()
	m := x.AddModule("prog", "arm64")
	st, err := Module(m, syms, img, Options{Symbols: []string{"main", "helper"}})
	if err != nil {
		t.Fatal(err)
	}
	if st.Functions != 2 || st.External != 1 {
		t.Errorf("stats = %+v", st)
	}

	fns := functions.NarrowAll(functions.BuildMutable(m, functions.Options{}))
	g := callgraph.BuildCallGraph(m.View(), fns)
	var edges []string
	for _, e := range g.Edges {
		edges = append(edges, e.Caller+"->"+e.Callee)
	}
	slices.Sort(edges)
	if want := []string{"main->ext", "main->helper"}; !slices.Equal(edges, want) {
		t.Errorf("call edges = %v, want %v", edges, want)
	}
}

func TestModuleUnsupportedISA(t *testing.T) {
	x := ir.New()
	m := x.AddModule("prog", "mips")
	if _, err := Module(m, nil, image{}, Options{}); err == nil {
		t.Fatal("mips accepted")
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		syms []elfx.FuncSymbol
		want string
	}{
		{[]elfx.FuncSymbol{{Name: "b"}, {Name: "a"}}, "a"},
		{[]elfx.FuncSymbol{{Name: "a"}, {Name: "z", Global: true}}, "z"},
		{[]elfx.FuncSymbol{{Name: "__write", Global: true}, {Name: "write", Global: true}}, "write"},
	}
	for _, tt := range tests {
		if got := canonical(tt.syms).Name; got != tt.want {
			t.Errorf("canonical(%v) = %s, want %s", tt.syms, got, tt.want)
		}
	}
}

func TestELFSelf(t *testing.T) {
	if runtime.GOOS != "linux" || (runtime.GOARCH != "arm64" && runtime.GOARCH != "amd64") {
		t.Skipf("no ELF sample on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	path, err := os.Executable()
	if err != nil {
		t.Skip(err)
	}
	x, st, err := ELF(path, Options{Symbols: []string{"runtime.main"}})
	if err != nil {
		t.Fatal(err)
	}
	if st.Functions != 1 || st.Blocks == 0 {
		t.Fatalf("stats = %+v", st)
	}
	m := x.Modules()[0]
	if m.ISA() != runtime.GOARCH {
		t.Errorf("isa = %q", m.ISA())
	}
	fns := functions.BuildMutable(m, functions.Options{})
	if len(fns) != 1 || fns[0].DisplayName() != "runtime.main" {
		t.Fatalf("functions = %v", fns)
	}
	if len(fns[0].ExitBlocks()) == 0 {
		t.Error("runtime.main has no exit blocks")
	}
}

func TestELFRejectsNonELF(t *testing.T) {
	path := t.TempDir() + "/junk"
	if err := os.WriteFile(path, []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ELF(path, Options{}); !errors.Is(err, elfx.ErrNotELF) {
		t.Errorf("err = %v, want ErrNotELF", err)
	}
}
