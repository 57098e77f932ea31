package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"irfuncs/internal/disasm"
	"irfuncs/internal/ir"
	"irfuncs/internal/irfile"
	"irfuncs/internal/lift"
	"irfuncs/internal/output"
	"irfuncs/internal/render"
)

// twoModules builds "app" (arm64, main calls helper) and "lib" (no isa, one
// unnamed function).
func twoModules(t *testing.T) *ir.IR {
	t.Helper()
	color.NoColor = true

	x := ir.New()
	app := x.AddModule("app", "arm64")
	code := make([]byte, 8)
	binary.LittleEndian.PutUint32(code[0:], 0xd503201f) // nop
	binary.LittleEndian.PutUint32(code[4:], 0xd65f03c0) // ret
	mainB := app.AddCodeBlock(0x1000, 0)
	mainB.SetBytes(code)
	helperB := app.AddCodeBlock(0x2000, 0)
	helperB.SetBytes(code[4:])
	mainSym := app.AddSymbol("main", mainB.ID())
	app.AddSymbol("_start", mainB.ID())
	helperSym := app.AddSymbol("helper", helperB.ID())
	x.CFG().AddEdge(mainB.ID(), helperB.ID(), &ir.EdgeLabel{Direct: true, Type: ir.EdgeCall})
	x.CFG().AddEdge(mainB.ID(), uuid.New(), &ir.EdgeLabel{Type: ir.EdgeReturn})
	x.CFG().AddEdge(helperB.ID(), uuid.New(), &ir.EdgeLabel{Type: ir.EdgeReturn})

	fMain, fHelper := uuid.New(), uuid.New()
	app.AuxData().SetFunctionEntries(ir.IDSetTable{fMain: {mainB.ID()}, fHelper: {helperB.ID()}})
	app.AuxData().SetFunctionBlocks(ir.IDSetTable{fMain: {mainB.ID()}, fHelper: {helperB.ID()}})
	app.AuxData().SetFunctionNames(ir.IDTable{fMain: mainSym.ID(), fHelper: helperSym.ID()})

	lib := x.AddModule("lib", "")
	b := lib.AddCodeBlock(0x8000, 4)
	lib.AuxData().SetFunctionEntries(ir.IDSetTable{uuid.New(): {b.ID()}})
	return x
}

func TestDeriveModules(t *testing.T) {
	x := twoModules(t)
	results, err := deriveModules(context.Background(), x, "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].View.Name() != "app" || results[1].View.Name() != "lib" {
		t.Fatalf("results = %+v", results)
	}
	if len(results[0].Funcs) != 2 || len(results[1].Funcs) != 1 {
		t.Errorf("functions = %d/%d", len(results[0].Funcs), len(results[1].Funcs))
	}

	only, err := deriveModules(context.Background(), x, "lib", 1)
	if err != nil || len(only) != 1 {
		t.Errorf("filtered = %d, %v", len(only), err)
	}
	if _, err := deriveModules(context.Background(), x, "nope", 1); err == nil {
		t.Error("unknown module accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := deriveModules(ctx, x, "", 1); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled derive: err = %v", err)
	}
}

func TestFindFunction(t *testing.T) {
	results, err := deriveModules(context.Background(), twoModules(t), "", 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"main (a.k.a _start)", "main", "_start"} {
		_, f, err := findFunction(results, q)
		if err != nil || f.DisplayName() != "main (a.k.a _start)" {
			t.Errorf("findFunction(%q) = %s, %v", q, f.DisplayName(), err)
		}
	}
	want := results[1].Funcs[0]
	if _, f, err := findFunction(results, want.ID().String()); err != nil || f.ID() != want.ID() {
		t.Errorf("by id = %v, %v", f.ID(), err)
	}
	if _, _, err := findFunction(results, "missing"); !errors.Is(err, errFunctionNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestPrintListAndFunction(t *testing.T) {
	results, err := deriveModules(context.Background(), twoModules(t), "", 1)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	printList(&buf, results)
	out := buf.String()
	for _, want := range []string{"app (arm64): 2 functions", "main (a.k.a _start)", "<unknown>", "entries=1 blocks=0 exits=0"} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}

	r, f, err := findFunction(results, "main")
	if err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	printFunction(&buf, r.View, f, disasm.ARM64)
	out = buf.String()
	for _, want := range []string{"canonical: main", "EX 0x1000 size=8", "<main>"} {
		if !strings.Contains(out, want) {
			t.Errorf("show missing %q:\n%s", want, out)
		}
	}
	for _, want := range []string{"nop", "ret"} {
		if !strings.Contains(strings.ToLower(out), want) {
			t.Errorf("show missing %q:\n%s", want, out)
		}
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "prog.yaml")
	if err := irfile.Save(in, twoModules(t)); err != nil {
		t.Fatal(err)
	}
	results, err := loadAndDerive(context.Background(), in, "", 2)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out")
	opts := exportOptions{out: out, theme: render.NASA, maxInsts: 12, asm: true}
	if err := export(in, results, opts); err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{
		"functions.jsonl",
		"summary.json",
		"app/cfg.dot",
		"app/callgraph.dot",
		"app/callgraph_styled.dot",
		"app/dot/main.dot",
		"app/dot/helper.dot",
		"app/asm/main.txt",
		"lib/callgraph.dot",
	} {
		if _, err := os.Stat(filepath.Join(out, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}

	f, err := os.Open(filepath.Join(out, "functions.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := output.ReadJSONL[output.FunctionRecord](f)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("records = %d, want 3", len(recs))
	}

	styled, err := os.ReadFile(filepath.Join(out, "app", "callgraph_styled.dot"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(styled), "n_main -> n_helper") {
		t.Errorf("call edge missing:\n%s", styled)
	}
}

func TestLiftRoundTrip(t *testing.T) {
	if runtime.GOOS != "linux" || (runtime.GOARCH != "arm64" && runtime.GOARCH != "amd64") {
		t.Skipf("no ELF sample on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	self, err := os.Executable()
	if err != nil {
		t.Skip(err)
	}
	x, st, err := lift.ELF(self, lift.Options{Symbols: []string{"runtime.main", "main.main"}})
	if err != nil {
		t.Fatal(err)
	}
	if st.Functions == 0 {
		t.Fatalf("stats = %+v", st)
	}

	out := filepath.Join(t.TempDir(), "self.msgpack")
	if err := irfile.Save(out, x); err != nil {
		t.Fatal(err)
	}
	results, err := loadAndDerive(context.Background(), out, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	_, f, err := findFunction(results, "runtime.main")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.AllBlocks()) == 0 || len(f.ExitBlocks()) == 0 {
		t.Errorf("runtime.main: %s", f)
	}
}

func TestListExportedRecords(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "prog.json")
	if err := irfile.Save(in, twoModules(t)); err != nil {
		t.Fatal(err)
	}
	results, err := loadAndDerive(context.Background(), in, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	if err := export(in, results, exportOptions{out: out, theme: render.NASA, maxInsts: 12}); err != nil {
		t.Fatal(err)
	}

	recs, err := readRecords(filepath.Join(out, "functions.jsonl"), "app")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("app records = %d, want 2", len(recs))
	}
	var buf bytes.Buffer
	printRecords(&buf, recs)
	for _, want := range []string{"app: 2 functions", "main (a.k.a _start)", "entries=1 blocks=1 exits=1"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("records list missing %q:\n%s", want, buf.String())
		}
	}

	if _, err := readRecords(filepath.Join(out, "functions.jsonl"), "nope"); err == nil {
		t.Error("unknown module accepted")
	}
}

func TestFunctionCFGDOT(t *testing.T) {
	results, err := deriveModules(context.Background(), twoModules(t), "app", 1)
	if err != nil {
		t.Fatal(err)
	}
	r, f, err := findFunction(results, "main")
	if err != nil {
		t.Fatal(err)
	}
	dot := functionCFGDOT(r, f)
	if !strings.Contains(dot, "digraph") {
		t.Errorf("not a DOT graph:\n%s", dot)
	}
}
