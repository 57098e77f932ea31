// Package elfx opens arm64 and amd64 ELF images and lists their function
// symbols for lifting into IR modules.
package elfx

import (
	"cmp"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
)

var (
	ErrNotELF     = errors.New("elfx: not an ELF file")
	ErrNot64Bit   = errors.New("elfx: not 64-bit ELF")
	ErrMachine    = errors.New("elfx: unsupported machine")
	ErrNotLoaded  = errors.New("elfx: not an executable or shared object")
	ErrNoSymbols  = errors.New("elfx: no function symbols")
	ErrNoSegment  = errors.New("elfx: no PT_LOAD segment covers address")
	ErrOutOfRange = errors.New("elfx: address maps beyond end of file")
)

// File wraps a debug/elf.File opened from disk.
type File struct {
	ELF  *elf.File
	raw  *os.File
	size int64
}

// Open opens an ELF file and validates it is a 64-bit arm64 or amd64
// executable or shared object.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	fail := func(err error) (*File, error) {
		ef.Close()
		f.Close()
		return nil, err
	}
	if ef.Class != elf.ELFCLASS64 {
		return fail(ErrNot64Bit)
	}
	if ef.Machine != elf.EM_AARCH64 && ef.Machine != elf.EM_X86_64 {
		return fail(fmt.Errorf("%w: %s", ErrMachine, ef.Machine))
	}
	if ef.Type != elf.ET_DYN && ef.Type != elf.ET_EXEC {
		return fail(fmt.Errorf("%w: %s", ErrNotLoaded, ef.Type))
	}

	return &File{ELF: ef, raw: f, size: info.Size()}, nil
}

// Close releases resources.
func (f *File) Close() error {
	f.ELF.Close()
	return f.raw.Close()
}

// ISA names the machine the way IR modules do.
func (f *File) ISA() string {
	if f.ELF.Machine == elf.EM_X86_64 {
		return "amd64"
	}
	return "arm64"
}

// FuncSymbol is a defined STT_FUNC symbol with a non-zero size.
type FuncSymbol struct {
	Name   string
	Addr   uint64
	Size   uint64
	Global bool
}

// FuncSymbols merges .symtab and .dynsym, dropping undefined and zero-sized
// entries and duplicates of the same (name, address). The result is sorted
// by address, then name.
func (f *File) FuncSymbols() ([]FuncSymbol, error) {
	var all []elf.Symbol
	for _, read := range []func() ([]elf.Symbol, error){f.ELF.Symbols, f.ELF.DynamicSymbols} {
		syms, err := read()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			return nil, fmt.Errorf("elfx: symbols: %w", err)
		}
		all = append(all, syms...)
	}

	type key struct {
		name string
		addr uint64
	}
	seen := make(map[key]bool)
	var out []FuncSymbol
	for _, s := range all {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Section == elf.SHN_UNDEF || s.Value == 0 || s.Size == 0 || s.Name == "" {
			continue
		}
		k := key{s.Name, s.Value}
		if seen[k] {
			continue
		}
		seen[k] = true
		bind := elf.ST_BIND(s.Info)
		out = append(out, FuncSymbol{
			Name:   s.Name,
			Addr:   s.Value,
			Size:   s.Size,
			Global: bind == elf.STB_GLOBAL || bind == elf.STB_WEAK,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoSymbols
	}
	slices.SortFunc(out, func(a, b FuncSymbol) int {
		if c := cmp.Compare(a.Addr, b.Addr); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out, nil
}

// VAToFileOffset converts a virtual address to a file offset using PT_LOAD segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va < p.Vaddr+p.Filesz {
			offset := va - p.Vaddr + p.Off
			if offset >= uint64(f.size) {
				return 0, fmt.Errorf("%w: VA 0x%x -> 0x%x (size 0x%x)", ErrOutOfRange, va, offset, f.size)
			}
			return offset, nil
		}
	}
	return 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadBytesAtVA reads up to n bytes starting at the given virtual address.
// The read is clamped to the end of the file.
func (f *File) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	off, err := f.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	avail := f.size - int64(off)
	if int64(n) > avail {
		n = int(avail)
	}
	buf := make([]byte, n)
	if _, err := f.raw.ReadAt(buf, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("elfx: read at 0x%x: %w", off, err)
	}
	return buf, nil
}
