// Package disasm decodes the raw bytes of code blocks for display.
//
// arm64 and amd64 are supported. Decoding never fails: bytes that do not
// decode are emitted as data directives so the output always covers the
// whole input.
package disasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// ISA selects the decoder.
type ISA int

const (
	ARM64 ISA = iota + 1
	AMD64
)

func (i ISA) String() string {
	switch i {
	case ARM64:
		return "arm64"
	case AMD64:
		return "amd64"
	}
	return fmt.Sprintf("isa(%d)", int(i))
}

// ErrUnsupportedISA is returned by ParseISA for names with no decoder.
var ErrUnsupportedISA = errors.New("disasm: unsupported isa")

// ParseISA maps a module ISA name to a decoder.
func ParseISA(s string) (ISA, error) {
	switch strings.ToLower(s) {
	case "arm64", "aarch64":
		return ARM64, nil
	case "amd64", "x86_64", "x86-64", "x64":
		return AMD64, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedISA, s)
}

// Inst is a decoded instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Bytes    []byte
	Mnemonic string
	Operands string
	Text     string // full disassembly line
}

// Size is the encoded length in bytes.
func (i Inst) Size() int { return len(i.Bytes) }

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	ISA      ISA
	BaseAddr uint64       // VA of the first byte in data
	MaxSteps int          // maximum instructions to decode; 0 = 1M
	Symbols  SymbolLookup // optional; names direct branch targets on amd64
}

const defaultMaxSteps = 1_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes instructions from data up to MaxSteps or end of data.
func Disassemble(data []byte, opts Options) ([]Inst, error) {
	switch opts.ISA {
	case ARM64:
		return disassembleARM64(data, opts), nil
	case AMD64:
		return disassembleAMD64(data, opts), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedISA, opts.ISA)
}

func disassembleARM64(data []byte, opts Options) []Inst {
	n := min(len(data)/4, opts.effectiveMax())
	result := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		raw := data[off : off+4]
		inst := Inst{Addr: opts.BaseAddr + uint64(off), Bytes: raw}

		dec, err := arm64asm.Decode(raw)
		if err != nil {
			inst.Mnemonic = ".word"
			inst.Operands = fmt.Sprintf("0x%08x", binary.LittleEndian.Uint32(raw))
			inst.Text = inst.Mnemonic + " " + inst.Operands
		} else {
			inst.Text = dec.String()
			inst.Mnemonic, inst.Operands = split(inst.Text)
		}
		result = append(result, inst)
	}
	return result
}

func disassembleAMD64(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	var symname func(uint64) (string, uint64)
	if opts.Symbols != nil {
		symname = func(addr uint64) (string, uint64) {
			if name, ok := opts.Symbols(addr); ok {
				return name, addr
			}
			return "", 0
		}
	}

	var result []Inst
	for off := 0; off < len(data) && len(result) < maxSteps; {
		addr := opts.BaseAddr + uint64(off)

		// x86asm does not know the CET markers.
		if off+4 <= len(data) &&
			data[off] == 0xf3 && data[off+1] == 0x0f &&
			data[off+2] == 0x1e && (data[off+3] == 0xfa || data[off+3] == 0xfb) {
			text := "endbr64"
			if data[off+3] == 0xfb {
				text = "endbr32"
			}
			result = append(result, Inst{Addr: addr, Bytes: data[off : off+4], Mnemonic: text, Text: text})
			off += 4
			continue
		}

		dec, err := x86asm.Decode(data[off:], 64)
		if err != nil {
			inst := Inst{
				Addr:     addr,
				Bytes:    data[off : off+1],
				Mnemonic: ".byte",
				Operands: fmt.Sprintf("0x%02x", data[off]),
			}
			inst.Text = inst.Mnemonic + " " + inst.Operands
			result = append(result, inst)
			off++
			continue
		}

		inst := Inst{Addr: addr, Bytes: data[off : off+dec.Len]}
		inst.Text = x86asm.IntelSyntax(dec, addr, symname)
		inst.Mnemonic, inst.Operands = split(inst.Text)
		result = append(result, inst)
		off += dec.Len
	}
	return result
}

func split(text string) (mnemonic, operands string) {
	parts := strings.SplitN(text, " ", 2)
	mnemonic = parts[0]
	if len(parts) > 1 {
		operands = parts[1]
	}
	return mnemonic, operands
}

// Format renders instructions as stable text, one per line:
// <addr>  <hex bytes>  <disasm>  ; <symbol>
func Format(insts []Inst, lookup SymbolLookup) string {
	width := 0
	for _, inst := range insts {
		width = max(width, 3*len(inst.Bytes)-1)
	}

	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		hex := make([]string, len(inst.Bytes))
		for i, c := range inst.Bytes {
			hex[i] = fmt.Sprintf("%02x", c)
		}
		fmt.Fprintf(&b, "%-*s  ", width, strings.Join(hex, " "))
		b.WriteString(inst.Text)
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// MapLookup returns a SymbolLookup backed by a fixed address table.
func MapLookup(names map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		name, ok := names[addr]
		return name, ok
	}
}
