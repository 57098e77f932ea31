package disasm

import (
	"encoding/binary"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// FlowKind classifies how an instruction transfers control.
type FlowKind int

const (
	FlowNone   FlowKind = iota // falls through
	FlowBranch                 // jump, possibly conditional
	FlowCall                   // returns to the next instruction
	FlowReturn
	FlowStop // trap or halt; no successor
)

func (k FlowKind) String() string {
	switch k {
	case FlowBranch:
		return "branch"
	case FlowCall:
		return "call"
	case FlowReturn:
		return "return"
	case FlowStop:
		return "stop"
	}
	return "none"
}

// Flow describes the control transfer of one instruction.
type Flow struct {
	Kind   FlowKind
	Target uint64 // absolute target; valid only when Direct
	Direct bool
	Cond   bool // conditional branch with a fallthrough successor
}

// Ends reports whether the instruction terminates a basic block. Calls do
// not: control comes back to the next instruction.
func (f Flow) Ends() bool {
	return f.Kind == FlowBranch || f.Kind == FlowReturn || f.Kind == FlowStop
}

// Falls reports whether control can reach the next instruction.
func (f Flow) Falls() bool {
	switch f.Kind {
	case FlowNone, FlowCall:
		return true
	case FlowBranch:
		return f.Cond
	}
	return false
}

// Classify decodes the control transfer of inst. Data directives emitted for
// undecodable bytes classify as FlowNone.
func Classify(isa ISA, inst Inst) Flow {
	switch isa {
	case ARM64:
		if len(inst.Bytes) != 4 {
			return Flow{}
		}
		return classifyARM64(binary.LittleEndian.Uint32(inst.Bytes), inst.Addr)
	case AMD64:
		return classifyAMD64(inst)
	}
	return Flow{}
}

// classifyARM64 works from the raw 32-bit encoding.
func classifyARM64(raw uint32, pc uint64) Flow {
	rel := func(imm uint32, bits int) uint64 {
		return uint64(int64(pc) + int64(signExtend(imm, bits))*4)
	}

	switch {
	// RET {Xn}
	case raw&0xFFFFFC1F == 0xD65F0000:
		return Flow{Kind: FlowReturn}
	// BR Xn
	case raw&0xFFFFFC1F == 0xD61F0000:
		return Flow{Kind: FlowBranch}
	// BLR Xn
	case raw&0xFFFFFC1F == 0xD63F0000:
		return Flow{Kind: FlowCall}
	// BRK #imm
	case raw&0xFFE0001F == 0xD4200000:
		return Flow{Kind: FlowStop}
	// B imm26
	case raw&0xFC000000 == 0x14000000:
		return Flow{Kind: FlowBranch, Target: rel(raw&0x03FFFFFF, 26), Direct: true}
	// BL imm26
	case raw&0xFC000000 == 0x94000000:
		return Flow{Kind: FlowCall, Target: rel(raw&0x03FFFFFF, 26), Direct: true}
	// B.cond imm19
	case raw&0xFF000010 == 0x54000000:
		return Flow{Kind: FlowBranch, Target: rel((raw>>5)&0x7FFFF, 19), Direct: true, Cond: true}
	// CBZ, CBNZ imm19
	case raw&0x7E000000 == 0x34000000:
		return Flow{Kind: FlowBranch, Target: rel((raw>>5)&0x7FFFF, 19), Direct: true, Cond: true}
	// TBZ, TBNZ imm14
	case raw&0x7E000000 == 0x36000000:
		return Flow{Kind: FlowBranch, Target: rel((raw>>5)&0x3FFF, 14), Direct: true, Cond: true}
	}
	return Flow{}
}

// signExtend sign-extends a value from the given bit width to int32.
func signExtend(val uint32, bits int) int32 {
	sign := uint32(1) << (bits - 1)
	mask := sign - 1
	if val&sign != 0 {
		return int32(val | ^mask)
	}
	return int32(val & mask)
}

func classifyAMD64(inst Inst) Flow {
	if len(inst.Bytes) == 0 || inst.Mnemonic == ".byte" || strings.HasPrefix(inst.Mnemonic, "endbr") {
		return Flow{}
	}
	dec, err := x86asm.Decode(inst.Bytes, 64)
	if err != nil {
		return Flow{}
	}

	var f Flow
	switch dec.Op {
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return Flow{Kind: FlowReturn}
	case x86asm.HLT, x86asm.UD1, x86asm.UD2, x86asm.INT:
		if dec.Op == x86asm.INT {
			// int3 is a breakpoint; other vectors return.
			if imm, ok := dec.Args[0].(x86asm.Imm); !ok || imm != 3 {
				return Flow{}
			}
		}
		return Flow{Kind: FlowStop}
	case x86asm.CALL, x86asm.LCALL:
		f.Kind = FlowCall
	case x86asm.JMP, x86asm.LJMP:
		f.Kind = FlowBranch
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JE, x86asm.JECXZ,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP,
		x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		f.Kind, f.Cond = FlowBranch, true
	default:
		return Flow{}
	}

	if rel, ok := dec.Args[0].(x86asm.Rel); ok {
		f.Target = inst.Addr + uint64(dec.Len) + uint64(int64(rel))
		f.Direct = true
	}
	return f
}
