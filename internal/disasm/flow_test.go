package disasm

import (
	"encoding/binary"
	"testing"
)

func TestClassifyARM64(t *testing.T) {
	tests := []struct {
		name string
		raw  uint32
		want Flow
	}{
		{"nop", 0xd503201f, Flow{}},
		{"ret", 0xd65f03c0, Flow{Kind: FlowReturn}},
		{"bl +8", 0x94000002, Flow{Kind: FlowCall, Target: 0x1008, Direct: true}},
		{"b -4", 0x17ffffff, Flow{Kind: FlowBranch, Target: 0xffc, Direct: true}},
		{"b.eq +8", 0x54000040, Flow{Kind: FlowBranch, Target: 0x1008, Direct: true, Cond: true}},
		{"cbz +12", 0xb4000060, Flow{Kind: FlowBranch, Target: 0x100c, Direct: true, Cond: true}},
		{"tbnz +8", 0x37000040, Flow{Kind: FlowBranch, Target: 0x1008, Direct: true, Cond: true}},
		{"br x16", 0xd61f0200, Flow{Kind: FlowBranch}},
		{"blr x8", 0xd63f0100, Flow{Kind: FlowCall}},
		{"brk", 0xd4200000, Flow{Kind: FlowStop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]byte, 4)
			binary.LittleEndian.PutUint32(raw, tt.raw)
			got := Classify(ARM64, Inst{Addr: 0x1000, Bytes: raw})
			if got != tt.want {
				t.Errorf("Classify = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassifyAMD64(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want Flow
	}{
		{"call rel32", []byte{0xe8, 0x10, 0x00, 0x00, 0x00}, Flow{Kind: FlowCall, Target: 0x401015, Direct: true}},
		{"call rax", []byte{0xff, 0xd0}, Flow{Kind: FlowCall}},
		{"jmp self", []byte{0xeb, 0xfe}, Flow{Kind: FlowBranch, Target: 0x401000, Direct: true}},
		{"je +2", []byte{0x74, 0x02}, Flow{Kind: FlowBranch, Target: 0x401004, Direct: true, Cond: true}},
		{"ret", []byte{0xc3}, Flow{Kind: FlowReturn}},
		{"hlt", []byte{0xf4}, Flow{Kind: FlowStop}},
		{"int3", []byte{0xcc}, Flow{Kind: FlowStop}},
		{"int 0x80", []byte{0xcd, 0x80}, Flow{}},
		{"push rbp", []byte{0x55}, Flow{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insts, err := Disassemble(tt.code, Options{ISA: AMD64, BaseAddr: 0x401000})
			if err != nil || len(insts) != 1 {
				t.Fatalf("Disassemble = %d insts, %v", len(insts), err)
			}
			if got := Classify(AMD64, insts[0]); got != tt.want {
				t.Errorf("Classify = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFlowEndsFalls(t *testing.T) {
	tests := []struct {
		f           Flow
		ends, falls bool
	}{
		{Flow{}, false, true},
		{Flow{Kind: FlowCall}, false, true},
		{Flow{Kind: FlowBranch}, true, false},
		{Flow{Kind: FlowBranch, Cond: true}, true, true},
		{Flow{Kind: FlowReturn}, true, false},
		{Flow{Kind: FlowStop}, true, false},
	}
	for _, tt := range tests {
		if tt.f.Ends() != tt.ends || tt.f.Falls() != tt.falls {
			t.Errorf("%s cond=%v: ends=%v falls=%v, want %v %v",
				tt.f.Kind, tt.f.Cond, tt.f.Ends(), tt.f.Falls(), tt.ends, tt.falls)
		}
	}
}

func TestClassifyDataDirective(t *testing.T) {
	insts, err := Disassemble([]byte{0xe8}, Options{ISA: AMD64})
	if err != nil || len(insts) != 1 {
		t.Fatalf("Disassemble = %+v, %v", insts, err)
	}
	if got := Classify(AMD64, insts[0]); got.Kind != FlowNone {
		t.Errorf("Classify(.byte) = %+v", got)
	}
}
