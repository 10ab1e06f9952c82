// Package interp is the cleartext reference interpreter: the machine this
// module executes, minus any ciphertext. Spec.md §8 property 1 (semantic
// equivalence) checks the encrypted VM's decrypted post-cycle state against
// this package's output on identical inputs, so its semantics are the
// ground truth the rest of the repository is built to reproduce
// homomorphically.
//
// Grounded on bassosimone-risc32's pkg/vm.VM.Execute (single switch over a
// decoded opcode, GPR[0] pinned after every step): State mutated in place,
// opcode switch, no heap churn per instruction.
package interp

import (
	"github.com/fhevm32/fhevm32/pkg/isa"
)

// RAMWords is the number of 32-bit words of data memory the reference
// machine addresses; word addresses wrap modulo RAMWords. pkg/ram's
// encrypted RAM holds Ring.N words instead.
const RAMWords = 1 << 16

// State is the cleartext architectural state: 32 registers, a program
// counter, and a flat data memory. x0 is not special-cased in storage (the
// way bassosimone's VM does not special-case GPR[0] either); Step pins it
// to zero after every instruction, matching spec.md's x0 invariant.
type State struct {
	GPR [32]uint32
	PC  uint32
	RAM [RAMWords]uint32
}

// Equal reports whether two states are identical (used by tests comparing
// decrypted encrypted-VM state against a reference run).
func (s *State) Equal(o *State) bool {
	if s.PC != o.PC || s.GPR != o.GPR {
		return false
	}
	return s.RAM == o.RAM
}

// Step executes the instruction at ROM[s.PC/4], in place, then advances or
// redirects the program counter. rom is the encoded instruction stream;
// a word index past its end fetches 0. Load/store effective addresses are
// rs1 + imm with no base offset subtracted.
func Step(s *State, rom []uint32) {
	pcIndex := s.PC / 4
	var w uint32
	if int(pcIndex) < len(rom) {
		w = rom[pcIndex]
	}
	f := isa.Decode(w)

	nextPC := s.PC + 4
	rd := uint32(0)

	switch f.Op {
	case isa.LUI:
		rd = uint32(f.Imm)
	case isa.AUIPC:
		rd = s.PC + uint32(f.Imm)
	case isa.JAL:
		rd = s.PC + 4
		nextPC = s.PC + uint32(f.Imm)
	case isa.JALR:
		rd = s.PC + 4
		nextPC = (s.GPR[f.RS1] + uint32(f.Imm)) &^ 1
	case isa.ADD:
		rd = s.GPR[f.RS1] + s.GPR[f.RS2]
	case isa.ADDI:
		rd = s.GPR[f.RS1] + uint32(f.Imm)
	case isa.SUB:
		rd = s.GPR[f.RS1] - s.GPR[f.RS2]
	case isa.SLL:
		rd = s.GPR[f.RS1] << (s.GPR[f.RS2] & 0x1f)
	case isa.SLLI:
		rd = s.GPR[f.RS1] << (uint32(f.Imm) & 0x1f)
	case isa.SRL:
		rd = s.GPR[f.RS1] >> (s.GPR[f.RS2] & 0x1f)
	case isa.SRLI:
		rd = s.GPR[f.RS1] >> (uint32(f.Imm) & 0x1f)
	case isa.SRA:
		rd = uint32(int32(s.GPR[f.RS1]) >> (s.GPR[f.RS2] & 0x1f))
	case isa.SRAI:
		rd = uint32(int32(s.GPR[f.RS1]) >> (uint32(f.Imm) & 0x1f))
	case isa.SLT:
		rd = boolU32(int32(s.GPR[f.RS1]) < int32(s.GPR[f.RS2]))
	case isa.SLTI:
		rd = boolU32(int32(s.GPR[f.RS1]) < f.Imm)
	case isa.SLTU:
		rd = boolU32(s.GPR[f.RS1] < s.GPR[f.RS2])
	case isa.SLTIU:
		rd = boolU32(s.GPR[f.RS1] < uint32(f.Imm))
	case isa.XOR:
		rd = s.GPR[f.RS1] ^ s.GPR[f.RS2]
	case isa.XORI:
		rd = s.GPR[f.RS1] ^ uint32(f.Imm)
	case isa.OR:
		rd = s.GPR[f.RS1] | s.GPR[f.RS2]
	case isa.ORI:
		rd = s.GPR[f.RS1] | uint32(f.Imm)
	case isa.AND:
		rd = s.GPR[f.RS1] & s.GPR[f.RS2]
	case isa.ANDI:
		rd = s.GPR[f.RS1] & uint32(f.Imm)
	case isa.LB, isa.LBU, isa.LH, isa.LHU, isa.LW:
		rd = execLoad(s, f)
	case isa.SB, isa.SH, isa.SW:
		execStore(s, f)
	case isa.BEQ:
		if s.GPR[f.RS1] == s.GPR[f.RS2] {
			nextPC = s.PC + uint32(f.Imm)
		}
	case isa.BNE:
		if s.GPR[f.RS1] != s.GPR[f.RS2] {
			nextPC = s.PC + uint32(f.Imm)
		}
	case isa.BLT:
		if int32(s.GPR[f.RS1]) < int32(s.GPR[f.RS2]) {
			nextPC = s.PC + uint32(f.Imm)
		}
	case isa.BGE:
		if int32(s.GPR[f.RS1]) >= int32(s.GPR[f.RS2]) {
			nextPC = s.PC + uint32(f.Imm)
		}
	case isa.BLTU:
		if s.GPR[f.RS1] < s.GPR[f.RS2] {
			nextPC = s.PC + uint32(f.Imm)
		}
	case isa.BGEU:
		if s.GPR[f.RS1] >= s.GPR[f.RS2] {
			nextPC = s.PC + uint32(f.Imm)
		}
	case isa.NONE:
		// identity on rd, pc+4 (spec.md §4.3: NONE opcode).
	}

	if isa.ClassOf(f.Op) == isa.LaneRd || isa.IsLoad(f.Op) {
		if f.RD != 0 {
			s.GPR[f.RD] = rd
		}
	}
	s.GPR[0] = 0
	s.PC = nextPC
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func effectiveWordAddr(s *State, f isa.Fields) (word uint32, byteOff uint32) {
	addr := s.GPR[f.RS1] + uint32(f.Imm)
	return (addr / 4) % RAMWords, addr & 3
}

func execLoad(s *State, f isa.Fields) uint32 {
	word, byteOff := effectiveWordAddr(s, f)
	v := s.RAM[word]
	switch f.Op {
	case isa.LB:
		b := int8(v >> (byteOff * 8))
		return uint32(int32(b))
	case isa.LBU:
		return (v >> (byteOff * 8)) & 0xff
	case isa.LH:
		h := int16(v >> ((byteOff &^ 1) * 8))
		return uint32(int32(h))
	case isa.LHU:
		return (v >> ((byteOff &^ 1) * 8)) & 0xffff
	case isa.LW:
		return v
	}
	return 0
}

func execStore(s *State, f isa.Fields) {
	word, byteOff := effectiveWordAddr(s, f)
	old := s.RAM[word]
	src := s.GPR[f.RS2]
	switch f.Op {
	case isa.SB:
		shift := byteOff * 8
		mask := uint32(0xff) << shift
		s.RAM[word] = (old &^ mask) | ((src & 0xff) << shift)
	case isa.SH:
		shift := (byteOff &^ 1) * 8
		mask := uint32(0xffff) << shift
		s.RAM[word] = (old &^ mask) | ((src & 0xffff) << shift)
	case isa.SW:
		s.RAM[word] = src
	}
}
