package interp

import (
	"testing"

	"github.com/fhevm32/fhevm32/pkg/isa"
)

func encodeRType(op uint32, funct3, rd, rs1, rs2, funct7 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | op
}

func encodeIType(op uint32, funct3, rd, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)<<20)&0xfff00000 | (rs1 << 15) | (funct3 << 12) | (rd << 7) | op
}

func encodeUType(op uint32, rd uint32, imm uint32) uint32 {
	return (imm & 0xfffff000) | (rd << 7) | op
}

// TestArithmetic verifies the ALU opcodes against their RV32I semantics
// for a table of inputs.
func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		word uint32
		rs1  uint32
		rs2  uint32
		want uint32
	}{
		{"ADD", encodeRType(0x33, 0, 5, 1, 2, 0), 10, 20, 30},
		{"SUB", encodeRType(0x33, 0, 5, 1, 2, 0x20), 30, 20, 10},
		{"AND", encodeRType(0x33, 0b111, 5, 1, 2, 0), 0xFF00FF00, 0x0F0F0F0F, 0x0F000F00},
		{"OR", encodeRType(0x33, 0b110, 5, 1, 2, 0), 0xF0F0F0F0, 0x0F0F0F0F, 0xFFFFFFFF},
		{"XOR", encodeRType(0x33, 0b100, 5, 1, 2, 0), 0xFFFFFFFF, 0x0F0F0F0F, 0xF0F0F0F0},
		{"SLT true", encodeRType(0x33, 0b010, 5, 1, 2, 0), 0xFFFFFFFF, 1, 1},
		{"SLTU false", encodeRType(0x33, 0b011, 5, 1, 2, 0), 0xFFFFFFFF, 1, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var s State
			s.GPR[1] = tc.rs1
			s.GPR[2] = tc.rs2
			rom := []uint32{tc.word}
			Step(&s, rom)
			if s.GPR[5] != tc.want {
				t.Errorf("GPR[5] = 0x%x, want 0x%x", s.GPR[5], tc.want)
			}
		})
	}
}

func TestX0Pinned(t *testing.T) {
	var s State
	rom := []uint32{encodeIType(0x13, 0, 0, 0, 42)} // addi x0, x0, 42
	Step(&s, rom)
	if s.GPR[0] != 0 {
		t.Errorf("x0 = %d, want 0", s.GPR[0])
	}
}

func TestLUI(t *testing.T) {
	var s State
	rom := []uint32{encodeUType(0x37, 3, 0xABCD<<12)}
	Step(&s, rom)
	if s.GPR[3] != 0xABCD<<12 {
		t.Errorf("GPR[3] = 0x%x, want 0x%x", s.GPR[3], 0xABCD<<12)
	}
}

func TestStoreByte(t *testing.T) {
	var s State
	s.RAM[0] = 0x00ABCDEF
	s.GPR[1] = 0
	s.GPR[31] = 0xAABB
	// SB x31, 1(x1): store low byte of x31 at RAM byte address 1
	rom := []uint32{encodeSType(0x23, 0b000, 1, 31, 1)}
	Step(&s, rom)
	want := uint32(0x00AB_BBEF)
	if s.RAM[0] != want {
		t.Errorf("RAM[0] = 0x%08x, want 0x%08x", s.RAM[0], want)
	}
}

func encodeSType(op uint32, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return ((u>>5)&0x7f)<<25 | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | ((u & 0x1f) << 7) | op
}

// TestLoadSignExtension covers spec.md §8 scenario E4.
func TestLoadSignExtension(t *testing.T) {
	var s State
	s.RAM[0] = 0xFFFF80FF

	loadWord := func(funct3 uint32) uint32 {
		return encodeIType(0x03, funct3, 5, 0, 0)
	}

	cases := []struct {
		name    string
		funct3  uint32
		want    uint32
	}{
		{"LB", 0b000, 0xFFFFFFFF},
		{"LBU", 0b100, 0x000000FF},
		{"LH", 0b001, 0xFFFF80FF},
		{"LHU", 0b101, 0x000080FF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := s
			Step(&st, []uint32{loadWord(tc.funct3)})
			if st.GPR[5] != tc.want {
				t.Errorf("%s: GPR[5] = 0x%08x, want 0x%08x", tc.name, st.GPR[5], tc.want)
			}
		})
	}
}

// TestBranch covers spec.md §8 scenario E3.
func TestBranch(t *testing.T) {
	word := encodeSType(0x63, 0b000, 1, 2, 8) // beq x1, x2, +8 (reuses S-type immediate shape)

	t.Run("taken", func(t *testing.T) {
		var s State
		s.GPR[1], s.GPR[2] = 5, 5
		Step(&s, []uint32{word})
		if s.PC != 8 {
			t.Errorf("PC = %d, want 8", s.PC)
		}
	})
	t.Run("not taken", func(t *testing.T) {
		var s State
		s.GPR[1], s.GPR[2] = 5, 6
		Step(&s, []uint32{word})
		if s.PC != 4 {
			t.Errorf("PC = %d, want 4", s.PC)
		}
	})
}

var _ = isa.NONE
