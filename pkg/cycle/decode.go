package cycle

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// resolveImmediate assembles all five RV32I immediate encodings from the
// fetched instruction's own bits (pure wire selection, no gates) and
// obliviously picks the one the decoded opcode actually uses, keyed off
// the raw opcode field's equality checks already computed for dispatch
// (spec.md §4.5 step 1; RV32I's I/S/B/U/J immediate layouts are
// documented in full in the original RISC-V spec, reproduced here only as
// bit-index tables).
func (d *Driver) resolveImmediate(ctx context.Context, instr word.Prepared, eqAll map[isa.Op]func() (lattice.GGSW, error)) (word.EW, error) {
	zero := d.Env.Ring.NewGLWE()

	iType := assembleIType(instr)
	sType := assembleSType(instr)
	bType := assembleBType(instr, zero)
	uType := assembleUType(instr, zero)
	jType := assembleJType(instr, zero)

	isB, err := orAll(ctx, d.Env, eqAll, []isa.Op{isa.BEQ, isa.BNE, isa.BLT, isa.BGE, isa.BLTU, isa.BGEU})
	if err != nil {
		return word.EW{}, fmt.Errorf("format b: %w", err)
	}
	isS, err := orAll(ctx, d.Env, eqAll, []isa.Op{isa.SB, isa.SH, isa.SW})
	if err != nil {
		return word.EW{}, fmt.Errorf("format s: %w", err)
	}
	isU, err := orAll(ctx, d.Env, eqAll, []isa.Op{isa.LUI, isa.AUIPC})
	if err != nil {
		return word.EW{}, fmt.Errorf("format u: %w", err)
	}
	isJ, err := eqAll[isa.JAL]()
	if err != nil {
		return word.EW{}, fmt.Errorf("format j: %w", err)
	}

	// I-type is the base case: ADDI/SLTI/.../ANDI, JALR, and every load
	// all share its imm[11:0] = instr[31:20] layout.
	merged := iType
	merged = d.Env.MuxWord(isS, sType, merged)
	merged = d.Env.MuxWord(isB, bType, merged)
	merged = d.Env.MuxWord(isU, uType, merged)
	merged = d.Env.MuxWord(isJ, jType, merged)
	return merged, nil
}

func assembleIType(instr word.Prepared) word.EW {
	var ew word.EW
	for i := 0; i < 11; i++ {
		ew.Bits[i] = bit(instr, 20+i)
	}
	sign := bit(instr, 31)
	for i := 11; i < word.Bits; i++ {
		ew.Bits[i] = sign
	}
	return ew
}

func assembleSType(instr word.Prepared) word.EW {
	var ew word.EW
	for i := 0; i < 5; i++ {
		ew.Bits[i] = bit(instr, 7+i)
	}
	for i := 0; i < 7; i++ {
		ew.Bits[5+i] = bit(instr, 25+i)
	}
	sign := bit(instr, 31)
	for i := 12; i < word.Bits; i++ {
		ew.Bits[i] = sign
	}
	return ew
}

func assembleBType(instr word.Prepared, zero lattice.GLWE) word.EW {
	var ew word.EW
	ew.Bits[0] = zero
	for i := 0; i < 4; i++ {
		ew.Bits[1+i] = bit(instr, 8+i)
	}
	for i := 0; i < 6; i++ {
		ew.Bits[5+i] = bit(instr, 25+i)
	}
	ew.Bits[11] = bit(instr, 7)
	sign := bit(instr, 31)
	for i := 12; i < word.Bits; i++ {
		ew.Bits[i] = sign
	}
	return ew
}

func assembleUType(instr word.Prepared, zero lattice.GLWE) word.EW {
	var ew word.EW
	for i := 0; i < 12; i++ {
		ew.Bits[i] = zero
	}
	for i := 12; i < word.Bits; i++ {
		ew.Bits[i] = bit(instr, i)
	}
	return ew
}

func assembleJType(instr word.Prepared, zero lattice.GLWE) word.EW {
	var ew word.EW
	ew.Bits[0] = zero
	for i := 0; i < 10; i++ {
		ew.Bits[1+i] = bit(instr, 21+i)
	}
	ew.Bits[11] = bit(instr, 20)
	for i := 0; i < 8; i++ {
		ew.Bits[12+i] = bit(instr, 12+i)
	}
	sign := bit(instr, 31)
	for i := 20; i < word.Bits; i++ {
		ew.Bits[i] = sign
	}
	return ew
}
