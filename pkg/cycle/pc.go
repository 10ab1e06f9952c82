package cycle

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// resolvePC computes the PC-lane candidate: pc+4 by default, a branch
// target when its condition holds, or a jump target for JAL/JALR,
// selected obliviously (spec.md §4.5 step 9, §4.3 "the same mechanism
// selects ... the pc-update lane"). Every branch's condition circuit and
// every jump's target adder runs regardless of which opcode is actually
// decoded (spec.md §8 cycle-count obliviousness).
func (d *Driver) resolvePC(ctx context.Context, pcPrepared, rs1Prepared, rs2Prepared, immPrepared word.Prepared, pcPlus4 word.EW, eqAll map[isa.Op]func() (lattice.GGSW, error)) (word.EW, error) {
	pcPlusImm, err := d.Env.Add(ctx, pcPrepared, immPrepared)
	if err != nil {
		return word.EW{}, fmt.Errorf("pc+imm: %w", err)
	}
	jalrRaw, err := d.Env.Add(ctx, rs1Prepared, immPrepared)
	if err != nil {
		return word.EW{}, fmt.Errorf("rs1+imm: %w", err)
	}
	jalrTarget := jalrRaw
	jalrTarget.Bits[0] = d.Env.Ring.NewGLWE() // RV32I: JALR clears the target's bit 0

	conds, err := d.branchConditions(ctx, rs1Prepared, rs2Prepared)
	if err != nil {
		return word.EW{}, fmt.Errorf("branch conditions: %w", err)
	}

	pc := pcPlus4
	for op, cond := range conds {
		fn, ok := eqAll[op]
		if !ok {
			continue
		}
		active, err := fn()
		if err != nil {
			return word.EW{}, fmt.Errorf("equality %v: %w", op, err)
		}
		taken := d.Env.MuxWord(cond, pcPlusImm, pcPlus4)
		pc = d.Env.MuxWord(active, taken, pc)
	}

	isJAL, err := eqAll[isa.JAL]()
	if err != nil {
		return word.EW{}, fmt.Errorf("equality jal: %w", err)
	}
	isJALR, err := eqAll[isa.JALR]()
	if err != nil {
		return word.EW{}, fmt.Errorf("equality jalr: %w", err)
	}
	pc = d.Env.MuxWord(isJAL, pcPlusImm, pc)
	pc = d.Env.MuxWord(isJALR, jalrTarget, pc)
	return pc, nil
}

// branchConditions evaluates every conditional-branch's taken/not-taken
// bit from rs1 and rs2 (spec.md §2 BEQ/BNE/BLT/BGE/BLTU/BGEU), each a
// single GGSW bit suitable as a later MUX selector.
func (d *Driver) branchConditions(ctx context.Context, rs1, rs2 word.Prepared) (map[isa.Op]lattice.GGSW, error) {
	beq, err := d.Env.WordsEqual(ctx, rs1, rs2)
	if err != nil {
		return nil, fmt.Errorf("beq: %w", err)
	}
	bne, err := d.Env.Not(ctx, beq)
	if err != nil {
		return nil, fmt.Errorf("bne: %w", err)
	}

	sltRaw, err := d.Env.Slt(ctx, rs1, rs2)
	if err != nil {
		return nil, fmt.Errorf("slt: %w", err)
	}
	bltBits, err := d.Env.BS.Bootstrap(ctx, []lattice.GLWE{sltRaw.Bits[0]})
	if err != nil || len(bltBits) != 1 {
		return nil, fmt.Errorf("blt refresh: %w", err)
	}
	blt := bltBits[0]
	bge, err := d.Env.Not(ctx, blt)
	if err != nil {
		return nil, fmt.Errorf("bge: %w", err)
	}

	sltuRaw, err := d.Env.Sltu(ctx, rs1, rs2)
	if err != nil {
		return nil, fmt.Errorf("sltu: %w", err)
	}
	bltuBits, err := d.Env.BS.Bootstrap(ctx, []lattice.GLWE{sltuRaw.Bits[0]})
	if err != nil || len(bltuBits) != 1 {
		return nil, fmt.Errorf("bltu refresh: %w", err)
	}
	bltu := bltuBits[0]
	bgeu, err := d.Env.Not(ctx, bltu)
	if err != nil {
		return nil, fmt.Errorf("bgeu: %w", err)
	}

	return map[isa.Op]lattice.GGSW{
		isa.BEQ: beq, isa.BNE: bne,
		isa.BLT: blt, isa.BGE: bge,
		isa.BLTU: bltu, isa.BGEU: bgeu,
	}, nil
}
