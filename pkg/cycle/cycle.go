// Package cycle implements the encrypted RV32I cycle driver (spec.md C9):
// fetch, decode, register read, dispatch, memory access, writeback, and
// pc update, chained together so that no step ever branches on decrypted
// state (spec.md §8 "cycle-count obliviousness" — every cycle performs
// the same fixed sequence of lattice operations regardless of which
// instruction is active).
package cycle

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/address"
	"github.com/fhevm32/fhevm32/pkg/circuit"
	"github.com/fhevm32/fhevm32/pkg/dispatch"
	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/ram"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// Driver holds one machine's full architectural state: 32 general
// registers and the program counter, all EWs, plus the instruction and
// data memories and the evaluation context every step consumes.
type Driver struct {
	Params *params.Parameters
	Keys   *keys.Bundle
	Env    *circuit.Env
	Rd     *dispatch.Engine
	Eq     *dispatch.EqualityBuilder
	ROM    *ram.RAM
	RAM    *ram.RAM

	GPR [32]word.EW
	PC  word.EW
}

// New builds a cycle driver over an already-loaded ROM/RAM pair. GPR and
// PC start at the structural zero EW (spec.md §3 "x0 is pinned to the
// structural zero EW" — every register starts there, PC included).
func New(p *params.Parameters, env *circuit.Env, rom, data *ram.RAM, workers int) *Driver {
	d := &Driver{
		Params: p,
		Keys:   env.Keys,
		Env:    env,
		Rd:     dispatch.New(env, workers, rdLaneOps()),
		Eq:     &dispatch.EqualityBuilder{Env: env},
		ROM:    rom,
		RAM:    data,
	}
	for i := range d.GPR {
		d.GPR[i] = word.Zero(env.Ring)
	}
	d.PC = word.Zero(env.Ring)
	return d
}

// rdLaneOps is isa.RdUpdateOps() minus JAL and JALR: every opcode whose
// rd candidate fits the generic catalog's shared (aOperand, bOperand)
// ALU pair. JAL/JALR's rd value (pc+4, the link address) is computed by
// a dedicated adder in Step instead, since their true operand pair
// (pc, +4) differs from every other rd-lane opcode's (rs1, rs2-or-imm)
// pair, and dispatch.Engine shares one operand pair across its whole
// catalog per call (spec.md §9 Open Question: how JAL/JALR's two
// simultaneous updates fit dispatch's one-result-per-opcode model).
func rdLaneOps() []isa.Op {
	var out []isa.Op
	for _, op := range isa.RdUpdateOps() {
		if op == isa.JAL || op == isa.JALR {
			continue
		}
		out = append(out, op)
	}
	return out
}

func bit(p word.Prepared, i int) lattice.GLWE { return p.Bits[i].C0[0] }

// Step runs exactly one cycle: fetch, decode, register read, dispatch,
// memory, writeback, pc update (spec.md §4.5's nine-step cycle).
func (d *Driver) Step(ctx context.Context) error {
	bs := d.Env.BS
	rg := d.Env.Ring

	// 1. Fetch: rotate the instruction ROM to the PC's own ciphertext
	// value and read the word there, never decrypting PC to do it
	// (spec.md §4.5 step 1, §4.2 blind rotation).
	pcPrepared, err := d.PC.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare pc: %w", err)
	}
	romWidth := d.ROM.Width()
	// PC is a byte address (RV32I convention: pc+4 per instruction, branch
	// targets are rs1/pc + a byte-unit immediate); the word-addressed ROM
	// index is that address's bits above the 2-bit byte-within-word lane.
	fetchEA := address.FromPrepared(pcPrepared.Bits[2:2+romWidth], romWidth)
	instr := d.ROM.ReadEA(fetchEA, d.Keys)
	instrPrepared, err := instr.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare instruction: %w", err)
	}

	// 2. Decode: pure bit-slices of the fetched instruction's own GGSW
	// bits (opcode/funct3/funct7b5 for dispatch equality, rd/rs1/rs2 as
	// 5-bit encrypted register indices, five candidate immediate
	// encodings), plus the oblivious format selection that picks among
	// them (spec.md §4.5 step 1).
	var rawBits word.Prepared
	copy(rawBits.Bits[0:7], instrPrepared.Bits[0:7])
	copy(rawBits.Bits[7:10], instrPrepared.Bits[12:15])
	rawBits.Bits[10] = instrPrepared.Bits[30]
	eqAll := d.Eq.Build(ctx, rawBits)
	rdBits := instrPrepared.Bits[7:12]
	rs1Bits := instrPrepared.Bits[15:20]
	rs2Bits := instrPrepared.Bits[20:25]

	imm, err := d.resolveImmediate(ctx, instrPrepared, eqAll)
	if err != nil {
		return fmt.Errorf("cycle: immediate: %w", err)
	}

	// 3. Register read: obliviously select rs1/rs2/current-rd from the
	// register file (spec.md §4.5 step 2; every register is visited
	// regardless of which one rs1/rs2/rd actually name).
	rs1EW, err := d.Env.SelectWord(ctx, rs1Bits, d.GPR[:])
	if err != nil {
		return fmt.Errorf("cycle: read rs1: %w", err)
	}
	rs2EW, err := d.Env.SelectWord(ctx, rs2Bits, d.GPR[:])
	if err != nil {
		return fmt.Errorf("cycle: read rs2: %w", err)
	}
	rdCurEW, err := d.Env.SelectWord(ctx, rdBits, d.GPR[:])
	if err != nil {
		return fmt.Errorf("cycle: read rd: %w", err)
	}

	// 4. Prepare: bootstrap every operand the circuit catalog and
	// dedicated adders need into GGSW form (spec.md C8).
	rs1Prepared, err := rs1EW.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare rs1: %w", err)
	}
	rs2Prepared, err := rs2EW.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare rs2: %w", err)
	}
	immPrepared, err := imm.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare imm: %w", err)
	}
	fourPrepared, err := word.Trivial(rg, 4).Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare constant: %w", err)
	}

	isAUIPC, err := eqAll[isa.AUIPC]()
	if err != nil {
		return fmt.Errorf("cycle: equality auipc: %w", err)
	}
	isRegForm, err := orAll(ctx, d.Env, eqAll, []isa.Op{
		isa.ADD, isa.SUB, isa.SLL, isa.SRL, isa.SRA,
		isa.SLT, isa.SLTU, isa.XOR, isa.OR, isa.AND,
	})
	if err != nil {
		return fmt.Errorf("cycle: equality reg-form: %w", err)
	}
	aOperandEW := d.Env.MuxWord(isAUIPC, d.PC, rs1EW)
	bOperandEW := d.Env.MuxWord(isRegForm, rs2EW, imm)
	aOperand, err := aOperandEW.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare a-operand: %w", err)
	}
	bOperand, err := bOperandEW.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare b-operand: %w", err)
	}

	// 5. Dispatch: every rd-lane opcode's circuit runs concurrently, the
	// active one's result is selected obliviously (spec.md C7).
	rdResult, err := d.Rd.Dispatch(ctx, aOperand, bOperand, eqAll, rdCurEW, d.PC, word.Zero(rg))
	if err != nil {
		return fmt.Errorf("cycle: dispatch: %w", err)
	}

	// JAL/JALR's rd is always pc+4, computed by a dedicated adder
	// (see rdLaneOps).
	pcPlus4, err := d.Env.Add(ctx, pcPrepared, fourPrepared)
	if err != nil {
		return fmt.Errorf("cycle: pc+4: %w", err)
	}
	isJAL, err := eqAll[isa.JAL]()
	if err != nil {
		return fmt.Errorf("cycle: equality jal: %w", err)
	}
	isJALR, err := eqAll[isa.JALR]()
	if err != nil {
		return fmt.Errorf("cycle: equality jalr: %w", err)
	}
	isJumpLink, err := d.Env.Or(ctx, isJAL, isJALR)
	if err != nil {
		return fmt.Errorf("cycle: equality jump-link: %w", err)
	}
	rdAfterJump := d.Env.MuxWord(isJumpLink, pcPlus4, rdResult.Rd)

	// 6. Effective address + RAM stage: loads and stores share the same
	// rs1+imm address circuit (spec.md §4.5 steps 5-6).
	effAddr, err := d.Env.Add(ctx, rs1Prepared, immPrepared)
	if err != nil {
		return fmt.Errorf("cycle: effective address: %w", err)
	}
	effAddrPrepared, err := effAddr.Prepare(ctx, bs)
	if err != nil {
		return fmt.Errorf("cycle: prepare effective address: %w", err)
	}
	ramWidth := d.RAM.Width()
	// Same byte/word split as the fetch stage: bits[0:2] pick the
	// byte/halfword lane (spliceStore, postProcessLoad's width selection
	// runs on the full word regardless of lane), bits[2:] pick the word.
	memEA := address.FromPrepared(effAddrPrepared.Bits[2:2+ramWidth], ramWidth)

	loaded := d.RAM.ReadEA(memEA, d.Keys)
	loadResult, err := d.postProcessLoad(ctx, loaded, eqAll)
	if err != nil {
		return fmt.Errorf("cycle: load post-process: %w", err)
	}
	isLoad, err := orAll(ctx, d.Env, eqAll, []isa.Op{isa.LB, isa.LBU, isa.LH, isa.LHU, isa.LW})
	if err != nil {
		return fmt.Errorf("cycle: equality load: %w", err)
	}
	// 7. Load post-process overrides the rd candidate when a load is
	// active (spec.md §4.5 step 7).
	rdCandidate := d.Env.MuxWord(isLoad, loadResult, rdAfterJump)

	isStore, err := orAll(ctx, d.Env, eqAll, []isa.Op{isa.SB, isa.SH, isa.SW})
	if err != nil {
		return fmt.Errorf("cycle: equality store: %w", err)
	}
	spliced, err := d.spliceStore(ctx, loaded, rs2EW, effAddrPrepared, eqAll)
	if err != nil {
		return fmt.Errorf("cycle: store splice: %w", err)
	}
	storeVal := d.Env.MuxWord(isStore, spliced, loaded)
	d.RAM.WriteEA(memEA, storeVal, d.Keys)

	// 8. Writeback, with x0 pinned to zero regardless of what rd decoded
	// to (spec.md §4.5 step 8, the x0 invariant).
	newGPR, err := d.Env.ScatterWord(ctx, rdBits, d.GPR[:], rdCandidate)
	if err != nil {
		return fmt.Errorf("cycle: writeback: %w", err)
	}
	newGPR[0] = word.Zero(rg)
	copy(d.GPR[:], newGPR)

	// 9. PC update: branches and jumps are resolved by a dedicated
	// PC-lane fold, since their true candidate depends on operand pairs
	// the generic rd-lane dispatch never sees (spec.md §4.5 step 9).
	newPC, err := d.resolvePC(ctx, pcPrepared, rs1Prepared, rs2Prepared, immPrepared, pcPlus4, eqAll)
	if err != nil {
		return fmt.Errorf("cycle: pc update: %w", err)
	}
	d.PC = newPC
	return nil
}

func orAll(ctx context.Context, env *circuit.Env, eqAll map[isa.Op]func() (lattice.GGSW, error), ops []isa.Op) (lattice.GGSW, error) {
	var acc lattice.GGSW
	first := true
	for _, op := range ops {
		fn, ok := eqAll[op]
		if !ok {
			continue
		}
		b, err := fn()
		if err != nil {
			return lattice.GGSW{}, err
		}
		if first {
			acc = b
			first = false
			continue
		}
		acc, err = env.Or(ctx, acc, b)
		if err != nil {
			return lattice.GGSW{}, err
		}
	}
	return acc, nil
}
