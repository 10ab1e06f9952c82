// Package circuit implements the per-opcode Boolean circuit evaluator
// (spec.md C6): for every supported RV32I opcode, a fixed layered
// Boolean DAG of AND/OR/XOR/MUX gates over prepared (GGSW) operand bits
// computes the candidate new value for the rd lane. Every gate whose
// output will itself select a later MUX is refreshed by circuit-
// bootstrapping immediately (spec.md C8), the same "re-bootstrap every
// gate" discipline TFHE Boolean-gate libraries use, so a circuit's depth
// never accumulates noise beyond one gate's worth.
package circuit

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// Env bundles the lattice backend, the key bundle, and a Bootstrapper
// that every gate needing a fresh GGSW output calls through.
type Env struct {
	Ring    *lattice.Ring
	Keys    *keys.Bundle
	BS      word.Bootstrapper
	BaseLog int
}

// trivialGLWE builds a non-secret "public constant" GLWE: zero mask, body
// equal to the scaled message. Decrypting it under any key returns the
// message, which is why it is safe to use as a CMux data leaf for
// compile-time-known constants (0, 1) without ever encrypting them.
func (e *Env) trivialGLWE(bit uint64) lattice.GLWE {
	body := e.Ring.NewPoly()
	body.Coeffs()[0] = bit * (constQHalf(e.Ring))
	return lattice.GLWE{Body: body, Mask: e.Ring.NewPoly()}
}

func constQHalf(rg *lattice.Ring) uint64 { return rg.Q / 2 }

func (e *Env) zero() lattice.GLWE { return e.trivialGLWE(0) }
func (e *Env) one() lattice.GLWE  { return e.trivialGLWE(1) }

// dataOf extracts a GGSW bit's own message-carrying GLWE row, the same
// projection word.Pack uses.
func dataOf(b lattice.GGSW) lattice.GLWE { return b.C0[0] }

// refresh circuit-bootstraps a single GLWE bit back into GGSW form so it
// can serve as a later gate's selector.
func (e *Env) refresh(ctx context.Context, g lattice.GLWE) (lattice.GGSW, error) {
	out, err := e.BS.Bootstrap(ctx, []lattice.GLWE{g})
	if err != nil {
		return lattice.GGSW{}, fmt.Errorf("circuit: refresh: %w", err)
	}
	if len(out) != 1 {
		return lattice.GGSW{}, fmt.Errorf("circuit: refresh: bootstrapper returned %d bits, want 1", len(out))
	}
	return out[0], nil
}

// And, Or, Xor, Not compute one-bit Boolean gates over GGSW-form operands,
// each returning a freshly bootstrapped GGSW result (spec.md C6 gate
// nodes), via MUX(a, b, 0), MUX(a, 1, b), and MUX(a, NOT b, b)
// respectively (spec.md §4.3's MUX identity specializes to every Boolean
// gate).
func (e *Env) And(ctx context.Context, a, b lattice.GGSW) (lattice.GGSW, error) {
	r := e.Ring.CMux(a, e.zero(), dataOf(b), e.BaseLog)
	return e.refresh(ctx, r)
}

func (e *Env) Or(ctx context.Context, a, b lattice.GGSW) (lattice.GGSW, error) {
	r := e.Ring.CMux(a, dataOf(b), e.one(), e.BaseLog)
	return e.refresh(ctx, r)
}

func (e *Env) Not(ctx context.Context, a lattice.GGSW) (lattice.GGSW, error) {
	r := e.Ring.SubGLWE(e.one(), dataOf(a))
	return e.refresh(ctx, r)
}

func (e *Env) Xor(ctx context.Context, a, b lattice.GGSW) (lattice.GGSW, error) {
	notB := e.Ring.SubGLWE(e.one(), dataOf(b))
	r := e.Ring.CMux(a, dataOf(b), notB, e.BaseLog)
	return e.refresh(ctx, r)
}

// Mux selects bGLWE's two data alternatives by a GGSW selector without
// producing a fresh GGSW (used internally wherever the result only feeds
// further arithmetic, never a later selector, saving a bootstrap).
func (e *Env) Mux(sel lattice.GGSW, d1, d0 lattice.GLWE) lattice.GLWE {
	return e.Ring.CMux(sel, d0, d1, e.BaseLog)
}

// fullAdder computes (sum, carryOut) for one bit position of a ripple-
// carry adder: sum = a XOR b XOR cin, carryOut = (a AND b) OR (cin AND
// (a XOR b)) — the textbook decomposition, built entirely from the gates
// above.
func (e *Env) fullAdder(ctx context.Context, a, b, cin lattice.GGSW) (sum, cout lattice.GGSW, err error) {
	aXorB, err := e.Xor(ctx, a, b)
	if err != nil {
		return lattice.GGSW{}, lattice.GGSW{}, err
	}
	sum, err = e.Xor(ctx, aXorB, cin)
	if err != nil {
		return lattice.GGSW{}, lattice.GGSW{}, err
	}
	aAndB, err := e.And(ctx, a, b)
	if err != nil {
		return lattice.GGSW{}, lattice.GGSW{}, err
	}
	cinAndAXorB, err := e.And(ctx, cin, aXorB)
	if err != nil {
		return lattice.GGSW{}, lattice.GGSW{}, err
	}
	cout, err = e.Or(ctx, aAndB, cinAndAXorB)
	if err != nil {
		return lattice.GGSW{}, lattice.GGSW{}, err
	}
	return sum, cout, nil
}

// Add computes the 32-bit ripple-carry sum of two prepared words,
// returning the result in GLWE-bits (EW) form (spec.md §2 ADD/ADDI and
// the base of AUIPC/JAL/JALR's address arithmetic).
func (e *Env) Add(ctx context.Context, a, b word.Prepared) (word.EW, error) {
	var out word.EW
	carry, err := e.refresh(ctx, e.zero())
	if err != nil {
		return word.EW{}, err
	}
	for i := 0; i < word.Bits; i++ {
		sum, cout, err := e.fullAdder(ctx, a.Bits[i], b.Bits[i], carry)
		if err != nil {
			return word.EW{}, err
		}
		out.Bits[i] = dataOf(sum)
		carry = cout
	}
	return out, nil
}

// Sub computes a - b via two's complement: a + (^b) + 1 (spec.md §2 SUB).
func (e *Env) Sub(ctx context.Context, a, b word.Prepared) (word.EW, error) {
	var negB word.Prepared
	for i := 0; i < word.Bits; i++ {
		nb, err := e.Not(ctx, b.Bits[i])
		if err != nil {
			return word.EW{}, err
		}
		negB.Bits[i] = nb
	}
	// +1: ripple-carry add with an initial carry-in of 1 instead of 0.
	var out word.EW
	carry, err := e.refresh(ctx, e.one())
	if err != nil {
		return word.EW{}, err
	}
	for i := 0; i < word.Bits; i++ {
		sum, cout, err := e.fullAdder(ctx, a.Bits[i], negB.Bits[i], carry)
		if err != nil {
			return word.EW{}, err
		}
		out.Bits[i] = dataOf(sum)
		carry = cout
	}
	return out, nil
}

// bitwise applies a per-bit gate across all 32 lanes (AND/OR/XOR).
func (e *Env) bitwise(ctx context.Context, a, b word.Prepared, gate func(context.Context, lattice.GGSW, lattice.GGSW) (lattice.GGSW, error)) (word.EW, error) {
	var out word.EW
	for i := 0; i < word.Bits; i++ {
		r, err := gate(ctx, a.Bits[i], b.Bits[i])
		if err != nil {
			return word.EW{}, err
		}
		out.Bits[i] = dataOf(r)
	}
	return out, nil
}

func (e *Env) And32(ctx context.Context, a, b word.Prepared) (word.EW, error) { return e.bitwise(ctx, a, b, e.And) }
func (e *Env) Or32(ctx context.Context, a, b word.Prepared) (word.EW, error)  { return e.bitwise(ctx, a, b, e.Or) }
func (e *Env) Xor32(ctx context.Context, a, b word.Prepared) (word.EW, error) { return e.bitwise(ctx, a, b, e.Xor) }

// shiftAmount extracts the low 5 bits of b as a []GGSW selector slice,
// the barrel shifter's per-stage selectors (spec.md §2 SLL/SRL/SRA use
// only rs2[4:0] / shamt[4:0]).
func shiftAmount(b word.Prepared) [5]lattice.GGSW {
	var s [5]lattice.GGSW
	copy(s[:], b.Bits[:5])
	return s
}

// barrelShiftLeft builds a log-depth MUX shifter: stage k either leaves
// the word alone or shifts it left by 2^k, selected by shamt bit k
// (classic barrel shifter, grounded in the same MUX-tree-over-known-
// shift-amounts idea spec.md §4.2 uses for EA rotation).
func (e *Env) barrelShiftLeft(a word.EW, shamt [5]lattice.GGSW, fillSign lattice.GLWE) word.EW {
	cur := a
	for k := 0; k < 5; k++ {
		amt := 1 << k
		var shifted word.EW
		for i := 0; i < word.Bits; i++ {
			if i-amt >= 0 {
				shifted.Bits[i] = cur.Bits[i-amt]
			} else {
				shifted.Bits[i] = e.zero()
			}
		}
		var next word.EW
		for i := 0; i < word.Bits; i++ {
			next.Bits[i] = e.Mux(shamt[k], shifted.Bits[i], cur.Bits[i])
		}
		cur = next
	}
	_ = fillSign
	return cur
}

// barrelShiftRight builds the mirror-image right shifter; fill supplies
// the bit shifted into the top (zero for SRL, the sign bit for SRA,
// spec.md §2 SRL/SRA).
func (e *Env) barrelShiftRight(a word.EW, shamt [5]lattice.GGSW, fill lattice.GLWE) word.EW {
	cur := a
	for k := 0; k < 5; k++ {
		amt := 1 << k
		var shifted word.EW
		for i := 0; i < word.Bits; i++ {
			if i+amt < word.Bits {
				shifted.Bits[i] = cur.Bits[i+amt]
			} else {
				shifted.Bits[i] = fill
			}
		}
		var next word.EW
		for i := 0; i < word.Bits; i++ {
			next.Bits[i] = e.Mux(shamt[k], shifted.Bits[i], cur.Bits[i])
		}
		cur = next
	}
	return cur
}

// Sll, Srl, Sra implement the three RV32I shift instructions.
func (e *Env) Sll(a, b word.Prepared) word.EW {
	base := word.Pack(a)
	return e.barrelShiftLeft(base, shiftAmount(b), e.zero())
}

func (e *Env) Srl(a, b word.Prepared) word.EW {
	base := word.Pack(a)
	return e.barrelShiftRight(base, shiftAmount(b), e.zero())
}

func (e *Env) Sra(a, b word.Prepared) word.EW {
	base := word.Pack(a)
	return e.barrelShiftRight(base, shiftAmount(b), dataOf(a.Bits[word.Bits-1]))
}

// Slt, Sltu compute the signed/unsigned less-than comparisons from a
// subtraction's sign/borrow bit (spec.md §2 SLT/SLTU, SLTI/SLTIU).
// Signed: a<b iff (a-b)'s sign bit XOR overflow. This backend does not
// track a separate overflow flag; instead it compares the raw MSBs
// alongside the subtraction sign bit, the standard three-case rule for
// deriving signed-overflow from operand signs and result sign, built here
// from gates rather than a cleartext conditional.
func (e *Env) Slt(ctx context.Context, a, b word.Prepared) (word.EW, error) {
	diff, err := e.Sub(ctx, a, b)
	if err != nil {
		return word.EW{}, err
	}
	sign := diff.Bits[word.Bits-1]
	msbDiffer, err := e.Xor(ctx, a.Bits[word.Bits-1], b.Bits[word.Bits-1])
	if err != nil {
		return word.EW{}, err
	}
	var out word.EW
	out.Bits[0] = e.Mux(msbDiffer, dataOf(a.Bits[word.Bits-1]), sign)
	for i := 1; i < word.Bits; i++ {
		out.Bits[i] = e.zero()
	}
	return out, nil
}

func (e *Env) Sltu(ctx context.Context, a, b word.Prepared) (word.EW, error) {
	// Unsigned a<b iff the ripple-carry adder computing a + (^b) + 1
	// produces no carry out of bit 31 (i.e. a borrow occurred).
	var negB word.Prepared
	for i := 0; i < word.Bits; i++ {
		nb, err := e.Not(ctx, b.Bits[i])
		if err != nil {
			return word.EW{}, err
		}
		negB.Bits[i] = nb
	}
	carry, err := e.refresh(ctx, e.one())
	if err != nil {
		return word.EW{}, err
	}
	var cout lattice.GGSW
	for i := 0; i < word.Bits; i++ {
		_, c, err := e.fullAdder(ctx, a.Bits[i], negB.Bits[i], carry)
		if err != nil {
			return word.EW{}, err
		}
		carry = c
		cout = c
	}
	borrow, err := e.Not(ctx, cout)
	if err != nil {
		return word.EW{}, err
	}
	var out word.EW
	out.Bits[0] = dataOf(borrow)
	for i := 1; i < word.Bits; i++ {
		out.Bits[i] = e.zero()
	}
	return out, nil
}

// MuxWord selects between two full words bit-by-bit using a single GGSW
// selector, the word-level lift of Mux (spec.md §4.5's lane-folding
// pattern applied to full EWs rather than single bits).
func (e *Env) MuxWord(sel lattice.GGSW, on, off word.EW) word.EW {
	var out word.EW
	for i := 0; i < word.Bits; i++ {
		out.Bits[i] = e.Mux(sel, on.Bits[i], off.Bits[i])
	}
	return out
}

// BitsEqual computes a single GGSW bit encrypting 1 iff bits (an
// arbitrary-width slice of prepared bits, LSB first) equals the constant
// want, via an AND chain of per-bit XNOR gates — the same equality
// primitive pkg/dispatch's opcode check uses, generalized here for any
// encrypted index (a register number, a byte lane, an immediate format
// selector) that must be compared against a fixed cleartext constant
// without ever being decrypted.
func (e *Env) BitsEqual(ctx context.Context, bits []lattice.GGSW, want uint32) (lattice.GGSW, error) {
	var acc lattice.GGSW
	first := true
	for i, b := range bits {
		var match lattice.GGSW
		var err error
		if (want>>uint(i))&1 == 1 {
			match = b
		} else {
			match, err = e.Not(ctx, b)
			if err != nil {
				return lattice.GGSW{}, fmt.Errorf("circuit: bitsequal: %w", err)
			}
		}
		if first {
			acc = match
			first = false
			continue
		}
		acc, err = e.And(ctx, acc, match)
		if err != nil {
			return lattice.GGSW{}, fmt.Errorf("circuit: bitsequal: %w", err)
		}
	}
	return acc, nil
}

// WordsEqual computes a single GGSW bit encrypting 1 iff a and b are
// bitwise equal across all 32 lanes (spec.md §2 BEQ/BNE: "rs1 == rs2"),
// via a fold of per-bit XNOR into one AND chain.
func (e *Env) WordsEqual(ctx context.Context, a, b word.Prepared) (lattice.GGSW, error) {
	var acc lattice.GGSW
	for i := 0; i < word.Bits; i++ {
		xor, err := e.Xor(ctx, a.Bits[i], b.Bits[i])
		if err != nil {
			return lattice.GGSW{}, fmt.Errorf("circuit: wordsequal: %w", err)
		}
		eqBit, err := e.Not(ctx, xor)
		if err != nil {
			return lattice.GGSW{}, fmt.Errorf("circuit: wordsequal: %w", err)
		}
		if i == 0 {
			acc = eqBit
			continue
		}
		acc, err = e.And(ctx, acc, eqBit)
		if err != nil {
			return lattice.GGSW{}, fmt.Errorf("circuit: wordsequal: %w", err)
		}
	}
	return acc, nil
}

// SelectWord obliviously folds values[i] into the output wherever idx
// equals i, visiting every candidate regardless of idx's actual value —
// the oblivious array-read primitive pkg/cycle uses for register-file
// reads (spec.md §4.5 step 2: "register read must not reveal which
// registers were addressed"). values[0] is the default when idx matches
// no other index (idx==0).
func (e *Env) SelectWord(ctx context.Context, idx []lattice.GGSW, values []word.EW) (word.EW, error) {
	out := values[0]
	for i := 1; i < len(values); i++ {
		eq, err := e.BitsEqual(ctx, idx, uint32(i))
		if err != nil {
			return word.EW{}, fmt.Errorf("circuit: selectword: %w", err)
		}
		out = e.MuxWord(eq, values[i], out)
	}
	return out, nil
}

// ScatterWord obliviously writes value into a copy of values at the slot
// idx addresses, leaving every other slot unchanged — the register-file
// writeback analogue of SelectWord (spec.md §4.5 step 8). Every slot is
// touched every call, so which register (if any) actually changed is
// never revealed. Pinning x0 to zero regardless of idx is the caller's
// job (spec.md §4.5's x0 invariant is architectural, not a property of
// this generic array primitive).
func (e *Env) ScatterWord(ctx context.Context, idx []lattice.GGSW, values []word.EW, value word.EW) ([]word.EW, error) {
	out := make([]word.EW, len(values))
	for i := range values {
		eq, err := e.BitsEqual(ctx, idx, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("circuit: scatterword: %w", err)
		}
		out[i] = e.MuxWord(eq, value, values[i])
	}
	return out, nil
}

// TrivialBit builds a public GGSW selector encoding a compile-time-known
// Boolean constant (bit 0 or 1), with the same C0-only row encoding
// pkg/address's encryptBit uses: no secret key is needed since the value
// is not a secret. Nothing in this module calls it; pkg/cycle's decoder
// fills the forced-zero low immediate bits with zero GLWEs instead.
func (e *Env) TrivialBit(bit uint64) lattice.GGSW {
	gg := e.Ring.NewGGSW(e.Keys.Dnum)
	base := uint64(1)
	for l := 0; l < e.Keys.Dnum; l++ {
		body := e.Ring.NewPoly()
		body.Coeffs()[0] = bit * base
		gg.C0[l] = lattice.GLWE{Body: body, Mask: e.Ring.NewPoly()}
		base <<= uint(e.BaseLog)
	}
	return gg
}

// Evaluate dispatches a two-operand circuit by opcode (spec.md C6,
// keyed by opcode id — the actual opcode-id selection across circuits is
// pkg/dispatch's job; Evaluate implements one circuit's body once
// selected). b is rs2 for register-register ops or the decoded immediate
// (re-prepared) for immediate-form ops; callers pick the right operand
// before calling.
func (e *Env) Evaluate(ctx context.Context, op isa.Op, a, b word.Prepared) (word.EW, error) {
	switch op {
	case isa.ADD, isa.ADDI, isa.JAL, isa.JALR, isa.AUIPC:
		return e.Add(ctx, a, b)
	case isa.SUB:
		return e.Sub(ctx, a, b)
	case isa.AND, isa.ANDI:
		return e.And32(ctx, a, b)
	case isa.OR, isa.ORI:
		return e.Or32(ctx, a, b)
	case isa.XOR, isa.XORI:
		return e.Xor32(ctx, a, b)
	case isa.SLL, isa.SLLI:
		return e.Sll(a, b), nil
	case isa.SRL, isa.SRLI:
		return e.Srl(a, b), nil
	case isa.SRA, isa.SRAI:
		return e.Sra(a, b), nil
	case isa.SLT, isa.SLTI:
		return e.Slt(ctx, a, b)
	case isa.SLTU, isa.SLTIU:
		return e.Sltu(ctx, a, b)
	case isa.LUI:
		return word.Pack(b), nil
	case isa.NONE:
		return word.Pack(a), nil
	case isa.LB, isa.LBU, isa.LH, isa.LHU, isa.LW:
		// Loads only need the effective address out of the generic
		// catalog; the loaded word's post-processing (byte/halfword
		// splice and sign/zero extension) happens after the RAM stage in
		// pkg/cycle, which is why this opcode is excluded from the rd
		// lane's id-equality fold (spec.md §4.3 "pure post-processing").
		// Evaluating it here anyway, to a well-defined fixed-cost result,
		// keeps the per-opcode work profile uniform across the whole
		// catalog even for opcodes a lane handles specially.
		return e.Add(ctx, a, b)
	case isa.SB, isa.SH, isa.SW:
		// Store data is simply rs2; pkg/cycle handles the RAM-side byte/
		// halfword lane splice itself, since that also needs the store
		// address and current memory contents.
		return word.Pack(b), nil
	case isa.BEQ, isa.BNE, isa.BLT, isa.BGE, isa.BLTU, isa.BGEU:
		// Placeholder fixed-cost evaluation; pkg/cycle computes the real
		// branch-taken/not-taken candidate from a dedicated condition
		// circuit, since a branch's PC-lane result depends on both
		// operands (the comparison) and two further operands (pc, pc+imm)
		// this two-operand signature has no room for.
		return e.Add(ctx, a, b)
	default:
		return word.EW{}, fmt.Errorf("circuit: unsupported opcode %v", op)
	}
}
