package dispatch

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/circuit"
	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// EqualityBuilder computes, for each catalog opcode, the GGSW bit
// encrypting 1 iff the fetched instruction's raw (opcode, funct3,
// funct7-bit-5) fields match that opcode's pattern (isa.RawCode) — an AND
// chain of per-bit XNOR gates, masked to only the bit positions that
// actually distinguish the opcode (isa.RawMask), since U-type/J-type
// opcodes repurpose the funct3/funct7 bit positions as immediate bits.
type EqualityBuilder struct {
	Env *circuit.Env
}

// Build returns the idEquality map Engine.Dispatch expects, evaluated
// lazily per opcode (the caller only pays for an opcode's equality check
// if it asks for it — Dispatch asks for all of them, but other callers,
// e.g. tests exercising one opcode, can skip the rest). rawBits must hold
// the fetched instruction's opcode/funct3/funct7-bit-5 fields in the
// packing isa.RawCode documents (bits[0:6]=opcode, bits[7:9]=funct3,
// bit[10]=funct7 bit 5).
func (b *EqualityBuilder) Build(ctx context.Context, rawBits word.Prepared) map[isa.Op]func() (lattice.GGSW, error) {
	out := make(map[isa.Op]func() (lattice.GGSW, error), len(isa.AllOps()))
	for _, op := range isa.AllOps() {
		op := op
		out[op] = func() (lattice.GGSW, error) {
			code, ok := isa.RawCode(op)
			if !ok {
				return lattice.GGSW{}, fmt.Errorf("dispatch: equality: %v has no raw code", op)
			}
			return b.equals(ctx, rawBits, code, isa.RawMask(op))
		}
	}
	return out
}

func (b *EqualityBuilder) equals(ctx context.Context, rawBits word.Prepared, want, mask uint32) (lattice.GGSW, error) {
	var acc lattice.GGSW
	first := true
	for i := 0; i < isa.RawWidth; i++ {
		if (mask>>uint(i))&1 == 0 {
			continue
		}
		bit := rawBits.Bits[i]
		var match lattice.GGSW
		var err error
		if (want>>uint(i))&1 == 1 {
			match = bit
		} else {
			match, err = b.Env.Not(ctx, bit)
			if err != nil {
				return lattice.GGSW{}, fmt.Errorf("dispatch: equality: %w", err)
			}
		}
		if first {
			acc = match
			first = false
			continue
		}
		acc, err = b.Env.And(ctx, acc, match)
		if err != nil {
			return lattice.GGSW{}, fmt.Errorf("dispatch: equality: %w", err)
		}
	}
	return acc, nil
}
