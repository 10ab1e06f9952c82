package cycle

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// postProcessLoad picks among the five load-width/sign-extension
// treatments of the word already read from RAM, obliviously, keyed on
// the decoded load opcode (spec.md C5 "loads ... are pure post-
// processing of the RAM read").
func (d *Driver) postProcessLoad(ctx context.Context, loaded word.EW, eqAll map[isa.Op]func() (lattice.GGSW, error)) (word.EW, error) {
	rg := d.Env.Ring

	lbVal := word.Sext(loaded, 8)
	lhVal := word.Sext(loaded, 16)

	lbuVal := loaded
	for i := 8; i < word.Bits; i++ {
		lbuVal.Bits[i] = rg.NewGLWE()
	}
	lhuVal := loaded
	for i := 16; i < word.Bits; i++ {
		lhuVal.Bits[i] = rg.NewGLWE()
	}

	out := loaded // LW default
	for op, val := range map[isa.Op]word.EW{isa.LB: lbVal, isa.LBU: lbuVal, isa.LH: lhVal, isa.LHU: lhuVal} {
		fn, ok := eqAll[op]
		if !ok {
			continue
		}
		sel, err := fn()
		if err != nil {
			return word.EW{}, fmt.Errorf("load select %v: %w", op, err)
		}
		out = d.Env.MuxWord(sel, val, out)
	}
	return out, nil
}

// spliceStore obliviously overlays rs2's low byte or halfword into the
// word already read at the store address, selecting which lane to
// splice (byte 0-3, halfword 0-1) from the effective address's own
// low-order bits rather than a decrypted offset (spec.md C5 "byte and
// halfword stores"). Word stores (SW), and every non-SB/SH opcode, take
// the final fallback below: the result is rs2 unchanged.
func (d *Driver) spliceStore(ctx context.Context, cur, rs2 word.EW, effAddr word.Prepared, eqAll map[isa.Op]func() (lattice.GGSW, error)) (word.EW, error) {
	laneBits := []lattice.GGSW{effAddr.Bits[0], effAddr.Bits[1]}
	halfBit := []lattice.GGSW{effAddr.Bits[1]}

	byteSpliced, err := d.selectByLane(ctx, laneBits, [4]word.EW{
		word.SpliceU8(cur, rs2, 0), word.SpliceU8(cur, rs2, 1),
		word.SpliceU8(cur, rs2, 2), word.SpliceU8(cur, rs2, 3),
	})
	if err != nil {
		return word.EW{}, fmt.Errorf("byte lane: %w", err)
	}
	halfSpliced, err := d.selectByLane2(ctx, halfBit, [2]word.EW{
		word.SpliceU16(cur, rs2, 0), word.SpliceU16(cur, rs2, 1),
	})
	if err != nil {
		return word.EW{}, fmt.Errorf("half lane: %w", err)
	}

	isSB, err := eqAll[isa.SB]()
	if err != nil {
		return word.EW{}, err
	}
	isSH, err := eqAll[isa.SH]()
	if err != nil {
		return word.EW{}, err
	}

	out := rs2 // SW: the whole word
	out = d.Env.MuxWord(isSH, halfSpliced, out)
	out = d.Env.MuxWord(isSB, byteSpliced, out)
	return out, nil
}

func (d *Driver) selectByLane(ctx context.Context, laneBits []lattice.GGSW, cands [4]word.EW) (word.EW, error) {
	out := cands[0]
	for i := 1; i < 4; i++ {
		eq, err := d.Env.BitsEqual(ctx, laneBits, uint32(i))
		if err != nil {
			return word.EW{}, err
		}
		out = d.Env.MuxWord(eq, cands[i], out)
	}
	return out, nil
}

func (d *Driver) selectByLane2(ctx context.Context, laneBit []lattice.GGSW, cands [2]word.EW) (word.EW, error) {
	eq, err := d.Env.BitsEqual(ctx, laneBit, 1)
	if err != nil {
		return word.EW{}, err
	}
	return d.Env.MuxWord(eq, cands[1], cands[0]), nil
}
