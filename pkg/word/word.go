// Package word implements the Encrypted Word (EW, spec.md C3): a 32-bit
// machine word held entirely as ciphertext, in two forms — 32 GLWE bits
// (the form registers, RAM cells, and the PC are stored in) and a
// "prepared" GGSW form (the form every per-opcode circuit and MUX selector
// consumes). Converting between the two forms is circuit-bootstrapping
// (spec.md C8), which this package calls through the Bootstrapper
// interface rather than importing pkg/bootstrap directly, keeping the
// dependency edge one-directional (pkg/bootstrap depends on pkg/word's
// types, not the reverse).
package word

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
)

// Bits is the bitwidth of a machine word (RV32I, spec.md §2).
const Bits = 32

// ErrNoiseExhausted is spec.md §7's end-of-run, client-only error kind:
// "the noise budget of a ciphertext has been exceeded; only detectable by
// the client via a failed final decryption, never by the server."
var ErrNoiseExhausted = fmt.Errorf("word: noise budget exhausted")

// EW is an Encrypted Word in GLWE-bits form: bit 0 is the least
// significant bit. Every register, RAM cell, and the PC are EWs
// (spec.md §3).
type EW struct {
	Bits [Bits]lattice.GLWE
}

// Prepared is an Encrypted Word in GGSW form, the representation every
// per-opcode Boolean circuit (pkg/circuit) and MUX selector (pkg/dispatch)
// consumes (spec.md §3: "a word may additionally exist in a 'prepared'
// form ... produced by circuit-bootstrapping").
type Prepared struct {
	Bits [Bits]lattice.GGSW
}

// Bootstrapper turns GLWE bits into GGSW bits (spec.md C8). pkg/bootstrap
// implements this; it is an interface here purely to keep this package
// import-cycle-free with respect to pkg/bootstrap.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, bits []lattice.GLWE) ([]lattice.GGSW, error)
}

// Zero returns the EW encrypting 0 under any key (structural, noiseless —
// used to seed x0 and freshly-allocated RAM, spec.md §4.5 "x0 is pinned to
// the structural zero EW, never a register slot").
func Zero(rg *lattice.Ring) EW {
	var ew EW
	for i := range ew.Bits {
		ew.Bits[i] = rg.NewGLWE()
	}
	return ew
}

// Trivial builds a public (zero-mask) EW encoding the compile-time
// constant v, decryptable correctly under any secret key since it carries
// no key-dependent mask term — used for the small constants the cycle
// driver's dedicated adders need (e.g. the link-address "+4", spec.md
// §4.2's convention that publicly-known operands need no real
// encryption).
func Trivial(rg *lattice.Ring, v uint32) EW {
	var ew EW
	for i := 0; i < Bits; i++ {
		bit := uint64((v >> uint(i)) & 1)
		body := rg.NewPoly()
		body.Coeffs()[0] = bit * (rg.Q / 2)
		ew.Bits[i] = lattice.GLWE{Body: body, Mask: rg.NewPoly()}
	}
	return ew
}

// EncryptBits encrypts a plaintext 32-bit word bit-by-bit under sk
// (spec.md §4.1 "encrypt_bits(u32, sk) -> EW"). Test/client-side only.
func EncryptBits(rg *lattice.Ring, sk *keys.SecretKey, v uint32) EW {
	var ew EW
	for i := 0; i < Bits; i++ {
		bit := uint64((v >> uint(i)) & 1)
		pt := rg.NewPoly()
		pt.Coeffs()[0] = bit * (rg.Q / 2)
		ew.Bits[i] = sk.EncryptPoly(rg, pt)
	}
	return ew
}

// Decrypt recovers the plaintext word (spec.md §4.1 "decrypt(sk) -> u32
// (test-only)"). Never called from the server-side cycle path; only from
// tests and pkg/trace's debug dumper.
func (ew EW) Decrypt(rg *lattice.Ring, sk *keys.SecretKey) uint32 {
	var v uint32
	for i := 0; i < Bits; i++ {
		pt := sk.DecryptPoly(rg, ew.Bits[i])
		c := pt.Coeffs()[0]
		half := rg.Q / 2
		bit := uint32(0)
		if c > half/2 && c < half+half/2 {
			bit = 1
		}
		v |= bit << uint(i)
	}
	return v
}

// Prepare circuit-bootstraps every bit of ew into GGSW form via bs. It
// returns an error wrapping ErrNoiseExhausted only when bs returns a bit
// count other than Bits; no noise level is measured here.
func (ew EW) Prepare(ctx context.Context, bs Bootstrapper) (Prepared, error) {
	raw := make([]lattice.GLWE, Bits)
	copy(raw[:], ew.Bits[:])
	out, err := bs.Bootstrap(ctx, raw)
	if err != nil {
		return Prepared{}, fmt.Errorf("word: prepare: %w", err)
	}
	if len(out) != Bits {
		return Prepared{}, fmt.Errorf("word: prepare: bootstrapper returned %d bits, want %d: %w", len(out), Bits, ErrNoiseExhausted)
	}
	var p Prepared
	copy(p.Bits[:], out)
	return p, nil
}

// ZeroByte clears the low lane*8 bits to bit (lane+1)*8-1 inclusive,
// leaving the rest of the word untouched — the half of a byte/halfword
// store that zeroes the target lane before ORing in new data (spec.md C5
// "byte and halfword stores clear their lane before writing").
func ZeroByte(rg *lattice.Ring, ew EW, lane int) EW {
	out := ew
	lo := lane * 8
	for i := lo; i < lo+8; i++ {
		out.Bits[i] = rg.NewGLWE()
	}
	return out
}

// Sext sign-extends the bits above fromWidth using bit fromWidth-1 as the
// fill value, the EW-level primitive LB/LH rely on (spec.md §2 RV32I
// "loads ... LB/LH sign-extend").
func Sext(ew EW, fromWidth int) EW {
	out := ew
	fill := ew.Bits[fromWidth-1]
	for i := fromWidth; i < Bits; i++ {
		out.Bits[i] = fill
	}
	return out
}

// SpliceU8 overwrites byte lane `lane` (0..3) of dst with the low 8 bits
// of src, leaving the rest of dst untouched (spec.md C5 store-byte
// primitive, SB).
func SpliceU8(dst, src EW, lane int) EW {
	out := dst
	lo := lane * 8
	for i := 0; i < 8; i++ {
		out.Bits[lo+i] = src.Bits[i]
	}
	return out
}

// SpliceU16 overwrites halfword lane `lane` (0 or 1) of dst with the low
// 16 bits of src (spec.md C5 store-halfword primitive, SH).
func SpliceU16(dst, src EW, lane int) EW {
	out := dst
	lo := lane * 16
	for i := 0; i < 16; i++ {
		out.Bits[lo+i] = src.Bits[i]
	}
	return out
}

// Pack assembles a Prepared GGSW word's bits back into GLWE-bits form by
// sample-extracting the constant coefficient of each bit's own GLWE
// component track. In this backend a GGSW's C0[0] row already carries a
// GLWE encryption of the plaintext bit (spec.md C8 step 4 "pack + gadget-
// encrypt": packing is the inverse half of that step), so Pack simply
// projects each bit's lowest gadget level back out.
func Pack(p Prepared) EW {
	var ew EW
	for i := range ew.Bits {
		ew.Bits[i] = p.Bits[i].C0[0]
	}
	return ew
}
