// Package address implements the Encrypted Address (EA, spec.md C4): an
// address held as ciphertext, represented bit by bit as prepared (GGSW)
// Boolean wires. Applying an EA to a GLWE ciphertext rotates it by the
// address's value via blind rotation — a chain of CMux selections, each
// choosing between a polynomial and its publicly-rotated-by-2^i version
// based on one secret address bit — so the rotation amount used is never
// revealed even though the shift amounts 2^i themselves are public
// (spec.md §4.2 "external-product by the inner-digit part of the EA
// rotates the target word to coefficient 0").
package address

import (
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
)

// ErrInputSizeMismatch is spec.md §7's setup-time error kind, raised here
// when a plaintext address exceeds the configured address space.
var ErrInputSizeMismatch = fmt.Errorf("address: plaintext address out of range")

// EA is an Encrypted Address: one prepared (GGSW) bit per address bit,
// least-significant first (spec.md C4 "base-2 digit decomposition").
// Unlike a plain word.Prepared, EA only needs as many bits as the address
// space requires (Width), not a full machine word.
type EA struct {
	Bits []lattice.GGSW
}

// Width reports how many address bits an EA covers for the given
// parameter set (enough to cover MaxAddr-1, i.e. one page's word count).
func Width(wordsPerPage int) int {
	w := 0
	for n := wordsPerPage; n > 1; n >>= 1 {
		w++
	}
	return w
}

// Alloc allocates an EA encoding address 0 (every bit false), the
// identity rotation (spec.md §4.1 EA "alloc(params, base_2d)").
func Alloc(width int, b *keys.Bundle, sk *keys.SecretKey) EA {
	ea := EA{Bits: make([]lattice.GGSW, width)}
	for i := range ea.Bits {
		ea.Bits[i] = encryptBit(b.Ring, sk, 0, b.BaseLog, b.Dnum)
	}
	return ea
}

// Set encrypts a plaintext address into an EA (spec.md §4.1 EA
// "set(plaintext_address, sk, sources)"), a test/client-side path only —
// the server-side cycle driver always derives an EA from a ciphertext
// value's own prepared bits via FromPrepared, never from a plaintext
// int.
func Set(addr uint32, width int, b *keys.Bundle, sk *keys.SecretKey) (EA, error) {
	if int(addr) >= 1<<uint(width) {
		return EA{}, fmt.Errorf("address: %d exceeds %d-bit address space: %w", addr, width, ErrInputSizeMismatch)
	}
	ea := EA{Bits: make([]lattice.GGSW, width)}
	for i := range ea.Bits {
		bit := uint64((addr >> uint(i)) & 1)
		ea.Bits[i] = encryptBit(b.Ring, sk, bit, b.BaseLog, b.Dnum)
	}
	return ea, nil
}

// FromPrepared builds an EA directly from the low `width` bits of an
// already-prepared ciphertext word — the server-side path used when an
// address is computed at runtime (e.g. the PC, or a load/store effective
// address) and must never be decrypted to build the EA (spec.md §4.5
// "the effective address stays ciphertext end to end").
func FromPrepared(bits []lattice.GGSW, width int) EA {
	ea := EA{Bits: make([]lattice.GGSW, width)}
	copy(ea.Bits, bits[:width])
	return ea
}

// encryptBit builds a GGSW encrypting the constant Boolean bit (test/
// setup-only — mirrors pkg/bootstrap's output shape so Alloc/Set-built
// EAs are interchangeable with FromPrepared-built ones).
func encryptBit(rg *lattice.Ring, sk *keys.SecretKey, bit uint64, baseLog, dnum int) lattice.GGSW {
	gg := rg.NewGGSW(dnum)
	base := uint64(1)
	for l := 0; l < dnum; l++ {
		m := rg.NewPoly()
		m.Coeffs()[0] = bit * base
		gg.C0[l] = sk.EncryptPoly(rg, m)
		base <<= uint(baseLog)
	}
	return gg
}

// ExternalProductInplace rotates c by the address ea encodes, via blind
// rotation: bit i either leaves the accumulator alone or rotates it by
// the public shift 2^i, selected by ea's i-th secret bit (spec.md §4.2).
// Grounded on the same CMux primitive pkg/lattice/ggsw.go implements
// (itself grounded on the external-product construction in
// other_examples/...luxfi-fhe__gpu-external_product.go); the public
// per-bit rotation is pkg/lattice's MulMonomialGLWE.
func ExternalProductInplace(rg *lattice.Ring, ea EA, c lattice.GLWE, baseLog int) lattice.GLWE {
	acc := c
	for i, bit := range ea.Bits {
		rotated := rg.MulMonomialGLWE(acc, 1<<uint(i))
		acc = rg.CMux(bit, acc, rotated, baseLog)
	}
	return acc
}

// ExternalProductInverseInplace rotates c by -ea instead of +ea (spec.md
// §4.1 EA "inverse(auto_key, tensor_key)"), used by pkg/ram to rotate a
// written page back after splicing in a new word. Because each bit's
// selector is the same secret bit used for the forward rotation, negating
// the address only requires walking the same CMux chain with the shift
// amounts negated — no separate key material or re-encryption is needed.
func ExternalProductInverseInplace(rg *lattice.Ring, ea EA, c lattice.GLWE, baseLog int) lattice.GLWE {
	acc := c
	for i, bit := range ea.Bits {
		rotated := rg.MulMonomialGLWE(acc, -(1 << uint(i)))
		acc = rg.CMux(bit, acc, rotated, baseLog)
	}
	return acc
}
