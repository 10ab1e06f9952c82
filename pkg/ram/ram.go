// Package ram implements the RAM engine (spec.md C5): data memory held
// entirely as ciphertext and accessed obliviously — every read or write
// touches every word of memory so that access patterns never leak which
// address was used. One machine word's bit b lives at coefficient j of a
// single shared GLWE polynomial for every word j in memory; reading
// rotates that polynomial via the Encrypted Address's blind rotation
// (pkg/address) so the target word lands at coefficient 0, then traces
// out every other coefficient (spec.md §4.2).
//
// This backend resolves spec.md §9's Open Question on MaxAddr vs. the
// ring degree N in favor of N: since every word of the address space must
// live in one polynomial's coefficient slots for the single-page blind-
// rotation scheme above to stay fully oblivious (a second, page-selecting
// level of indirection would need its own oblivious selection, which this
// module does not implement), actual RAM capacity is Ring.N words; a
// configured MaxAddr larger than Ring.N is only used for wraparound
// arithmetic, never to size a second dimension of storage.
package ram

import (
	"github.com/fhevm32/fhevm32/pkg/address"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/word"
)

// RAM is the full oblivious data memory: Ring.N words, each word's 32
// bits spread one per coefficient of its own shared GLWE polynomial
// (spec.md §4.5).
type RAM struct {
	rg      *lattice.Ring
	page    [word.Bits]lattice.GLWE
	words   int
	maxAddr int
}

// New allocates a zeroed RAM.
func New(p *params.Parameters, rg *lattice.Ring) *RAM {
	r := &RAM{rg: rg, words: rg.N, maxAddr: p.MaxAddr}
	for b := range r.page {
		r.page[b] = rg.NewGLWE()
	}
	return r
}

// Width is the number of address bits ReadEA/WriteEA's EA must cover.
func (r *RAM) Width() int { return address.Width(r.words) }

// Ring exposes the backing polynomial ring, needed by callers (pkg/tape)
// that encrypt/decrypt words against this RAM's words without otherwise
// touching its internal page layout.
func (r *RAM) Ring() *lattice.Ring { return r.rg }

// Load encrypts a plaintext initial image into RAM (client/test-side
// setup path, analogous to word.EncryptBits but for a whole memory).
func Load(p *params.Parameters, rg *lattice.Ring, sk *keys.SecretKey, image []uint32) *RAM {
	r := New(p, rg)
	for addr, v := range image {
		if addr >= r.words {
			break
		}
		for b := 0; b < word.Bits; b++ {
			bit := uint64((v >> uint(b)) & 1)
			pt := rg.NewPoly()
			pt.Coeffs()[addr] = bit * (rg.Q / 2)
			r.page[b] = rg.AddGLWE(r.page[b], sk.EncryptPoly(rg, pt))
		}
	}
	return r
}

func wrap(addr uint32, maxAddr, words int) int {
	a := int(addr) % maxAddr
	return a % words
}

// ReadEA obliviously loads the word addressed by ea (spec.md §4.5
// "oblivious read"). ea never needs to be built from a decrypted value —
// pkg/cycle builds it straight from a ciphertext PC or effective
// address's own prepared bits (address.FromPrepared).
func (r *RAM) ReadEA(ea address.EA, b *keys.Bundle) word.EW {
	var out word.EW
	for i := 0; i < word.Bits; i++ {
		rotated := address.ExternalProductInplace(r.rg, ea, r.page[i], b.BaseLog)
		out.Bits[i] = r.rg.Trace(rotated, b.AutoKeys)
	}
	return out
}

// WriteEA obliviously stores w at the word addressed by ea (spec.md §4.5
// "write"). Every word of memory is touched: the target word's bit
// planes are updated in place by rotating in the new bit at coefficient
// 0, then rotating back with the address inverse.
func (r *RAM) WriteEA(ea address.EA, w word.EW, b *keys.Bundle) {
	for i := 0; i < word.Bits; i++ {
		rotated := address.ExternalProductInplace(r.rg, ea, r.page[i], b.BaseLog)
		cleared := r.rg.Trace(rotated, b.AutoKeys)
		diff := r.rg.SubGLWE(w.Bits[i], cleared)
		updated := r.rg.AddGLWE(rotated, diff)
		r.page[i] = address.ExternalProductInverseInplace(r.rg, ea, updated, b.BaseLog)
	}
}

// Read and Write are the test/client-side convenience wrappers that take
// a plaintext address, encrypt it into an EA via the address package's
// client-setup path, and delegate to ReadEA/WriteEA. Production cycle
// code never calls these — only tests and pkg/trace's debug tooling,
// where the plaintext address is already known by the party asking.
func (r *RAM) Read(addr uint32, b *keys.Bundle, sk *keys.SecretKey) (word.EW, error) {
	ea, err := address.Set(uint32(wrap(addr, r.maxAddr, r.words)), r.Width(), b, sk)
	if err != nil {
		return word.EW{}, err
	}
	return r.ReadEA(ea, b), nil
}

func (r *RAM) Write(addr uint32, w word.EW, b *keys.Bundle, sk *keys.SecretKey) error {
	ea, err := address.Set(uint32(wrap(addr, r.maxAddr, r.words)), r.Width(), b, sk)
	if err != nil {
		return err
	}
	r.WriteEA(ea, w, b)
	return nil
}

// WriteByte and WriteHalf splice a byte/halfword lane into the addressed
// word without disturbing the rest of it (spec.md C5 "byte and halfword
// stores"), by reading the current word, splicing, and writing it back.
func (r *RAM) WriteByte(addr uint32, src word.EW, lane int, b *keys.Bundle, sk *keys.SecretKey) error {
	cur, err := r.Read(addr, b, sk)
	if err != nil {
		return err
	}
	return r.Write(addr, word.SpliceU8(cur, src, lane), b, sk)
}

func (r *RAM) WriteHalf(addr uint32, src word.EW, lane int, b *keys.Bundle, sk *keys.SecretKey) error {
	cur, err := r.Read(addr, b, sk)
	if err != nil {
		return err
	}
	return r.Write(addr, word.SpliceU16(cur, src, lane), b, sk)
}
