// Package lattice is the lattice-primitive backend (spec.md §9 "Backend
// abstraction": "the cycle engine is agnostic to which backend is active").
// It builds GLWE/GGSW ciphertexts, the external product, CMux, and trace
// operations the rest of this module is built on directly on top of
// github.com/tuneinsight/lattigo/v5's ring package: ring.Ring supplies the
// NTT and coefficient arithmetic, everything else (encryption, key
// generation, key-switching, gadget decomposition) is this package's own
// construction over that ring, not a wrapper around lattigo's rlwe/hebin
// ciphertext types. Nothing above this package touches lattigo directly;
// everything above programs against the Poly/GLWE/GGSW types and the Ring
// methods defined here, so a second backend only has to reimplement this
// package.
package lattice

import (
	"github.com/tuneinsight/lattigo/v5/ring"
)

// Ring is the polynomial ring ℤ[X]/(Xᴺ+1) this backend computes over, plus
// the single-modulus Q it operates at (spec.md §3's torus element is
// realised as this ring's coefficients scaled to the top of a 2^Base2K*dnum
// bit modulus — see Params.KGLWECt etc.).
type Ring struct {
	N   int
	Q   uint64
	r   *ring.Ring
}

// NewRing constructs the ring of degree N=2^logN over a single NTT-friendly
// modulus Q via lattigo/v5/ring.NewRing, the one lattigo entry point this
// backend calls before doing any ciphertext arithmetic of its own.
func NewRing(logN int, q uint64) (*Ring, error) {
	n := 1 << logN
	r, err := ring.NewRing(n, []uint64{q})
	if err != nil {
		return nil, err
	}
	return &Ring{N: n, Q: q, r: r}, nil
}

// Poly is one polynomial in ℤ[X]/(Xᴺ+1), coefficient representation.
type Poly struct {
	p *ring.Poly
}

// NewPoly allocates a zero polynomial.
func (rg *Ring) NewPoly() Poly {
	p := rg.r.NewPoly()
	return Poly{p: p}
}

// Coeffs exposes the coefficient slice (level 0, the only level this
// single-modulus backend uses) for direct read/write by callers that need
// to set a plaintext bit or a monomial (pkg/word, pkg/address).
func (p Poly) Coeffs() []uint64 {
	return p.p.Coeffs[0]
}

// Add computes r = a + b mod Q, coefficient-wise.
func (rg *Ring) Add(a, b Poly) Poly {
	out := rg.NewPoly()
	rg.r.Add(a.p, b.p, out.p)
	return out
}

// Sub computes r = a - b mod Q.
func (rg *Ring) Sub(a, b Poly) Poly {
	out := rg.NewPoly()
	rg.r.Sub(a.p, b.p, out.p)
	return out
}

// MulCoeffs multiplies two polynomials via NTT (lattigo's Montgomery
// pointwise multiply in the NTT domain), the canonical way
// ring.Ring-backed code in the pack (other_examples' lattigo examples)
// performs ring multiplication.
func (rg *Ring) MulCoeffs(a, b Poly) Poly {
	ta, tb, tc := rg.r.NewPoly(), rg.r.NewPoly(), rg.r.NewPoly()
	rg.r.NTT(a.p, ta)
	rg.r.NTT(b.p, tb)
	rg.r.MForm(tb, tb)
	rg.r.MulCoeffsMontgomery(ta, tb, tc)
	out := rg.NewPoly()
	rg.r.INTT(tc, out.p)
	return out
}

// MonomialXk builds the polynomial X^k, reduced mod (X^N ± 1): a signed k is
// represented as -X^(N-|k|) exploiting X^N = -1, exactly spec.md §4.1's EA
// contract ("The monomial in each GGSW must be exactly X^k with k in
// (-N, N); a signed k is represented as -X^(N-|k|)").
func (rg *Ring) MonomialXk(k int) Poly {
	out := rg.NewPoly()
	n := rg.N
	kk := ((k % (2 * n)) + 2*n) % (2 * n)
	idx := kk % n
	neg := kk >= n
	coeffs := out.Coeffs()
	if neg {
		coeffs[idx] = rg.Q - 1 // -1 mod Q
	} else {
		coeffs[idx] = 1
	}
	return out
}

// MulMonomial computes p * X^k via a coefficient rotation with the sign
// flips X^N = -1 induces, without going through NTT: this is the operation
// pkg/address's external_product_inplace and pkg/ram's page rotation both
// reduce to, so it is worth a direct O(N) implementation rather than
// routing every rotation through a full ring multiplication.
func (rg *Ring) MulMonomial(p Poly, k int) Poly {
	out := rg.NewPoly()
	n := rg.N
	kk := ((k % (2 * n)) + 2*n) % (2 * n)
	src := p.Coeffs()
	dst := out.Coeffs()
	for i := 0; i < n; i++ {
		j := i + kk
		neg := false
		if j >= 2*n {
			j -= 2 * n
		}
		if j >= n {
			j -= n
			neg = true
		}
		if neg {
			dst[j] = (rg.Q - src[i]) % rg.Q
		} else {
			dst[j] = src[i]
		}
	}
	return out
}

// Zero reports whether every coefficient of p is zero.
func (p Poly) Zero() bool {
	for _, c := range p.Coeffs() {
		if c != 0 {
			return false
		}
	}
	return true
}

// Clone deep-copies a polynomial.
func (p Poly) Clone() Poly {
	out := Poly{p: p.p.CopyNew()}
	return out
}
