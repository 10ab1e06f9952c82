package lattice

import "math/bits"

// GGSW is a gadget-decomposed matrix of GLWEs encrypting the same message;
// it supports noiseless multiplication by a GLWE on the left (the external
// product, spec.md §3). Following spec.md's rank=1 fixture, one GGSW is two
// parallel tracks of Dnum GLWE "rows": C0[l] encrypts message*Base2K^l
// under the mask component, C1[l] the same scaled by the secret key under
// the body component. This mirrors the RGSW layout documented in
// other_examples/...luxfi-fhe__gpu-external_product.go ("C = [C0, C1]
// where C0, C1 are each [L, 2, N] RLWE samples").
type GGSW struct {
	C0 []GLWE
	C1 []GLWE
}

// NewGGSW allocates a zero GGSW with the ring's configured decomposition
// count.
func (rg *Ring) NewGGSW(dnum int) GGSW {
	c0 := make([]GLWE, dnum)
	c1 := make([]GLWE, dnum)
	for i := range c0 {
		c0[i] = rg.NewGLWE()
		c1[i] = rg.NewGLWE()
	}
	return GGSW{C0: c0, C1: c1}
}

// decompose performs the base-2^baseLog gadget decomposition of a
// polynomial into dnum signed digit-polynomials, centered around 0
// (matches other_examples/...luxfi-fhe__gpu-external_product.go's
// Decompose: "digit[l] = ((c + roundConst) >> (l*BaseLog)) & mask;
// digit[l] -= Base/2").
func (rg *Ring) decompose(p Poly, baseLog, dnum int) []Poly {
	base := uint64(1) << uint(baseLog)
	half := base / 2
	mask := base - 1

	out := make([]Poly, dnum)
	for l := range out {
		out[l] = rg.NewPoly()
	}
	var roundConst uint64
	for l := 0; l < dnum; l++ {
		roundConst += half << uint(l*baseLog)
	}
	src := p.Coeffs()
	for i := 0; i < rg.N; i++ {
		acc := src[i] + roundConst
		for l := 0; l < dnum; l++ {
			shift := uint(l * baseLog)
			digit := (acc >> shift) & mask
			if digit >= half {
				out[l].Coeffs()[i] = digit - half
			} else {
				out[l].Coeffs()[i] = rg.Q - (half - digit)
			}
		}
	}
	return out
}

// ExternalProduct computes GGSW × GLWE → GLWE (spec.md §4.3: "MUX(s, t, f)
// is computed as f + s·(t − f) where s is a GGSW ... external product; the
// GGSW branch carries no added noise from multiplication"). Algorithm
// grounded directly on
// other_examples/...luxfi-fhe__gpu-external_product.go's ExternalProduct:
// decompose the input ciphertext's two components, then accumulate the
// inner product against the GGSW's two gadget tracks.
func (rg *Ring) ExternalProduct(ct GLWE, gg GGSW, baseLog int) GLWE {
	dnum := len(gg.C0)
	maskDigits := rg.decompose(ct.Mask, baseLog, dnum)
	bodyDigits := rg.decompose(ct.Body, baseLog, dnum)

	result := rg.NewGLWE()
	for l := 0; l < dnum; l++ {
		// mask digit against C0[l], body digit against C1[l] (both tracks
		// contribute to both output components).
		result.Mask = rg.Add(result.Mask, rg.MulCoeffs(maskDigits[l], gg.C0[l].Mask))
		result.Mask = rg.Add(result.Mask, rg.MulCoeffs(bodyDigits[l], gg.C1[l].Mask))
		result.Body = rg.Add(result.Body, rg.MulCoeffs(maskDigits[l], gg.C0[l].Body))
		result.Body = rg.Add(result.Body, rg.MulCoeffs(bodyDigits[l], gg.C1[l].Body))
	}
	return result
}

// CMux computes CMux(s, d0, d1) = d0 + s·(d1 - d0) via ExternalProduct,
// exactly spec.md §4.3's MUX(s,t,f) = f + s·(t-f) with t=d1, f=d0.
// Grounded on other_examples/...luxfi-fhe__gpu-external_product.go's CMux.
func (rg *Ring) CMux(sel GGSW, d0, d1 GLWE, baseLog int) GLWE {
	diff := rg.SubGLWE(d1, d0)
	prod := rg.ExternalProduct(diff, sel, baseLog)
	return rg.AddGLWE(d0, prod)
}

// EncryptGGSWMonomial builds a GGSW encrypting the monomial X^k under sk
// (test-only: production key material never touches a plaintext secret key
// outside pkg/keys' generation step). pkg/address does not use it (its
// Set encrypts Boolean bits); only lattice_test calls it.
func (rg *Ring) EncryptGGSWMonomial(k int, sk *SecretKey, baseLog, dnum int) GGSW {
	gg := rg.NewGGSW(dnum)
	xk := rg.MonomialXk(k)
	base := uint64(1)
	for l := 0; l < dnum; l++ {
		scaled := rg.scalarMul(xk, base)
		gg.C0[l] = sk.EncryptPoly(rg, scaled)
		scaledBySk := rg.MulCoeffs(scaled, sk.S)
		gg.C1[l] = sk.EncryptPoly(rg, scaledBySk)
		base <<= uint(baseLog)
	}
	return gg
}

// scalarMul multiplies every coefficient of p by a small scalar mod Q.
func (rg *Ring) scalarMul(p Poly, s uint64) Poly {
	out := rg.NewPoly()
	src := p.Coeffs()
	dst := out.Coeffs()
	for i, c := range src {
		dst[i] = mulMod(c, s, rg.Q)
	}
	return out
}

func mulMod(a, b, q uint64) uint64 {
	// q is close to 2^61, so a*b can exceed 64 bits: take the full 128-bit
	// product and reduce it (a, b < q keeps the high word below q).
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, q)
}
