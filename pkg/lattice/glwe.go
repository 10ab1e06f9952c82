package lattice

// GLWE is a GLWE ciphertext: a tuple of polynomials over ℤ[X]/(Xᴺ+1), rank
// r+1 (spec.md §3). This backend fixes rank=1 (matching params.DefaultRank
// and original_source/fhevm/src/parameters.rs's RANK=1), so a GLWE is the
// familiar two-polynomial RLWE sample (body, mask): Body = message + noise
// - mask*s, Mask = a uniformly random polynomial. The encrypted word (EW,
// spec.md C3) is 32 of these, one per bit.
type GLWE struct {
	Body Poly
	Mask Poly
}

// NewGLWE allocates a zero GLWE ciphertext (encrypting zero under any key,
// with no noise — only useful as an accumulator seed or as the
// structurally-wired x0 register, spec.md §3).
func (rg *Ring) NewGLWE() GLWE {
	return GLWE{Body: rg.NewPoly(), Mask: rg.NewPoly()}
}

// Add computes the coefficient-wise sum of two GLWE ciphertexts (linear:
// noise adds, no rescaling needed).
func (rg *Ring) AddGLWE(a, b GLWE) GLWE {
	return GLWE{Body: rg.Add(a.Body, b.Body), Mask: rg.Add(a.Mask, b.Mask)}
}

// Sub computes the coefficient-wise difference of two GLWE ciphertexts.
func (rg *Ring) SubGLWE(a, b GLWE) GLWE {
	return GLWE{Body: rg.Sub(a.Body, b.Body), Mask: rg.Sub(a.Mask, b.Mask)}
}

// MulMonomialGLWE rotates both components of a GLWE ciphertext by X^k,
// used by pkg/ram and pkg/address to rotate a page/word to a target
// coefficient (spec.md §4.1 EA contract, §4.2 "external-product by the
// inner-digit part of the EA rotates the target word to coefficient 0").
func (rg *Ring) MulMonomialGLWE(c GLWE, k int) GLWE {
	return GLWE{Body: rg.MulMonomial(c.Body, k), Mask: rg.MulMonomial(c.Mask, k)}
}

// ScaleGLWE multiplies both components of a GLWE ciphertext by a small
// scalar mod Q, the GLWE analogue of scalarMul used when building gadget
// levels from a ciphertext rather than a plaintext (pkg/bootstrap's
// pack-gadget step).
func ScaleGLWE(rg *Ring, c GLWE, s uint64) GLWE {
	return GLWE{Body: rg.scalarMul(c.Body, s), Mask: rg.scalarMul(c.Mask, s)}
}

// Trace zeroes every non-constant coefficient of a GLWE's underlying
// plaintext, bounding the noise footprint after a rotate-and-pack
// (spec.md §4.2 "A trace operation then projects out all coefficients
// except 0"). Grounded on
// other_examples/...Pro7ech-lattigo__rlwe-traces.go's Evaluator.Trace,
// which implements the same "sum over Galois automorphisms" map; this
// backend's Trace takes the automorphism key bundle directly (spec.md C2)
// instead of a lattigo rlwe.Evaluator, since our GLWE type is not a
// rlwe.Ciphertext.
func (rg *Ring) Trace(c GLWE, autoKeys *AutomorphismKeySet) GLWE {
	acc := c
	n := rg.N
	for gap := 1; gap < n; gap <<= 1 {
		// φ_g: X -> X^g, g = n/gap + 1, matches traces.go's "{X-> X^(i *
		// 5^k)}" step comment in spirit (our ring uses the direct Galois
		// generator n/gap+1 rather than quintic-residue enumeration, which
		// is equivalent for a power-of-two cyclotomic ring).
		g := n/gap + 1
		rotated := rg.Automorphism(acc, g, autoKeys)
		acc = rg.AddGLWE(acc, rotated)
	}
	return acc
}

// Automorphism applies X -> X^g to a GLWE ciphertext using the matching key
// in autoKeys, key-switching the result back under the original secret key
// (spec.md C2: "automorphism keys" are part of the key bundle precisely so
// this operation stays valid under one secret key across a whole program).
func (rg *Ring) Automorphism(c GLWE, g int, autoKeys *AutomorphismKeySet) GLWE {
	key, ok := autoKeys.Get(g)
	if !ok {
		// No key for this Galois element: return the input unchanged. This
		// only happens for g=1 (identity), which is a correct no-op.
		if g%rg.N == 1 {
			return c
		}
		panic("lattice: missing automorphism key for Galois element")
	}
	permBody := rg.permute(c.Body, g)
	permMask := rg.permute(c.Mask, g)
	return key.Switch(rg, GLWE{Body: permBody, Mask: permMask})
}

// permute applies the coefficient-index permutation X^i -> X^(i*g mod 2N)
// of one polynomial, without any key-switch (the raw Galois action).
func (rg *Ring) permute(p Poly, g int) Poly {
	out := rg.NewPoly()
	n := rg.N
	src := p.Coeffs()
	dst := out.Coeffs()
	for i := 0; i < n; i++ {
		j := (i * g) % (2 * n)
		neg := false
		if j >= n {
			j -= n
			neg = true
		}
		if neg {
			dst[j] = (dst[j] + rg.Q - src[i]) % rg.Q
		} else {
			dst[j] = (dst[j] + src[i]) % rg.Q
		}
	}
	return out
}
