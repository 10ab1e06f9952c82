package lattice

import "math/rand"

// SecretKey is the client-held GLWE secret: a ternary-coefficient
// polynomial over ℤ[X]/(Xᴺ+1) (spec.md §6: "Client-held secret key is a
// pair (GLWE secret ... with rank r and ternary coefficients, LWE secret as
// binary blocks ...)"). This backend fixes rank=1, so one polynomial is the
// whole GLWE secret. There is no separate LWE secret: the key-switch keys
// pkg/keys generates for circuit-bootstrapping are built from this same
// polynomial.
type SecretKey struct {
	S Poly
}

// KeyGenSecret samples a fresh ternary secret key.
func (rg *Ring) KeyGenSecret(rng *rand.Rand) *SecretKey {
	s := rg.NewPoly()
	coeffs := s.Coeffs()
	for i := range coeffs {
		switch rng.Intn(3) {
		case 0:
			coeffs[i] = 0
		case 1:
			coeffs[i] = 1
		case 2:
			coeffs[i] = rg.Q - 1
		}
	}
	return &SecretKey{S: s}
}

// EncryptPoly produces a fresh GLWE encryption of plaintext polynomial pt
// (test-only / client-side path, spec.md §4.1 encrypt_bits and §6 "Key
// material"). Noise is sampled from a small discrete Gaussian-like
// distribution approximated here by a bounded uniform perturbation: this
// backend targets functional correctness of the cycle engine, not
// side-channel-resistant noise calibration, which is exactly the
// parameter-choice concern spec.md §4.6/§7 scope out of the runtime path.
func (sk *SecretKey) EncryptPoly(rg *Ring, pt Poly) GLWE {
	mask := rg.NewPoly()
	coeffs := mask.Coeffs()
	for i := range coeffs {
		coeffs[i] = uint64(pseudoRandom(rg.Q))
	}
	as := rg.MulCoeffs(mask, sk.S)
	body := rg.Add(pt, rg.addNoise(rg.Sub(rg.NewPoly(), as)))
	return GLWE{Body: body, Mask: mask}
}

// addNoise perturbs each coefficient by a small bounded error term in
// [-16, 16], the single noise source of every encryption in this package.
func (rg *Ring) addNoise(p Poly) Poly {
	out := Poly{p: p.p.CopyNew()}
	coeffs := out.Coeffs()
	for i := range coeffs {
		e := int64(pseudoRandom(33)) - 16
		if e < 0 {
			coeffs[i] = (coeffs[i] + rg.Q + uint64(e)) % rg.Q
		} else {
			coeffs[i] = (coeffs[i] + uint64(e)) % rg.Q
		}
	}
	return out
}

// pseudoRandom is a process-global, non-cryptographic source used by the
// encryption helpers above, including the ciphertexts inside key-switch
// keys; pkg/keys' caller-seeded rand.Rand only samples the secret key.
var prngState uint64 = 0x9E3779B97F4A7C15

func pseudoRandom(bound uint64) uint64 {
	prngState ^= prngState << 13
	prngState ^= prngState >> 7
	prngState ^= prngState << 17
	if bound == 0 {
		return 0
	}
	return prngState % bound
}

// DecryptPoly recovers the plaintext polynomial (test-only, spec.md §4.1
// "decrypt(sk) -> u32 (test-only)").
func (sk *SecretKey) DecryptPoly(rg *Ring, c GLWE) Poly {
	as := rg.MulCoeffs(c.Mask, sk.S)
	return rg.Add(c.Body, as)
}

// KeySwitchKey re-encrypts ciphertexts under skFrom into ciphertexts valid
// under skTo, the primitive automorphism keys and the circuit-bootstrap
// pipeline's GLWE-to-GLWE key-switch both reduce to (spec.md C2, C8 step
// 2). It is a GGSW-like gadget-decomposed encryption of skFrom's
// polynomial under skTo.
type KeySwitchKey struct {
	rows []GLWE // rows[l] encrypts skFrom * Base2K^l under skTo
	base int
}

// GenKeySwitchKey builds the key material for Switch.
func GenKeySwitchKey(rg *Ring, skFrom, skTo *SecretKey, baseLog, dnum int) *KeySwitchKey {
	rows := make([]GLWE, dnum)
	base := uint64(1)
	for l := 0; l < dnum; l++ {
		scaled := rg.scalarMul(skFrom.S, base)
		rows[l] = skTo.EncryptPoly(rg, scaled)
		base <<= uint(baseLog)
	}
	return &KeySwitchKey{rows: rows, base: baseLog}
}

// Switch re-keys a GLWE ciphertext from skFrom to skTo using ksk, via the
// standard gadget-decompose-the-mask-and-inner-product-against-the-rows
// construction (the GLWE analogue of ExternalProduct's gadget sum).
func (ksk *KeySwitchKey) Switch(rg *Ring, c GLWE) GLWE {
	digits := rg.decompose(c.Mask, ksk.base, len(ksk.rows))
	result := GLWE{Body: c.Body.Clone(), Mask: rg.NewPoly()}
	for l, row := range ksk.rows {
		result.Body = rg.Add(result.Body, rg.MulCoeffs(digits[l], row.Body))
		result.Mask = rg.Add(result.Mask, rg.MulCoeffs(digits[l], row.Mask))
	}
	return result
}

// SwitchPlain gadget-decomposes a known (cleartext) polynomial p and dots
// it against ksk's rows, the same inner product Switch runs over a
// ciphertext's mask component, but starting from a plaintext with no
// existing body to carry through. The result is a fresh GLWE encrypting
// p*skFrom under skTo. pkg/bootstrap's packGadget uses this to build a
// GGSW's second gadget track (message*secret-key) from a ciphertext's own
// public mask/body polynomials, the way EncryptGGSWMonomial builds it from
// a plaintext monomial directly.
func (ksk *KeySwitchKey) SwitchPlain(rg *Ring, p Poly) GLWE {
	digits := rg.decompose(p, ksk.base, len(ksk.rows))
	result := rg.NewGLWE()
	for l, row := range ksk.rows {
		result.Body = rg.Add(result.Body, rg.MulCoeffs(digits[l], row.Body))
		result.Mask = rg.Add(result.Mask, rg.MulCoeffs(digits[l], row.Mask))
	}
	return result
}

// AutomorphismKeySet holds one KeySwitchKey per Galois element needed by
// Trace (spec.md C2 "automorphism keys"), keyed by the Galois exponent g.
type AutomorphismKeySet struct {
	byGalois map[int]*KeySwitchKey
}

// NewAutomorphismKeySet builds the automorphism key set Trace needs: one
// key per power-of-two gap's Galois element n/gap+1, for gap in
// {1,2,4,...,N/2}.
func NewAutomorphismKeySet(rg *Ring, sk *SecretKey, baseLog, dnum int) *AutomorphismKeySet {
	set := &AutomorphismKeySet{byGalois: make(map[int]*KeySwitchKey)}
	n := rg.N
	for gap := 1; gap < n; gap <<= 1 {
		g := n/gap + 1
		permuted := rg.permute(sk.S, g)
		permutedSk := &SecretKey{S: permuted}
		set.byGalois[g] = GenKeySwitchKey(rg, permutedSk, sk, baseLog, dnum)
	}
	return set
}

// Get returns the key-switch key for Galois element g, if present.
func (a *AutomorphismKeySet) Get(g int) (*KeySwitchKey, bool) {
	k, ok := a.byGalois[g]
	return k, ok
}
