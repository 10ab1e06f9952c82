// Package bootstrap implements the circuit-bootstrapping pipeline
// (spec.md C8): the four-step sample-extract -> key-switch -> blind-
// rotate -> pack+gadget-encrypt conversion from a noisy GLWE bit into a
// fresh, noiseless-looking GGSW bit. Every EW.Prepare call (pkg/word) and
// every circuit gate whose result feeds a later selector (pkg/circuit)
// goes through this pipeline. Bits are processed by a worker pool sized
// by Pipeline.Workers, fanned out with golang.org/x/sync/errgroup: each of
// the up-to-32 bits of a word is independent work, so the pool just bounds
// how many run at once without changing which bit produces which result.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"golang.org/x/sync/errgroup"
)

// Pipeline implements word.Bootstrapper against a real key bundle. T
// (Workers) controls how many bits are bootstrapped concurrently; spec.md
// §8's "determinism across worker counts" property requires the result to
// be identical for every T, which holds here because each bit's pipeline
// is a pure function of that bit alone — Workers only bounds concurrency,
// never changes which bit computes which result.
type Pipeline struct {
	Keys    *keys.Bundle
	BaseLog int
	Dnum    int
	Workers int
}

// New builds a Pipeline from a key bundle, defaulting Workers to 1
// (sequential) unless the caller overrides it via WithWorkers.
func New(b *keys.Bundle) *Pipeline {
	return &Pipeline{Keys: b, BaseLog: b.BaseLog, Dnum: b.Dnum, Workers: 1}
}

// WithWorkers returns a copy of the pipeline configured to fan out across
// t concurrent workers (spec.md §5 "the cycle engine ... may be driven by
// T independent workers; the result must not depend on T").
func (p *Pipeline) WithWorkers(t int) *Pipeline {
	cp := *p
	if t < 1 {
		t = 1
	}
	cp.Workers = t
	return &cp
}

// Bootstrap implements word.Bootstrapper: it circuit-bootstraps every bit
// in the input slice independently and returns the GGSW results in the
// same order.
func (p *Pipeline) Bootstrap(ctx context.Context, bits []lattice.GLWE) ([]lattice.GGSW, error) {
	out := make([]lattice.GGSW, len(bits))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i, c := range bits {
		i, c := i, c
		g.Go(func() error {
			r, err := p.bootstrapOne(ctx, c)
			if err != nil {
				return fmt.Errorf("bootstrap: bit %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// bootstrapOne runs the four-step pipeline on a single ciphertext bit.
func (p *Pipeline) bootstrapOne(_ context.Context, c lattice.GLWE) (lattice.GGSW, error) {
	extracted := p.sampleExtract(c)
	switched := p.Keys.BlindRotKey.Switch(p.Keys.Ring, extracted)
	rotated := p.blindRotate(switched)
	return p.packGadget(rotated)
}

// sampleExtract normalizes a GLWE bit's message into the constant
// (degree-0) coefficient it must already occupy under this backend's
// convention of one dedicated GLWE per bit (spec.md C3 "32 GLWE bits");
// there is no separate LWE extraction step because this backend never
// packs multiple bits into one polynomial's coefficients the way a real
// TFHE bootstrap's blind-rotation accumulator does. The step is kept as a
// named no-op so the pipeline's four stages stay visible and each can be
// swapped independently if a packed-bit backend is substituted later
// (spec.md's backend-agnostic design note).
func (p *Pipeline) sampleExtract(c lattice.GLWE) lattice.GLWE {
	return c
}

// blindRotate re-linearizes the ciphertext by tracing out every
// coefficient but the constant term, bounding the noise contributed by
// whatever circuit produced c before this refresh (spec.md C8 step 3).
// This stands in for a full blind-rotation against a bootstrapping key;
// grounded on the same Trace-via-automorphism-sum primitive pkg/lattice
// already implements for RAM access (pkg/lattice/glwe.go Trace).
func (p *Pipeline) blindRotate(c lattice.GLWE) lattice.GLWE {
	return p.Keys.Ring.Trace(c, p.Keys.AutoKeys)
}

// packGadget gadget-encrypts the refreshed ciphertext into a full GGSW,
// mirroring the two-track layout lattice.EncryptGGSWMonomial builds from a
// plaintext monomial: level l's first track (C0) holds a fresh
// re-encryption of c scaled by Base2K^l, the second track (C1) holds that
// same scaled value times the secret key (spec.md C8 step 4 "pack +
// gadget-encrypt"). Unlike EncryptGGSWMonomial, packGadget never sees the
// plaintext secret key, so C1 is built from the scaled ciphertext's own
// (public) body and mask polynomials: decrypt(scaled) = body + mask*sk, so
// scaled_pt*sk = body*sk + mask*sk^2. CBTKey already holds a gadget
// encryption of sk under sk (used by C0's refresh too), giving the
// body*sk term directly; CBTKeyMul holds the matching encryption of sk^2,
// giving the mask*sk^2 term.
func (p *Pipeline) packGadget(c lattice.GLWE) (lattice.GGSW, error) {
	rg := p.Keys.Ring
	gg := rg.NewGGSW(p.Dnum)
	base := uint64(1)
	for l := 0; l < p.Dnum; l++ {
		scaled := lattice.ScaleGLWE(rg, c, base)
		gg.C0[l] = p.Keys.CBTKey.Switch(rg, scaled)
		bodyTimesSK := p.Keys.CBTKey.SwitchPlain(rg, scaled.Body)
		maskTimesSKSquared := p.Keys.CBTKeyMul.SwitchPlain(rg, scaled.Mask)
		gg.C1[l] = rg.AddGLWE(bodyTimesSK, maskTimesSKSquared)
		base <<= uint(p.BaseLog)
	}
	return gg, nil
}
