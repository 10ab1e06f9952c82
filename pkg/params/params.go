// Package params defines the immutable cryptographic parameter set (spec.md
// C1): ring degree, torus precision, decomposition, and key shapes. Every
// other package in this module takes a *Parameters value and treats it as
// read-only for the lifetime of a program (spec.md §3: "Key bundle ... is a
// parameterised set of evaluation keys; lifetime = whole program. Immutable
// after generation.").
//
// Grounded on original_source/fhevm/src/parameters.rs (LOG_N, BASE2K, RANK,
// K_* torus-precision constants, DECOMP_N, MAX_ADDR) and on
// github.com/tuneinsight/lattigo/v5/core/rlwe's ParametersLiteral shape,
// the way other_examples/...Pro7ech-lattigo__he-hebin-blindrotation_test.go
// constructs `rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{LogN:
// ..., Q: []uint64{...}, NTTFlag: ...})`.
package params

import "fmt"

// Defaults mirror original_source/fhevm/src/parameters.rs exactly; the open
// question in spec.md §9 about DECOMP_N/MAX_ADDR authoritativeness is
// resolved in DESIGN.md by keeping these values (the more general design
// spec.md §9 describes).
const (
	DefaultLogN   = 11
	DefaultBase2K = 17
	DefaultRank   = 1

	kGLWEPt     = 3  // ciphertext-free plaintext precision (one bit's worth + guard)
	kGLWECtMul  = 3  // K_GLWE_CT = BASE2K * kGLWECtMul
	kGGSWMul    = 4  // K_GGSW_ADDR = BASE2K * kGGSWMul
	kEvkTrace   = 4  // K_EVK_TRACE = BASE2K * kEvkTrace
	kEvkGGSWInv = 5  // K_EVK_GGSW_INV = BASE2K * kEvkGGSWInv
)

// DecompN is the two-level address digit base: outer factor (powers of N)
// implicit in len(DecompN), inner factor bit-widths summing to LogN
// (spec.md §3 EA, §9 open question). [6,5] matches LogN=11 (6+5=11).
var DecompN = [2]uint8{6, 5}

// MaxAddr bounds the address space the EA can represent: 2^14 words,
// matching original_source/fhevm/src/parameters.rs's MAX_ADDR.
const MaxAddr = 1 << 14

// WordSize is the width in bytes of one RV32I word.
const WordSize = 4

// CycleBudgetDefault is a conservative default for max_cycles in examples
// and tests; callers (cmd/fhevmctl) override it per guest program.
const CycleBudgetDefault = 4096

// Parameters holds the immutable constants of spec.md §3's "Parameter set"
// entity: ring degree, torus precision per key class, rank, decomposition,
// and address/cycle limits. Field names mirror
// original_source/fhevm/src/parameters.rs's CryptographicParameters.
type Parameters struct {
	LogN  int
	N     int
	Base2K int
	Rank  int

	KGLWEPt     int
	KGLWECt     int
	KGGSWAddr   int
	KEvkTrace   int
	KEvkGGSWInv int

	DecompN [2]uint8
	MaxAddr int
}

// New builds the default parameter set used throughout this repository's
// tests and examples. It is not tuned for production security margins
// (spec.md §7: ParameterInconsistent is a build-time concern, not something
// New re-derives at runtime beyond the sanity checks below).
func New() *Parameters {
	p := &Parameters{
		LogN:   DefaultLogN,
		N:      1 << DefaultLogN,
		Base2K: DefaultBase2K,
		Rank:   DefaultRank,

		KGLWEPt:     kGLWEPt,
		KGLWECt:     DefaultBase2K * kGLWECtMul,
		KGGSWAddr:   DefaultBase2K * kGGSWMul,
		KEvkTrace:   DefaultBase2K * kEvkTrace,
		KEvkGGSWInv: DefaultBase2K * kEvkGGSWInv,

		DecompN: DecompN,
		MaxAddr: MaxAddr,
	}
	if err := p.Validate(); err != nil {
		// A bad default parameter set is a build-time bug, not a runtime
		// condition (spec.md §7 ParameterInconsistent): panic rather than
		// return an error from a function with no error return.
		panic(err)
	}
	return p
}

// DnumCt returns the gadget decomposition count for ciphertext-level
// external products (spec.md: "dnum, dsize for each key class").
func (p *Parameters) DnumCt() int {
	return ceilDiv(p.KGLWECt, p.Base2K)
}

// DnumGGSW returns the gadget decomposition count for address/opcode GGSWs.
func (p *Parameters) DnumGGSW() int {
	return ceilDiv(p.KGGSWAddr, p.Base2K)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Validate checks the parameter set is internally consistent
// (ErrParameterInconsistent, spec.md §7). This is the "static noise-
// estimation function" spec.md §4.6 calls for, simplified to the structural
// checks a build-time assertion can make without a full noise-growth model:
// ring degree must be a power of two and large enough to hold one RAM page
// per spec.md §4.2, decomposition digit widths must sum to LogN, and the
// address space must fit within MaxAddr.
func (p *Parameters) Validate() error {
	if p.N != 1<<p.LogN {
		return fmt.Errorf("params: N=%d is not 1<<LogN=%d: %w", p.N, p.LogN, ErrParameterInconsistent)
	}
	if p.Rank < 1 {
		return fmt.Errorf("params: rank must be >= 1: %w", ErrParameterInconsistent)
	}
	sum := 0
	for _, w := range p.DecompN {
		sum += int(w)
	}
	if sum != p.LogN {
		return fmt.Errorf("params: DecompN digit widths sum to %d, want LogN=%d: %w", sum, p.LogN, ErrParameterInconsistent)
	}
	if p.MaxAddr > p.N*(1<<(sum-int(p.DecompN[len(p.DecompN)-1]))) {
		// outer factor is powers of N, bounded so the digit decomposition
		// can actually address MaxAddr words.
		return fmt.Errorf("params: MaxAddr=%d exceeds addressable range: %w", p.MaxAddr, ErrParameterInconsistent)
	}
	if p.KGLWECt <= 0 || p.KGGSWAddr <= 0 || p.KEvkTrace <= 0 || p.KEvkGGSWInv <= 0 {
		return fmt.Errorf("params: torus precisions must be positive: %w", ErrParameterInconsistent)
	}
	return nil
}

// ErrParameterInconsistent is spec.md §7's build-time error kind.
var ErrParameterInconsistent = fmt.Errorf("params: inconsistent parameter set")
