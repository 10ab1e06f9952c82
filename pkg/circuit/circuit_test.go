package circuit

import (
	"context"
	"math/rand"
	"testing"

	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/word"
	"github.com/stretchr/testify/require"
)

// fakeBootstrap is a test-only Bootstrapper that decrypts and re-encrypts
// each bit through the secret key, standing in for pkg/bootstrap's real
// circuit-bootstrapping pipeline so this package's unit tests do not
// depend on it.
type fakeBootstrap struct {
	rg      *lattice.Ring
	sk      *keys.SecretKey
	baseLog int
	dnum    int
}

func (f *fakeBootstrap) Bootstrap(_ context.Context, bits []lattice.GLWE) ([]lattice.GGSW, error) {
	out := make([]lattice.GGSW, len(bits))
	for i, c := range bits {
		pt := f.sk.DecryptPoly(f.rg, c)
		half := f.rg.Q / 2
		bit := uint64(0)
		if v := pt.Coeffs()[0]; v > half/2 && v < half+half/2 {
			bit = 1
		}
		out[i] = encryptGGSWBit(f.rg, f.sk, bit, f.baseLog, f.dnum)
	}
	return out, nil
}

func encryptGGSWBit(rg *lattice.Ring, sk *lattice.SecretKey, bit uint64, baseLog, dnum int) lattice.GGSW {
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

func testEnv(t *testing.T) (*Env, *lattice.SecretKey) {
	t.Helper()
	p := &params.Parameters{LogN: 4, Rank: 1, Base2K: 4, DecompN: [2]uint8{2, 2}, MaxAddr: 16}
	b, sk, err := keys.New(p, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	fb := &fakeBootstrap{rg: b.Ring, sk: sk, baseLog: b.BaseLog, dnum: b.Dnum}
	return &Env{Ring: b.Ring, Keys: b, BS: fb, BaseLog: b.BaseLog}, sk
}

func prepare(t *testing.T, e *Env, sk *lattice.SecretKey, v uint32) word.Prepared {
	t.Helper()
	ew := word.EncryptBits(e.Ring, sk, v)
	p, err := ew.Prepare(context.Background(), e.BS)
	require.NoError(t, err)
	return p
}

func TestGatesTruthTable(t *testing.T) {
	e, sk := testEnv(t)
	ctx := context.Background()
	for _, a := range []uint32{0, 1} {
		for _, b := range []uint32{0, 1} {
			pa, pb := prepare(t, e, sk, a), prepare(t, e, sk, b)
			and, err := e.And(ctx, pa.Bits[0], pb.Bits[0])
			require.NoError(t, err)
			require.Equal(t, a&b, decodeBit(e, sk, dataOf(and)))

			or, err := e.Or(ctx, pa.Bits[0], pb.Bits[0])
			require.NoError(t, err)
			require.Equal(t, a|b, decodeBit(e, sk, dataOf(or)))

			xor, err := e.Xor(ctx, pa.Bits[0], pb.Bits[0])
			require.NoError(t, err)
			require.Equal(t, a^b, decodeBit(e, sk, dataOf(xor)))
		}
	}
}

func decodeBit(e *Env, sk *lattice.SecretKey, c lattice.GLWE) uint32 {
	pt := sk.DecryptPoly(e.Ring, c)
	half := e.Ring.Q / 2
	v := pt.Coeffs()[0]
	if v > half/2 && v < half+half/2 {
		return 1
	}
	return 0
}

func TestAddMatchesCleartext(t *testing.T) {
	e, sk := testEnv(t)
	ctx := context.Background()
	a, b := uint32(17), uint32(25)
	pa, pb := prepare(t, e, sk, a), prepare(t, e, sk, b)
	sum, err := e.Add(ctx, pa, pb)
	require.NoError(t, err)
	require.Equal(t, a+b, sum.Decrypt(e.Ring, sk))
}

func TestEvaluateDispatchesByOpcode(t *testing.T) {
	e, sk := testEnv(t)
	ctx := context.Background()
	a, b := uint32(100), uint32(58)
	pa, pb := prepare(t, e, sk, a), prepare(t, e, sk, b)

	sum, err := e.Evaluate(ctx, isa.ADD, pa, pb)
	require.NoError(t, err)
	require.Equal(t, a+b, sum.Decrypt(e.Ring, sk))

	diff, err := e.Evaluate(ctx, isa.SUB, pa, pb)
	require.NoError(t, err)
	require.Equal(t, a-b, diff.Decrypt(e.Ring, sk))

	andR, err := e.Evaluate(ctx, isa.AND, pa, pb)
	require.NoError(t, err)
	require.Equal(t, a&b, andR.Decrypt(e.Ring, sk))
}
