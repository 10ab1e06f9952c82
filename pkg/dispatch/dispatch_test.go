package dispatch

import (
	"context"
	"math/rand"
	"testing"

	"github.com/fhevm32/fhevm32/pkg/circuit"
	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/word"
	"github.com/stretchr/testify/require"
)

type fakeBootstrap struct {
	rg      *lattice.Ring
	sk      *lattice.SecretKey
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
		gg := f.rg.NewGGSW(f.dnum)
		base := uint64(1)
		for l := 0; l < f.dnum; l++ {
			m := f.rg.NewPoly()
			m.Coeffs()[0] = bit * base
			gg.C0[l] = f.sk.EncryptPoly(f.rg, m)
			base <<= uint(f.baseLog)
		}
		out[i] = gg
	}
	return out, nil
}

func testEngine(t *testing.T) (*Engine, *circuit.Env, *lattice.SecretKey) {
	t.Helper()
	p := &params.Parameters{LogN: 4, Rank: 1, Base2K: 4, DecompN: [2]uint8{2, 2}, MaxAddr: 16}
	b, sk, err := keys.New(p, rand.New(rand.NewSource(13)))
	require.NoError(t, err)
	fb := &fakeBootstrap{rg: b.Ring, sk: sk, baseLog: b.BaseLog, dnum: b.Dnum}
	env := &circuit.Env{Ring: b.Ring, Keys: b, BS: fb, BaseLog: b.BaseLog}
	return New(env, 4, nil), env, sk
}

func prepareWord(t *testing.T, env *circuit.Env, sk *lattice.SecretKey, v uint32) word.Prepared {
	t.Helper()
	ew := word.EncryptBits(env.Ring, sk, v)
	p, err := ew.Prepare(context.Background(), env.BS)
	require.NoError(t, err)
	return p
}

func TestDispatchSelectsActiveOpcode(t *testing.T) {
	eng, env, sk := testEngine(t)
	ctx := context.Background()

	a, bOperand := uint32(10), uint32(7)
	rs1 := prepareWord(t, env, sk, a)
	rs2 := prepareWord(t, env, sk, bOperand)

	addCode, ok := isa.RawCode(isa.ADD)
	require.True(t, ok)
	rawBits := prepareWord(t, env, sk, addCode)
	eq := &EqualityBuilder{Env: env}
	idEquality := eq.Build(ctx, rawBits)

	fallback := word.EncryptBits(env.Ring, sk, 0)
	res, err := eng.Dispatch(ctx, rs1, rs2, idEquality, fallback, fallback, fallback)
	require.NoError(t, err)
	require.Equal(t, a+bOperand, res.Rd.Decrypt(env.Ring, sk))
}
