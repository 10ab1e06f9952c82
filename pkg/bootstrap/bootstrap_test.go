package bootstrap

import (
	"context"
	"math/rand"
	"testing"

	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/word"
	"github.com/stretchr/testify/require"
)

func testBundle(t *testing.T) (*params.Parameters, *keys.Bundle, *keys.SecretKey) {
	t.Helper()
	p := &params.Parameters{LogN: 4, Rank: 1, Base2K: 4, DecompN: [2]uint8{2, 2}, MaxAddr: 16}
	b, sk, err := keys.New(p, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	return p, b, sk
}

func TestPrepareReturnsFullWord(t *testing.T) {
	_, b, sk := testBundle(t)
	pipe := New(b)

	ew := word.EncryptBits(b.Ring, sk, 0x1234)
	prepared, err := ew.Prepare(context.Background(), pipe)
	require.NoError(t, err)
	require.Len(t, prepared.Bits, word.Bits)
}

func TestDeterministicAcrossWorkerCounts(t *testing.T) {
	_, b, sk := testBundle(t)
	ew := word.EncryptBits(b.Ring, sk, 0xABCD)

	var results []word.Prepared
	for _, workers := range []int{1, 2, 4, 8} {
		pipe := New(b).WithWorkers(workers)
		p, err := ew.Prepare(context.Background(), pipe)
		require.NoError(t, err)
		results = append(results, p)
	}

	for i := 1; i < len(results); i++ {
		for bit := 0; bit < word.Bits; bit++ {
			require.Equal(t,
				results[0].Bits[bit].C0[0].Body.Coeffs(),
				results[i].Bits[bit].C0[0].Body.Coeffs(),
				"bit %d diverged across worker counts", bit)
		}
	}
}
