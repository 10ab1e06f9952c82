package ram

import (
	"math/rand"
	"testing"

	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/word"
	"github.com/stretchr/testify/require"
)

func testSetup(t *testing.T) (*params.Parameters, *keys.Bundle, *keys.SecretKey) {
	t.Helper()
	p := &params.Parameters{
		LogN: 4, Rank: 1, Base2K: 4,
		DecompN: [2]uint8{2, 2},
		MaxAddr: 1 << 4,
	}
	b, sk, err := keys.New(p, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	return p, b, sk
}

func TestReadWriteRoundTrip(t *testing.T) {
	p, b, sk := testSetup(t)
	r := New(p, b.Ring)

	w := word.EncryptBits(b.Ring, sk, 0xCAFEBABE)
	require.NoError(t, r.Write(3, w, b, sk))

	got, err := r.Read(3, b, sk)
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFEBABE), got.Decrypt(b.Ring, sk))
}

func TestReadWriteDoesNotDisturbOtherAddresses(t *testing.T) {
	p, b, sk := testSetup(t)
	r := New(p, b.Ring)

	w0 := word.EncryptBits(b.Ring, sk, 0x11111111)
	w1 := word.EncryptBits(b.Ring, sk, 0x22222222)
	require.NoError(t, r.Write(0, w0, b, sk))
	require.NoError(t, r.Write(1, w1, b, sk))

	got0, err := r.Read(0, b, sk)
	require.NoError(t, err)
	got1, err := r.Read(1, b, sk)
	require.NoError(t, err)
	require.Equal(t, uint32(0x11111111), got0.Decrypt(b.Ring, sk))
	require.Equal(t, uint32(0x22222222), got1.Decrypt(b.Ring, sk))
}

func TestOutOfRangeWraps(t *testing.T) {
	p, b, sk := testSetup(t)
	r := New(p, b.Ring)
	w := word.EncryptBits(b.Ring, sk, 0x5)
	require.NoError(t, r.Write(uint32(p.MaxAddr+2), w, b, sk))
	got, err := r.Read(2, b, sk)
	require.NoError(t, err)
	require.Equal(t, uint32(0x5), got.Decrypt(b.Ring, sk))
}
