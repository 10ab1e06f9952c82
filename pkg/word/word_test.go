package word

import (
	"math/rand"
	"testing"

	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/stretchr/testify/require"
)

func testRing(t *testing.T) (*lattice.Ring, *lattice.SecretKey) {
	t.Helper()
	rg, err := lattice.NewRing(4, 0x1fffffffffe00001)
	require.NoError(t, err)
	sk := rg.KeyGenSecret(rand.New(rand.NewSource(7)))
	return rg, sk
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	rg, sk := testRing(t)
	for _, v := range []uint32{0, 1, 0xDEADBEEF, 0xFFFFFFFF, 42} {
		ew := EncryptBits(rg, sk, v)
		require.Equal(t, v, ew.Decrypt(rg, sk))
	}
}

func TestZero(t *testing.T) {
	rg, sk := testRing(t)
	z := Zero(rg)
	require.Equal(t, uint32(0), z.Decrypt(rg, sk))
}

func TestZeroByte(t *testing.T) {
	rg, sk := testRing(t)
	ew := EncryptBits(rg, sk, 0xAABBCCDD)
	out := ZeroByte(rg, ew, 1) // clear byte lane 1 (bits 8..15, the 0xCC byte)
	require.Equal(t, uint32(0xAABB00DD), out.Decrypt(rg, sk))
}

func TestSextByte(t *testing.T) {
	rg, sk := testRing(t)
	neg := EncryptBits(rg, sk, 0x80) // byte 0x80, top bit set
	out := Sext(neg, 8)
	require.Equal(t, uint32(0xFFFFFF80), out.Decrypt(rg, sk))

	pos := EncryptBits(rg, sk, 0x7F)
	out2 := Sext(pos, 8)
	require.Equal(t, uint32(0x7F), out2.Decrypt(rg, sk))
}

func TestSpliceU8(t *testing.T) {
	rg, sk := testRing(t)
	dst := EncryptBits(rg, sk, 0x11223344)
	src := EncryptBits(rg, sk, 0xFF)
	out := SpliceU8(dst, src, 2)
	require.Equal(t, uint32(0x11FF3344), out.Decrypt(rg, sk))
}

func TestSpliceU16(t *testing.T) {
	rg, sk := testRing(t)
	dst := EncryptBits(rg, sk, 0x11223344)
	src := EncryptBits(rg, sk, 0xBEEF)
	out := SpliceU16(dst, src, 1)
	require.Equal(t, uint32(0xBEEF3344), out.Decrypt(rg, sk))
}
