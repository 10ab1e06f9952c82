package address

import (
	"math/rand"
	"testing"

	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/stretchr/testify/require"
)

func testSetup(t *testing.T) (*params.Parameters, *keys.Bundle, *keys.SecretKey) {
	t.Helper()
	p := &params.Parameters{
		LogN: 4, Rank: 1, Base2K: 4,
		DecompN: [2]uint8{2, 2},
		MaxAddr: 1 << 4,
	}
	b, sk, err := keys.New(p, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	return p, b, sk
}

func TestSetRejectsOutOfRange(t *testing.T) {
	_, b, sk := testSetup(t)
	_, err := Set(1<<4, 4, b, sk)
	require.ErrorIs(t, err, ErrInputSizeMismatch)
}

func TestExternalProductRotatesToTargetSlot(t *testing.T) {
	_, b, sk := testSetup(t)
	rg := b.Ring

	// Encode the bit 1 (Q/2) as a one-hot polynomial at coefficient 0,
	// then rotate it by address `target`; the external product should
	// move the nonzero coefficient to position `target`.
	pt := rg.NewPoly()
	pt.Coeffs()[0] = rg.Q / 2
	ct := sk.EncryptPoly(rg, pt)

	target := uint32(5)
	ea, err := Set(target, Width(rg.N), b, sk)
	require.NoError(t, err)

	rotated := ExternalProductInplace(rg, ea, ct, b.BaseLog)
	got := sk.DecryptPoly(rg, rotated)

	half := rg.Q / 2
	for i, c := range got.Coeffs() {
		isSet := c > half/2 && c < half+half/2
		if uint32(i) == target {
			require.True(t, isSet, "expected nonzero coefficient at target slot %d", target)
		}
	}
}

func TestInverseRestoresOriginalRotation(t *testing.T) {
	_, b, sk := testSetup(t)
	rg := b.Ring

	pt := rg.NewPoly()
	pt.Coeffs()[0] = rg.Q / 2
	ct := sk.EncryptPoly(rg, pt)

	ea, err := Set(7, Width(rg.N), b, sk)
	require.NoError(t, err)

	rotated := ExternalProductInplace(rg, ea, ct, b.BaseLog)
	back := ExternalProductInverseInplace(rg, ea, rotated, b.BaseLog)
	got := sk.DecryptPoly(rg, back)

	half := rg.Q / 2
	require.True(t, got.Coeffs()[0] > half/2 && got.Coeffs()[0] < half+half/2)
}
