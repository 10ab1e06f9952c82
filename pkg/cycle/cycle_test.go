package cycle

import (
	"context"
	"math/rand"
	"testing"

	"github.com/fhevm32/fhevm32/pkg/bootstrap"
	"github.com/fhevm32/fhevm32/pkg/circuit"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/ram"
	"github.com/stretchr/testify/require"
)

func testDriver(t *testing.T, image []uint32) (*Driver, *keys.Bundle, *keys.SecretKey) {
	t.Helper()
	p := &params.Parameters{LogN: 4, Rank: 1, Base2K: 4, DecompN: [2]uint8{2, 2}, MaxAddr: 16}
	b, sk, err := keys.New(p, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	pipe := bootstrap.New(b).WithWorkers(4)
	env := &circuit.Env{Ring: b.Ring, Keys: b, BS: pipe, BaseLog: b.BaseLog}

	rom := ram.Load(p, b.Ring, sk, image)
	data := ram.New(p, b.Ring)

	d := New(p, env, rom, data, 4)
	return d, b, sk
}

func encode(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return opcode | rd<<7 | funct3<<12 | rs1<<15 | rs2<<20 | funct7<<25
}

// encodeB assembles a B-type branch instruction with a given signed byte
// offset, matching isa.Decode's B-type bit layout exactly.
func encodeB(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	bit11 := (u >> 11) & 1
	bit12 := (u >> 12) & 1
	lo4 := (u >> 1) & 0xf
	hi6 := (u >> 5) & 0x3f
	return opcode | funct3<<12 | rs1<<15 | rs2<<20 |
		bit11<<7 | lo4<<8 | hi6<<25 | bit12<<31
}

// addi x1, x0, 5; addi x2, x0, 7; add x3, x1, x2
func addiProgram() []uint32 {
	return []uint32{
		encode(0x13, 1, 0, 0, 0, 0) | (5 << 20), // addi x1, x0, 5
		encode(0x13, 2, 0, 0, 0, 0) | (7 << 20),    // addi x2, x0, 7
		encode(0x33, 3, 0, 1, 2, 0),                // add x3, x1, x2
	}
}

func TestStepAddi(t *testing.T) {
	d, b, sk := testDriver(t, addiProgram())
	ctx := context.Background()

	require.NoError(t, d.Step(ctx))
	require.Equal(t, uint32(5), d.GPR[1].Decrypt(b.Ring, sk))

	require.NoError(t, d.Step(ctx))
	require.Equal(t, uint32(7), d.GPR[2].Decrypt(b.Ring, sk))

	require.NoError(t, d.Step(ctx))
	require.Equal(t, uint32(12), d.GPR[3].Decrypt(b.Ring, sk))
	require.Equal(t, uint32(12), d.PC.Decrypt(b.Ring, sk))
}

func TestStepX0Pinned(t *testing.T) {
	// addi x0, x0, 9 must leave x0 at zero regardless of rd decoding.
	prog := []uint32{encode(0x13, 0, 0, 0, 0, 0) | (9 << 20)}
	d, b, sk := testDriver(t, prog)

	require.NoError(t, d.Step(context.Background()))
	require.Equal(t, uint32(0), d.GPR[0].Decrypt(b.Ring, sk))
}

func TestStepBranchTaken(t *testing.T) {
	// beq x0, x0, 8 followed by addi x5, x0, 1: if BEQ wrongly fell
	// through to pc+4 the second instruction would still set x5, so this
	// only distinguishes a correctly-taken branch from the fallback.
	prog := []uint32{
		encodeB(0x63, 0, 0, 0, 8), // beq x0, x0, +8
		encode(0x13, 5, 0, 0, 0, 0) | (1 << 20),
	}
	d, b, sk := testDriver(t, prog)

	require.NoError(t, d.Step(context.Background()))
	pc := d.PC.Decrypt(b.Ring, sk)
	require.NotEqual(t, uint32(4), pc, "beq x0,x0 must be taken, not fall through to pc+4")
}
