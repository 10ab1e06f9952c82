// Package trace implements a debug-only decrypt-and-dump helper for the
// encrypted cycle engine, analogous to
// original_source/fhevm/examples/trace.rs and rust/fhe-vm/src/trace.rs's
// debug-only decryption paths. Decryption never happens on the cycle
// engine's hot path (spec.md §4.6); this package exists for
// cmd/fhevmctl run's state dump and for printing state when a test
// assertion fails.
package trace

import (
	"context"
	"fmt"
	"strings"

	"github.com/fhevm32/fhevm32/pkg/cycle"
	"github.com/fhevm32/fhevm32/pkg/keys"
)

// Snapshot is one cycle's fully-decrypted architectural state.
type Snapshot struct {
	Cycle int
	PC    uint32
	GPR   [32]uint32
}

// String renders a snapshot as one line: hex PC, decimal registers, zero
// registers omitted so a dump of a short program stays readable.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycle %4d  pc=0x%08x", s.Cycle, s.PC)
	for i, v := range s.GPR {
		if v == 0 {
			continue
		}
		fmt.Fprintf(&b, "  x%d=%d", i, v)
	}
	return b.String()
}

// Capture decrypts d's full architectural state under sk. Callers outside
// tests and cmd/fhevmctl run should never have sk in scope at all —
// this function's signature itself documents that boundary.
func Capture(d *cycle.Driver, b *keys.Bundle, sk *keys.SecretKey, cycleNum int) Snapshot {
	snap := Snapshot{Cycle: cycleNum, PC: d.PC.Decrypt(b.Ring, sk)}
	for i, r := range d.GPR {
		snap.GPR[i] = r.Decrypt(b.Ring, sk)
	}
	return snap
}

// Run steps d n times, capturing and printing a snapshot after each step,
// returning every snapshot for a caller that wants to assert against them
// instead of (or in addition to) printing.
func Run(d *cycle.Driver, b *keys.Bundle, sk *keys.SecretKey, n int, print bool) ([]Snapshot, error) {
	snaps := make([]Snapshot, 0, n)
	for i := 0; i < n; i++ {
		if err := d.Step(context.Background()); err != nil {
			return snaps, fmt.Errorf("trace: cycle %d: %w", i, err)
		}
		snap := Capture(d, b, sk, i)
		snaps = append(snaps, snap)
		if print {
			fmt.Println(snap.String())
		}
	}
	return snaps, nil
}
