// Package bench implements a throughput/timing harness for the cycle
// engine (SPEC_FULL.md §4.9), analogous to
// original_source/fhevm/benches/rd_update.rs's Criterion benchmark of one
// dispatch round, but driving the whole nine-step cycle
// (fetch/register-read/prepare/dispatch/RAM/writeback/pc-update) and
// reporting total elapsed time on a periodic ticker; stages are not timed
// separately.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/fhevm32/fhevm32/pkg/cycle"
)

// Report is the outcome of running N cycles: wall time and derived
// throughput, matching the shape a caller would print (cmd/fhevmctl
// bench) or assert against in a test.
type Report struct {
	Cycles    int
	Elapsed   time.Duration
	PerCycle  time.Duration
	CyclesSec float64
}

func (r Report) String() string {
	return fmt.Sprintf("%d cycles in %s (%.3f cycles/sec, %s/cycle)",
		r.Cycles, r.Elapsed, r.CyclesSec, r.PerCycle)
}

// Run drives n cycles of d, reporting progress on the given interval if
// verbose is true (a non-positive interval falls back to 10 seconds).
func Run(ctx context.Context, d *cycle.Driver, n int, verbose bool, progressEvery time.Duration) (Report, error) {
	if progressEvery <= 0 {
		progressEvery = 10 * time.Second
	}

	start := time.Now()
	done := make(chan struct{})
	if verbose {
		go reportProgress(start, n, done, progressEvery)
	}

	for i := 0; i < n; i++ {
		if err := d.Step(ctx); err != nil {
			close(done)
			return Report{}, fmt.Errorf("bench: cycle %d: %w", i, err)
		}
	}
	close(done)

	elapsed := time.Since(start)
	perCycle := time.Duration(0)
	cyclesSec := 0.0
	if n > 0 {
		perCycle = elapsed / time.Duration(n)
		cyclesSec = float64(n) / elapsed.Seconds()
	}
	return Report{Cycles: n, Elapsed: elapsed, PerCycle: perCycle, CyclesSec: cyclesSec}, nil
}

func reportProgress(start time.Time, total int, done <-chan struct{}, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)
			fmt.Printf("bench: %s elapsed, target %d cycles\n", elapsed, total)
		}
	}
}
