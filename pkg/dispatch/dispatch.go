// Package dispatch implements the blind dispatch engine (spec.md C7):
// every supported opcode's circuit (pkg/circuit) runs concurrently
// regardless of which instruction is actually active, and the one result
// that matters is selected obliviously via a CMux chain keyed on an
// encrypted opcode-id equality check — so the set of operations performed
// per cycle is fixed and never reveals which opcode executed (spec.md §8
// "cycle-count obliviousness").
package dispatch

import (
	"context"
	"fmt"

	"github.com/fhevm32/fhevm32/pkg/circuit"
	"github.com/fhevm32/fhevm32/pkg/isa"
	"github.com/fhevm32/fhevm32/pkg/lattice"
	"github.com/fhevm32/fhevm32/pkg/word"
	"golang.org/x/sync/errgroup"
)

// Engine runs every catalog opcode's circuit each cycle and selects the
// active one's result per lane.
type Engine struct {
	Env     *circuit.Env
	Workers int
	Ops     []isa.Op
}

// New builds a dispatch engine over env, fanning circuit evaluation out
// across workers concurrent goroutines (spec.md §5). ops is the fixed set
// of opcodes this engine's Dispatch evaluates every call; pass nil for
// the full catalog (isa.AllOps()). pkg/cycle passes a narrower set for
// its rd-lane engine, since JAL/JALR/loads/stores/branches need operand
// pairs the generic two-operand catalog can't express and are instead
// computed by dedicated circuits in pkg/cycle (spec.md §9 Open Question
// on dual-lane opcodes).
func New(env *circuit.Env, workers int, ops []isa.Op) *Engine {
	if workers < 1 {
		workers = 1
	}
	if ops == nil {
		ops = isa.AllOps()
	}
	return &Engine{Env: env, Workers: workers, Ops: ops}
}

// candidate is one opcode's circuit result together with its class.
type candidate struct {
	op     isa.Op
	result word.EW
	lane   isa.Lane
}

// Result holds the obliviously-selected outputs of one dispatch round:
// the new rd value, the new pc value, and the RAM-store payload, each
// defaulting to the corresponding "no-op" input when no opcode from that
// lane matched (spec.md §4.4 dispatch "selects rd/pc/RAM-write lanes").
type Result struct {
	Rd  word.EW
	PC  word.EW
	RAM word.EW
}

// Dispatch runs the full opcode catalog's circuits concurrently, then
// selects the active opcode's result into the matching lane. idEquality
// must supply, for every catalog opcode, a single GGSW bit that is an
// encryption of 1 iff that opcode is the one decoded this cycle and 0
// otherwise (spec.md C7; computing that equality from the encrypted
// opcode field is pkg/cycle's job — dispatch only consumes it, keeping
// this package free of instruction-decode concerns).
func (e *Engine) Dispatch(ctx context.Context, rs1, rs2 word.Prepared, idEquality map[isa.Op]func() (lattice.GGSW, error), fallbackRd, fallbackPC, fallbackRAM word.EW) (Result, error) {
	ops := e.Ops
	candidates := make([]candidate, len(ops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			res, err := e.Env.Evaluate(gctx, op, rs1, rs2)
			if err != nil {
				return fmt.Errorf("dispatch: opcode %v: %w", op, err)
			}
			candidates[i] = candidate{op: op, result: res, lane: isa.ClassOf(op)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	out := Result{Rd: fallbackRd, PC: fallbackPC, RAM: fallbackRAM}
	for i, op := range ops {
		selFn, ok := idEquality[op]
		if !ok {
			continue
		}
		sel, err := selFn()
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: selector for %v: %w", op, err)
		}
		switch candidates[i].lane {
		case isa.LaneRd:
			out.Rd = muxEW(e.Env, sel, candidates[i].result, out.Rd)
		case isa.LanePC:
			out.PC = muxEW(e.Env, sel, candidates[i].result, out.PC)
		case isa.LaneRAM:
			out.RAM = muxEW(e.Env, sel, candidates[i].result, out.RAM)
		}
	}
	return out, nil
}

func muxEW(env *circuit.Env, sel lattice.GGSW, on, off word.EW) word.EW {
	var out word.EW
	for i := 0; i < word.Bits; i++ {
		out.Bits[i] = env.Mux(sel, on.Bits[i], off.Bits[i])
	}
	return out
}
