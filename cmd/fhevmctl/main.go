// Command fhevmctl drives the encrypted RV32I cycle engine: key
// generation, running a guest program (encrypted or interpreted), a
// throughput benchmark, and a self-test aggregate runner (SPEC_FULL.md
// §4.7). Its command tree is one cobra root with one subcommand per mode,
// flags bound with plain Var/VarP calls and no config file format.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/fhevm32/fhevm32/pkg/bench"
	"github.com/fhevm32/fhevm32/pkg/bootstrap"
	"github.com/fhevm32/fhevm32/pkg/circuit"
	"github.com/fhevm32/fhevm32/pkg/cycle"
	"github.com/fhevm32/fhevm32/pkg/guest"
	"github.com/fhevm32/fhevm32/pkg/interp"
	"github.com/fhevm32/fhevm32/pkg/keys"
	"github.com/fhevm32/fhevm32/pkg/params"
	"github.com/fhevm32/fhevm32/pkg/ram"
	"github.com/fhevm32/fhevm32/pkg/selftest"
	"github.com/fhevm32/fhevm32/pkg/trace"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fhevmctl:", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "fhevmctl",
		Short: "Homomorphic RV32I cycle engine — keygen, run, interp, bench, selftest",
	}

	var numWorkers int
	var verbose bool
	var seed int64

	keygenCmd := &cobra.Command{
		Use:   "keygen [output-dir]",
		Short: "Generate a key bundle and secret key for the default parameter set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := params.New()
			_, _, err := keys.New(p, rand.New(rand.NewSource(seed)))
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			// Keys are not serialized: this subcommand exercises New and
			// reports the shape; nothing is written to the output-dir
			// argument.
			fmt.Printf("generated key bundle: LogN=%d Base2K=%d MaxAddr=%d\n", p.LogN, p.Base2K, p.MaxAddr)
			return nil
		},
	}

	var maxCycles int
	runCmd := &cobra.Command{
		Use:   "run [guest.elf]",
		Short: "Run a guest program on the encrypted cycle engine and print final state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			p := params.New()
			b, sk, err := keys.New(p, rand.New(rand.NewSource(seed)))
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			img, err := guest.Load(raw, b.Ring.N)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			rom := ram.Load(p, b.Ring, sk, img.Text)
			data := ram.New(p, b.Ring)

			pipe := pipelineFor(b, numWorkers)
			env := &circuit.Env{Ring: b.Ring, Keys: b, BS: pipe, BaseLog: b.BaseLog}
			d := cycle.New(p, env, rom, data, numWorkers)

			snaps, err := trace.Run(d, b, sk, maxCycles, verbose)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			if len(snaps) > 0 {
				fmt.Println("final:", snaps[len(snaps)-1].String())
			}
			return nil
		},
	}
	runCmd.Flags().IntVar(&maxCycles, "max-cycles", params.CycleBudgetDefault, "Number of cycles to execute")

	interpCmd := &cobra.Command{
		Use:   "interp [guest.elf]",
		Short: "Run a guest program on the cleartext reference interpreter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("interp: %w", err)
			}
			img, err := guest.Load(raw, interp.RAMWords)
			if err != nil {
				return fmt.Errorf("interp: %w", err)
			}
			var s interp.State
			for i := 0; i < maxCycles; i++ {
				interp.Step(&s, img.Text)
			}
			out, err := json.Marshal(s.GPR)
			if err != nil {
				return fmt.Errorf("interp: %w", err)
			}
			fmt.Printf("pc=0x%08x gpr=%s\n", s.PC, out)
			return nil
		},
	}
	interpCmd.Flags().IntVar(&maxCycles, "max-cycles", params.CycleBudgetDefault, "Number of cycles to execute")

	var benchCycles int
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure cycle engine throughput over a synthetic ADDI program",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &params.Parameters{LogN: 8, Rank: 1, Base2K: 4, DecompN: [2]uint8{4, 4}, MaxAddr: 256}
			b, sk, err := keys.New(p, rand.New(rand.NewSource(seed)))
			if err != nil {
				return fmt.Errorf("bench: %w", err)
			}
			image := syntheticProgram(benchCycles)
			rom := ram.Load(p, b.Ring, sk, image)
			data := ram.New(p, b.Ring)

			pipe := pipelineFor(b, numWorkers)
			env := &circuit.Env{Ring: b.Ring, Keys: b, BS: pipe, BaseLog: b.BaseLog}
			d := cycle.New(p, env, rom, data, numWorkers)

			report, err := bench.Run(context.Background(), d, benchCycles, verbose, 5*time.Second)
			if err != nil {
				return fmt.Errorf("bench: %w", err)
			}
			fmt.Println(report.String())
			return nil
		},
	}
	benchCmd.Flags().IntVar(&benchCycles, "cycles", 16, "Number of cycles to run")

	selftestCmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the E1-E5 encrypted/cleartext equivalence scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			cases := selftest.Run(seed)
			failed := 0
			for _, c := range cases {
				status := "PASS"
				if !c.Passed {
					status = "FAIL"
					failed++
				}
				fmt.Printf("%-4s %s: %s\n", status, c.Name, c.Detail)
			}
			if failed > 0 {
				return fmt.Errorf("selftest: %d/%d scenarios failed", failed, len(cases))
			}
			return nil
		},
	}

	for _, c := range []*cobra.Command{keygenCmd, runCmd, interpCmd, benchCmd, selftestCmd} {
		rootCmd.AddCommand(c)
	}
	rootCmd.PersistentFlags().IntVar(&numWorkers, "workers", 1, "Number of concurrent workers")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 1, "PRNG seed for key generation")

	return rootCmd.Execute()
}

// syntheticProgram builds n ADDI instructions cycling through a handful
// of registers, enough to keep bench from ever hitting ROM's end.
func syntheticProgram(n int) []uint32 {
	img := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		rd := uint32(1 + i%4)
		img = append(img, 0x13|rd<<7|uint32(i&0xf)<<20)
	}
	return img
}

func pipelineFor(b *keys.Bundle, workers int) *bootstrap.Pipeline {
	return bootstrap.New(b).WithWorkers(workers)
}
