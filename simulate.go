package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"bierbaron/game"
)

func newSimulateCommand() *cobra.Command {
	var (
		rounds  int
		seed    int64
		targets []float64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Estimate the house edge by simulating cash-out strategies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rounds <= 0 {
				return fmt.Errorf("--rounds must be positive")
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			rng := rand.New(rand.NewSource(seed))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Simulating %d rounds per target (seed %d)...\n\n", rounds, seed)
			fmt.Fprintf(out, "%-8s %-8s %-12s %-12s %s\n", "target", "cashout", "simulated", "expected", "house edge")

			for _, target := range targets {
				cashout := game.FirstTickAtOrAbove(target)
				simulated := game.SimulateHouseEdge(rng, rounds, target)
				expected := game.ExpectedReturn(cashout)
				fmt.Fprintf(out, "%-8.2f %-8.2f %-12.5f %-12.5f %.3f%%\n",
					target, cashout, simulated, expected, (1-simulated)*100)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", 1_000_000, "rounds to simulate per target")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed (0 = time based)")
	cmd.Flags().Float64SliceVar(&targets, "targets", []float64{1.01, 1.5, 2, 5, 10, 100}, "cash-out targets")
	return cmd
}
