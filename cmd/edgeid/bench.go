package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dudu/edgeid/internal/preprocess"
)

var benchOpts Options

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure embedding model latency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench(cmd.Context(), benchOpts)
	},
}

func init() {
	benchCmd.Flags().IntVarP(&benchOpts.Iterations, "iterations", "n", 100, "Number of inference runs")
	rootCmd.AddCommand(benchCmd)
}

func runBench(ctx context.Context, opts Options) error {
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	// Deterministic pseudo-face input
	rng := rand.New(rand.NewSource(1))
	tensor := make([]float32, preprocess.TensorLen)
	for i := range tensor {
		tensor[i] = rng.Float32()*2 - 1
	}

	bar := progressbar.NewOptions(opts.Iterations,
		progressbar.OptionSetDescription("benchmarking"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var total time.Duration
	minLat := time.Duration(math.MaxInt64)
	var maxLat time.Duration
	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		if _, err := a.broker.Recognize(ctx, tensor); err != nil {
			return fmt.Errorf("inference %d failed: %w", i+1, err)
		}
		d := time.Since(start)

		total += d
		if d < minLat {
			minLat = d
		}
		if d > maxLat {
			maxLat = d
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	avg := total / time.Duration(opts.Iterations)
	fmt.Printf("%d runs: avg %v, min %v, max %v (%.1f embeddings/s)\n",
		opts.Iterations,
		avg.Round(time.Microsecond),
		minLat.Round(time.Microsecond),
		maxLat.Round(time.Microsecond),
		float64(time.Second)/float64(avg))
	return nil
}
