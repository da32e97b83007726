package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lth/md5crack/internal/cracker"
	"github.com/lth/md5crack/internal/md5block"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Display the selected compute device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cracker.Open(deviceOptions())
			if err != nil {
				return errors.Wrap(err, "initialize device")
			}
			defer c.Close()

			info := c.DeviceInfo()
			fmt.Println("Compute Device")
			fmt.Println("==============")
			fmt.Printf("Name:          %s\n", info.Name)
			fmt.Printf("Vendor:        %s\n", info.Vendor)
			fmt.Printf("Backend:       %s\n", info.Backend)
			fmt.Printf("Compute units: %d\n", info.ComputeUnits)
			fmt.Printf("Timing:        %t\n", c.SupportsTiming())
			fmt.Printf("Batch size:    %d\n", cracker.BatchSize)
			return nil
		},
	}
}

func newBenchmarkCmd() *cobra.Command {
	var (
		rounds int
		length int
	)

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Measure hash throughput on full batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if length < 0 || length > md5block.MaxMsgSize {
				return errors.Errorf("length must be within 0..%d", md5block.MaxMsgSize)
			}
			return runBenchmark(rounds, length)
		},
	}
	cmd.Flags().IntVarP(&rounds, "rounds", "r", 10, "Number of batches to run")
	cmd.Flags().IntVarP(&length, "length", "l", 8, "Candidate length in bytes")
	return cmd
}

func runBenchmark(rounds, length int) error {
	c, err := cracker.Open(deviceOptions())
	if err != nil {
		return errors.Wrap(err, "initialize device")
	}
	defer c.Close()

	fmt.Printf("Device: %s\n", c.DeviceInfo())
	fmt.Printf("Benchmarking %d batches of %d candidates (%d bytes, %d block(s) each)...\n",
		rounds, cracker.BatchSize, length, md5block.BlockCount(length))

	candidates := make([]string, cracker.BatchSize)
	for i := range candidates {
		candidates[i] = benchCandidate(i, length)
	}
	var target md5block.Digest

	timed := c.SupportsTiming()
	var gpuTime time.Duration
	start := time.Now()
	for i := 0; i < rounds; i++ {
		t, err := c.ProcessBatchWithTiming(candidates, target)
		if err != nil {
			return err
		}
		if t.Timed {
			gpuTime += t.GPUTime
		} else {
			timed = false
		}
	}
	elapsed := time.Since(start)

	hashes := float64(rounds * cracker.BatchSize)
	fmt.Printf("Wall time:  %s (%.0f hashes/second)\n", elapsed, hashes/elapsed.Seconds())
	if timed && gpuTime > 0 {
		fmt.Printf("Device time: %s (%.0f hashes/second)\n", gpuTime, hashes/gpuTime.Seconds())
	} else {
		fmt.Println("Device time: not supported by this backend")
	}

	// Pipelined run over the same volume.
	wordlist := make([]string, 0, rounds*cracker.BatchSize)
	for i := 0; i < rounds; i++ {
		wordlist = append(wordlist, candidates...)
	}
	ctx, cancel := signalContext()
	defer cancel()
	res, err := c.Crack(ctx, target, wordlist)
	if err != nil {
		return err
	}
	fmt.Printf("Pipelined:  %s (%.0f hashes/second)\n", res.Duration, float64(res.Attempts)/res.Duration.Seconds())
	return nil
}

// benchCandidate returns the last length digits of i, zero padded.
func benchCandidate(i, length int) string {
	s := fmt.Sprintf("%0*d", length, i)
	return s[len(s)-length:]
}
