package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lth/md5crack/internal/attacks"
	"github.com/lth/md5crack/internal/config"
	"github.com/lth/md5crack/internal/cracker"
	"github.com/lth/md5crack/internal/gpu"
	"github.com/lth/md5crack/internal/md5block"
)

var (
	version = "1.0.0"

	configPath string
	cfg        *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "md5crack [flags] <md5 digest>",
		Short: "GPU MD5 cracker - recover a password from its MD5 digest",
		Long: `md5crack v` + version + `
Brute-forces a single MD5 digest against a wordlist or a generated keyspace.
Hashing runs on an OpenCL GPU when built with -tags opencl, otherwise on the
host CPU with the same kernel.`,
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: setup,
		RunE:              runCrack,
		SilenceUsage:      true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (yaml, json or toml)")
	pf.String("log-level", "info", "Log level: debug, info, warning, error")
	pf.String("backend", gpu.BackendAuto, "Compute backend: auto, opencl, host")
	pf.Int("device", 0, "OpenCL GPU index")
	pf.IntP("workers", "t", 0, "Host backend worker goroutines (0 = all CPUs)")

	f := rootCmd.Flags()
	f.StringP("wordlist", "w", "", "Wordlist file for dictionary attack")
	f.Bool("stream", false, "Stream the wordlist instead of loading it into memory")
	f.StringP("mode", "a", "wordlist", "Attack mode: wordlist, incremental, random")
	f.StringP("charset", "c", "alnum", "Character set: lower, upper, digits, alpha, alnum, all, or custom string")
	f.IntP("min", "m", 1, "Minimum password length for brute-force")
	f.IntP("max", "M", 8, "Maximum password length for brute-force")
	f.Int64("seed", 0, "Random mode seed (0 = time based)")
	f.Bool("progress", true, "Show a progress bar")

	rootCmd.AddCommand(newInfoCmd(), newBenchmarkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logrus.SetLevel(cfg.Level())
	logrus.SetOutput(os.Stderr)
	return nil
}

func deviceOptions() gpu.Options {
	return gpu.Options{
		Backend:     cfg.Backend,
		DeviceIndex: cfg.DeviceIndex,
		Workers:     cfg.Workers,
		Logger:      logrus.StandardLogger(),
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted - stopping...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func runCrack(cmd *cobra.Command, args []string) error {
	target, err := md5block.ParseDigest(args[0])
	if err != nil {
		return err
	}
	attack := cfg.Attack

	fmt.Printf("md5crack v%s\n", version)
	fmt.Println("================================")

	c, err := cracker.Open(deviceOptions())
	if err != nil {
		return errors.Wrap(err, "initialize device")
	}
	defer c.Close()

	fmt.Printf("Device: %s\n", c.DeviceInfo())
	fmt.Printf("Target: %s\n", target)

	ctx, cancel := signalContext()
	defer cancel()

	var (
		result cracker.Result
		total  int64 = -1
	)

	switch attack.Mode {
	case "wordlist":
		if attack.Wordlist == "" {
			return errors.New("wordlist required for wordlist mode (-w)")
		}
		fmt.Printf("Mode: Wordlist attack (%s)\n", attack.Wordlist)

		if attack.Stream {
			passwords, err := attacks.WordlistGenerator(ctx, attack.Wordlist, logrus.StandardLogger())
			if err != nil {
				return err
			}
			watchProgress(c, total)
			result, err = c.CrackWithWordlist(ctx, target, passwords)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			break
		}

		words, err := attacks.LoadWordlist(attack.Wordlist, logrus.StandardLogger())
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d passwords\n", len(words))
		total = int64(len(words))
		watchProgress(c, total)
		result, err = c.Crack(ctx, target, words)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

	case "incremental":
		ic := attacks.IncrementalConfig{
			Charset:   attacks.ResolveCharset(attack.Charset),
			MinLength: attack.MinLength,
			MaxLength: attack.MaxLength,
		}
		estimate := attacks.EstimateCombinations(ic)
		fmt.Println("Mode: Incremental brute-force")
		fmt.Printf("Charset: %d characters, Length: %d-%d\n", len(ic.Charset), attack.MinLength, attack.MaxLength)
		fmt.Printf("Estimated combinations: %d\n", estimate)

		if estimate <= uint64(1<<62) {
			total = int64(estimate)
		}
		watchProgress(c, total)
		result, err = c.CrackWithGenerator(ctx, target, func(ctx context.Context) <-chan string {
			return attacks.IncrementalGenerator(ctx, ic)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

	case "random":
		rc := attacks.RandomConfig{
			Charset:   attacks.ResolveCharset(attack.Charset),
			MinLength: attack.MinLength,
			MaxLength: attack.MaxLength,
			Seed:      attack.Seed,
		}
		fmt.Println("Mode: Random attack")
		fmt.Printf("Charset: %d characters, Length: %d-%d\n", len(rc.Charset), attack.MinLength, attack.MaxLength)

		watchProgress(c, total)
		result, err = c.CrackWithGenerator(ctx, target, func(ctx context.Context) <-chan string {
			return attacks.RandomGenerator(ctx, rc)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	fmt.Println()
	fmt.Println()

	if result.Found {
		fmt.Println("================================")
		fmt.Printf("PASSWORD FOUND: %s\n", result.Password)
		fmt.Println("================================")
		fmt.Printf("md5(%s) = %s\n", result.Password, target)
	} else {
		fmt.Println("Password not found.")
	}
	fmt.Printf("Time: %s\n", formatDuration(result.Duration))
	fmt.Printf("Attempts: %d\n", result.Attempts)
	if result.Duration > 0 {
		fmt.Printf("Rate: %.0f passwords/second\n", float64(result.Attempts)/result.Duration.Seconds())
	}
	return nil
}

// watchProgress drives a progress bar from the cracker's per-batch
// callback. total of -1 renders a spinner.
func watchProgress(c *cracker.Cracker, total int64) {
	if !cfg.Progress {
		return
	}

	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("cracking"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("hash"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	c.SetProgressCallback(func(p cracker.Progress) {
		_ = bar.Set64(int64(p.Attempts))
		bar.Describe(fmt.Sprintf("cracking [%s]", truncate(p.Current, 20)))
	})
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
