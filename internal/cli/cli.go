// ============================================================================
// seedrecover CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra-based command line surface for the recovery engine.
//
// Command Structure:
//   seedrecover                    # Root command
//   ├── run                        # Start a search
//   │   ├── --address / --address-file / --address-db-file (exactly one)
//   │   ├── --total-words, --fixed-words
//   │   ├── --known-words / --seed-words-file
//   │   ├── --path, --network, --address-type
//   │   ├── --batch-size, --workers, --gpu, --debug
//   │   └── --wordlist, --checkpoint-file, --log-file
//   ├── status                     # Show checkpoint and config state
//   ├── --config, -c               # Operational config (YAML)
//   └── --version / --help
//
// Exit Codes:
//   0   match found, or search space exhausted without a match
//   1   configuration or fatal error, reported before any search work
//   130 cancelled by signal; checkpoint persisted, resume hint printed
//
// All search parameters are validated here, before the scheduler receives a
// search space; the core never sees a malformed configuration.
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/seed-recovery/internal/checkpoint"
	"github.com/ChuLiYu/seed-recovery/internal/evaluator"
	"github.com/ChuLiYu/seed-recovery/internal/metrics"
	"github.com/ChuLiYu/seed-recovery/internal/progress"
	"github.com/ChuLiYu/seed-recovery/internal/scheduler"
	"github.com/ChuLiYu/seed-recovery/internal/wordlist"
	"github.com/ChuLiYu/seed-recovery/pkg/types"
)

const defaultConfigPath = "configs/default.yaml"

// exitCancelled distinguishes an interrupted run from a fatal error; the
// checkpoint is already persisted when this code is used.
const exitCancelled = 130

// Config is the operational configuration, loaded from YAML. Search
// parameters live on the command line; this file carries policy only.
type Config struct {
	Worker struct {
		WorkerCount       int   `yaml:"worker_count"`
		ParallelThreshold int64 `yaml:"parallel_threshold"`
	} `yaml:"worker"`

	Search struct {
		BatchSize int `yaml:"batch_size"`
	} `yaml:"search"`

	Checkpoint struct {
		File string `yaml:"file"`
	} `yaml:"checkpoint"`

	Progress struct {
		SampleIntervalMs int `yaml:"sample_interval_ms"`
	} `yaml:"progress"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

// BuildCLI assembles the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "seedrecover",
		Short: "seedrecover: a BIP-39 mnemonic permutation recovery engine",
		Long: `seedrecover brute-forces a BIP-39 mnemonic when some words are known
and the order of the rest is not, with:
- rank-based permutation enumeration (no materialized search space)
- parallel partitioned search with first-match-wins termination
- atomic checkpoint/resume
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

type runOptions struct {
	address       string
	addressFile   string
	addressDBFile string

	totalWords    int
	fixedWords    int
	knownWords    []string
	seedWordsFile string

	path        string
	network     string
	addressType string

	batchSize int
	workers   int
	gpu       bool
	debug     bool

	wordlistFile   string
	checkpointFile string
	logFile        string
}

func buildRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a recovery search",
		Long:  "Search the permutations of the unknown words for a mnemonic deriving one of the target addresses.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts)
		},
	}

	cmd.Flags().StringVar(&opts.address, "address", "", "single target address")
	cmd.Flags().StringVar(&opts.addressFile, "address-file", "", "file containing one target address")
	cmd.Flags().StringVar(&opts.addressDBFile, "address-db-file", "", "file containing one target address per line")
	cmd.Flags().IntVar(&opts.totalWords, "total-words", 0, "total number of mnemonic words")
	cmd.Flags().IntVar(&opts.fixedWords, "fixed-words", 0, "number of leading words with known position")
	cmd.Flags().StringSliceVar(&opts.knownWords, "known-words", nil, "comma-separated known words, fixed prefix first")
	cmd.Flags().StringVar(&opts.seedWordsFile, "seed-words-file", "", "file with one known word per line")
	cmd.Flags().StringVar(&opts.path, "path", "m/44'/0'/0'/0/0", "derivation path")
	cmd.Flags().StringVar(&opts.network, "network", "mainnet", "network: mainnet or testnet")
	cmd.Flags().StringVar(&opts.addressType, "address-type", "p2wpkh", "address type: p2pkh, p2wpkh or p2sh-p2wpkh")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "candidates per batch (0 = config value)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "worker count (0 = config value)")
	cmd.Flags().BoolVar(&opts.gpu, "gpu", false, "use the accelerator backend (stub in this build)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "log every derived address (slow)")
	cmd.Flags().StringVar(&opts.wordlistFile, "wordlist", "", "alternate wordlist file (default: bundled English)")
	cmd.Flags().StringVar(&opts.checkpointFile, "checkpoint-file", "", "checkpoint file path (overrides config)")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")
	cmd.MarkFlagRequired("total-words")

	return cmd
}

func runSearch(opts *runOptions) error {
	cfg, err := loadConfigOrDefault(configFile)
	if err != nil {
		return err
	}
	if err := setupLogging(opts.debug, opts.logFile); err != nil {
		return err
	}

	words, err := resolveKnownWords(opts)
	if err != nil {
		return err
	}
	if err := validateRunOptions(opts, words); err != nil {
		return err
	}

	set, err := types.NewWordSet(words, opts.fixedWords)
	if err != nil {
		return err
	}

	wl, err := resolveWordlist(opts.wordlistFile)
	if err != nil {
		return err
	}
	for _, word := range words {
		if !wl.Contains(word) {
			return fmt.Errorf("known word %q is not in the wordlist", word)
		}
	}

	targets, err := evaluator.LoadTargets(opts.address, opts.addressFile, opts.addressDBFile)
	if err != nil {
		return err
	}
	deriver, err := evaluator.NewHDDeriver(opts.path, opts.network, opts.addressType)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(prometheus.DefaultRegisterer)
		go func() {
			slog.Info("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				slog.Error("Metrics server error", "error", err)
			}
		}()
	}

	if opts.gpu {
		slog.Warn("Accelerator backend is a stub in this build, falling back to CPU")
	}
	backend := evaluator.NewCPUBackend(wl, deriver, targets, collector, opts.debug)
	eval := evaluator.New(set, backend)

	checkpointPath := opts.checkpointFile
	if checkpointPath == "" {
		checkpointPath = cfg.Checkpoint.File
	}
	if checkpointPath == "" {
		checkpointPath = "checkpoint.json"
	}
	store := checkpoint.NewStore(checkpointPath)

	workers := opts.workers
	if workers == 0 {
		workers = cfg.Worker.WorkerCount
	}
	batchSize := opts.batchSize
	if batchSize == 0 {
		batchSize = cfg.Search.BatchSize
	}

	reporter := progress.NewReporter(os.Stderr)
	sched := scheduler.New(set, eval, store, collector, reporter, scheduler.Config{
		Workers:           workers,
		BatchSize:         batchSize,
		ParallelThreshold: cfg.Worker.ParallelThreshold,
		SampleInterval:    time.Duration(cfg.Progress.SampleIntervalMs) * time.Millisecond,
	})

	printBanner(opts, set, targets, sched)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := sched.Run(ctx)
	if err != nil {
		return fmt.Errorf("search aborted: %w", err)
	}

	switch result.Outcome {
	case types.OutcomeFound:
		color.New(color.FgGreen, color.Bold).Fprintln(os.Stdout, "\nMatch found!")
		fmt.Printf("  Mnemonic: %s\n", result.Mnemonic)
		fmt.Printf("  Address:  %s\n", result.Address)
		printSummary(result, reporter)
		return nil

	case types.OutcomeCancelled:
		fmt.Println("\nSearch cancelled.")
		printSummary(result, reporter)
		fmt.Printf("Progress saved to %s; rerun the same command to resume.\n", store.Path())
		os.Exit(exitCancelled)
		return nil

	default:
		fmt.Println("\nNo matching mnemonic found.")
		printSummary(result, reporter)
		return nil
	}
}

func printBanner(opts *runOptions, set *types.WordSet, targets *evaluator.TargetSet, sched *scheduler.Scheduler) {
	fmt.Printf("Words: %d total, %d fixed, %d permutable\n",
		set.TotalWords(), set.FixedWords(), set.PoolSize())
	if set.FixedWords() > 0 {
		fmt.Printf("Fixed prefix: %s\n", strings.Join(set.Fixed(), " "))
	}
	fmt.Printf("Target addresses: %d\n", targets.Size())
	fmt.Printf("Derivation path: %s (%s, %s)\n", opts.path, opts.network, opts.addressType)
	fmt.Printf("Permutations to check: %s\n", sched.TotalCount().String())
}

func printSummary(result *types.MatchResult, reporter *progress.Reporter) {
	fmt.Printf("Tested %d candidates in %.2fs (%.0f candidates/sec)\n",
		result.Tested, reporter.Elapsed().Seconds(), reporter.Speed())
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoint and configuration state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := loadConfigOrDefault(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Config file:        %s\n", configFile)
	fmt.Printf("  Worker count:       %d (0 = logical CPUs)\n", cfg.Worker.WorkerCount)
	fmt.Printf("  Parallel threshold: %d\n", cfg.Worker.ParallelThreshold)
	fmt.Printf("  Batch size:         %d\n", cfg.Search.BatchSize)

	checkpointPath := cfg.Checkpoint.File
	if checkpointPath == "" {
		checkpointPath = "checkpoint.json"
	}
	fmt.Println("Checkpoint:")
	fmt.Printf("  File: %s\n", checkpointPath)
	data, err := os.ReadFile(checkpointPath)
	switch {
	case os.IsNotExist(err):
		fmt.Println("  No checkpoint; next run starts from rank 0")
	case err != nil:
		fmt.Printf("  Unreadable: %v\n", err)
	default:
		var cp types.Checkpoint
		if jsonErr := json.Unmarshal(data, &cp); jsonErr != nil {
			fmt.Printf("  Malformed: %v\n", jsonErr)
		} else {
			fmt.Printf("  Last rank:   %s\n", cp.LastRank)
			fmt.Printf("  Words:       %d total, %d fixed\n", cp.TotalWords, cp.FixedWords)
			fmt.Printf("  Saved at:    %s\n", time.Unix(cp.SavedAt, 0).Format(time.RFC3339))
		}
	}

	fmt.Println("Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Printf("  Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  Disabled")
	}
	return nil
}

// resolveKnownWords reads the word list from the flag or the file; exactly
// as many words as --total-words must be supplied.
func resolveKnownWords(opts *runOptions) ([]string, error) {
	if opts.seedWordsFile != "" && len(opts.knownWords) > 0 {
		return nil, fmt.Errorf("use either --known-words or --seed-words-file, not both")
	}

	var words []string
	if opts.seedWordsFile != "" {
		data, err := os.ReadFile(opts.seedWordsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed words file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			word := strings.TrimSpace(line)
			if word != "" {
				words = append(words, word)
			}
		}
	} else {
		for _, w := range opts.knownWords {
			word := strings.TrimSpace(w)
			if word != "" {
				words = append(words, word)
			}
		}
	}

	if len(words) != opts.totalWords {
		return nil, fmt.Errorf("provided %d known words, expected %d", len(words), opts.totalWords)
	}
	return words, nil
}

func validateRunOptions(opts *runOptions, words []string) error {
	if opts.totalWords <= 0 {
		return fmt.Errorf("total words must be positive, got %d", opts.totalWords)
	}
	if opts.fixedWords < 0 || opts.fixedWords > opts.totalWords {
		return fmt.Errorf("fixed words (%d) must be between 0 and total words (%d)",
			opts.fixedWords, opts.totalWords)
	}
	if opts.batchSize < 0 {
		return fmt.Errorf("batch size must not be negative, got %d", opts.batchSize)
	}
	if opts.workers < 0 {
		return fmt.Errorf("worker count must not be negative, got %d", opts.workers)
	}
	return nil
}

func resolveWordlist(path string) (*wordlist.Wordlist, error) {
	if path == "" {
		return wordlist.English(), nil
	}
	return wordlist.LoadFile(path)
}

func setupLogging(debug bool, logFile string) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		w = f
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfigOrDefault reads the YAML config. A missing file at the default
// path is not an error: built-in defaults apply. An explicitly given path
// must exist.
func loadConfigOrDefault(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == defaultConfigPath {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return cfg, nil
}
