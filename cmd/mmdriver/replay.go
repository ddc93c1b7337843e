package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/mmalloc/internal/trace"
	"github.com/vkngwrapper/mmalloc/malloc"
	"github.com/vkngwrapper/mmalloc/memutils/arena"
	"golang.org/x/exp/slog"
)

var (
	replayDir       string
	replayValidate  bool
	replayChunkSize int
	replayMaxHeap   int
	replayStrategy  string
	replayMapped    bool
)

func init() {
	cmd := newReplayCmd()
	cmd.Flags().StringVar(&replayDir, "dir", "", "Directory to read *.rep traces from when none are named")
	cmd.Flags().BoolVar(&replayValidate, "validate", false, "Check allocator consistency after every op")
	cmd.Flags().IntVar(&replayChunkSize, "chunk-size", 0, "Minimum arena growth in bytes")
	cmd.Flags().IntVar(&replayMaxHeap, "max-heap", 0, "Largest arena in bytes")
	cmd.Flags().StringVar(&replayStrategy, "strategy", "", "Fit strategy: first-fit, best-fit or lowest-offset")
	cmd.Flags().BoolVar(&replayMapped, "mmap", false, "Back the arena with an mmap reservation instead of a Go slice")
	rootCmd.AddCommand(cmd)
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [trace...]",
		Short: "Replay trace files and report utilization",
		Long: `The replay command runs each trace against a fresh arena, failing on the
first region that is misaligned, out of bounds, overlapping or corrupted.

Example:
  mmdriver replay traces/amptjp-bal.rep
  mmdriver replay --dir traces --strategy best-fit --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}

			applyReplayFlags(cmd, &cfg)
			return runReplay(cmd.OutOrStdout(), newLogger(), cfg, args)
		},
	}
	return cmd
}

func applyReplayFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.TraceDir = replayDir
	}
	if flags.Changed("validate") {
		cfg.Validate = replayValidate
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = replayChunkSize
	}
	if flags.Changed("max-heap") {
		cfg.MaxHeap = replayMaxHeap
	}
	if flags.Changed("strategy") {
		cfg.Strategy = replayStrategy
	}
	if flags.Changed("mmap") {
		cfg.Mapped = replayMapped
	}
}

func tracePaths(cfg Config, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	paths, err := filepath.Glob(filepath.Join(cfg.TraceDir, "*.rep"))
	if err != nil {
		return nil, errors.Wrapf(err, "listing traces in %s", cfg.TraceDir)
	}

	if len(paths) == 0 {
		return nil, errors.Newf("no traces named and no *.rep files found in %s", cfg.TraceDir)
	}

	sort.Strings(paths)
	return paths, nil
}

type resettableProvider interface {
	arena.Provider
	Reset()
}

func newProvider(cfg Config) (resettableProvider, func(), error) {
	if cfg.Mapped {
		mapped, err := arena.NewMapped(cfg.MaxHeap)
		if err != nil {
			return nil, nil, err
		}
		return mapped, func() { _ = mapped.Close() }, nil
	}

	return arena.NewHeap(cfg.MaxHeap), func() {}, nil
}

func runReplay(out io.Writer, logger *slog.Logger, cfg Config, args []string) error {
	strategy, err := parseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}

	paths, err := tracePaths(cfg, args)
	if err != nil {
		return err
	}

	provider, release, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer release()

	results := make([]trace.Result, 0, len(paths))
	for _, path := range paths {
		parsed, err := trace.Load(path)
		if err != nil {
			return err
		}

		// Each trace starts from an empty arena in the same reservation
		provider.Reset()

		allocator, err := malloc.New(logger, malloc.CreateOptions{
			Provider:  provider,
			ChunkSize: cfg.ChunkSize,
			Strategy:  strategy,
		})
		if err != nil {
			return errors.Wrapf(err, "%s", parsed.Name)
		}

		replayer := trace.NewReplayer(allocator)
		replayer.ValidateEachOp = cfg.Validate

		result, err := replayer.Replay(parsed)
		if err != nil {
			return err
		}

		logger.Debug("replayed trace", slog.String("name", result.Name), slog.Int("ops", result.Ops), slog.Duration("elapsed", result.Elapsed))
		results = append(results, result)
	}

	if jsonOut {
		return printResultsJSON(out, results)
	}

	printResults(out, results)
	return nil
}

func summarize(results []trace.Result) (utilization float64, ops int, elapsed time.Duration) {
	for _, result := range results {
		utilization += result.Utilization()
		ops += result.Ops
		elapsed += result.Elapsed
	}

	if len(results) > 0 {
		utilization /= float64(len(results))
	}
	return utilization, ops, elapsed
}

func kops(ops int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(ops) / elapsed.Seconds() / 1000
}

func printResults(out io.Writer, results []trace.Result) {
	fmt.Fprintf(out, "%-24s %8s %10s %10s %6s %10s\n", "trace", "ops", "peak", "arena", "util", "Kops")
	for _, result := range results {
		fmt.Fprintf(out, "%-24s %8d %10d %10d %5.1f%% %10.0f\n",
			result.Name, result.Ops, result.PeakPayloadBytes, result.ArenaBytes,
			result.Utilization()*100, kops(result.Ops, result.Elapsed))
	}

	utilization, ops, elapsed := summarize(results)
	fmt.Fprintf(out, "%-24s %8d %10s %10s %5.1f%% %10.0f\n", "total", ops, "", "", utilization*100, kops(ops, elapsed))
}

func printResultsJSON(out io.Writer, results []trace.Result) error {
	writer := jwriter.NewWriter()
	json := writer.Object()

	traces := json.Name("Traces").Array()
	for _, result := range results {
		obj := traces.Object()
		obj.Name("Name").String(result.Name)
		obj.Name("Ops").Int(result.Ops)
		obj.Name("PeakPayloadBytes").Int(result.PeakPayloadBytes)
		obj.Name("ArenaBytes").Int(result.ArenaBytes)
		obj.Name("Utilization").Float64(result.Utilization())
		obj.Name("ElapsedNanoseconds").Int(int(result.Elapsed.Nanoseconds()))
		obj.End()
	}
	traces.End()

	utilization, ops, elapsed := summarize(results)
	json.Name("Utilization").Float64(utilization)
	json.Name("Ops").Int(ops)
	json.Name("Kops").Float64(kops(ops, elapsed))
	json.End()

	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "writing results")
	}

	_, err := out.Write(append(writer.Bytes(), '\n'))
	return err
}

