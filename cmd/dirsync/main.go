package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/dirsync/internal/config"
	"github.com/bamsammich/dirsync/internal/engine"
	"github.com/bamsammich/dirsync/internal/event"
	"github.com/bamsammich/dirsync/internal/filter"
	"github.com/bamsammich/dirsync/internal/mq"
	"github.com/bamsammich/dirsync/internal/props"
	"github.com/bamsammich/dirsync/internal/stats"
	"github.com/bamsammich/dirsync/internal/ui"
)

var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitPartial = 1 // some entries could not be listed, copied or verified
	exitFatal   = 2 // configuration or fatal error
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds the root command's flag values.
type options struct {
	workers          int
	dateSizeOnly     bool
	noParallel       bool
	verbose          bool
	quiet            bool
	dryRun           bool
	digest           string
	verify           bool
	excludes         []string
	includes         []string
	filterFile       string
	minSize          string
	maxSize          string
	bwLimit          string
	logFile          string
	traceFile        string
	terminateTimeout time.Duration
	showVersion      bool
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFatal
	}
	return exitOK
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "dirsync [flags] <source_dir> <destination_dir>",
		Short: "Make a destination directory tree match a source tree",
		Long: `dirsync lists both trees, compares every entry by kind, size, mode,
modification time and (unless --date-size-only) content digest, and copies
the source entries that are new or changed. Destination-only entries are
left in place.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(stdout, "dirsync %s\n", version)
				return nil
			}
			return runSync(cmd, &opts, args[0], args[1], stdout, stderr)
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.IntVarP(&opts.workers, "workers", "n", 0, "analyzers per tree (default: min(NumCPU, 16))")
	f.BoolVar(&opts.dateSizeOnly, "date-size-only", false, "compare by size, mode and mtime only; skip content digests")
	f.BoolVar(&opts.noParallel, "no-parallel", false, "list both trees sequentially (overrides -n)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "narrate each stage and print every copied entry")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the differences without writing")
	f.StringVar(&opts.digest, "digest", string(props.BLAKE3), "content digest algorithm (blake3 or md5)")
	f.BoolVar(&opts.verify, "verify", false, "re-hash copied files and compare with the source")
	f.StringArrayVar(&opts.excludes, "exclude", nil, "exclude entries matching PATTERN (repeatable)")
	f.StringArrayVar(&opts.includes, "include", nil, "include entries matching PATTERN even if excluded later (repeatable)")
	f.StringVar(&opts.filterFile, "filter", "", "read filter rules from FILE")
	f.StringVar(&opts.minSize, "min-size", "", "skip files smaller than SIZE (e.g. 1M, 100K)")
	f.StringVar(&opts.maxSize, "max-size", "", "skip files larger than SIZE (e.g. 1G, 500M)")
	f.StringVar(&opts.bwLimit, "bwlimit", "", "copy bandwidth limit per second (e.g. 100M)")
	f.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
	f.StringVar(&opts.traceFile, "trace", "", "record every worker message to FILE (zstd)")
	f.DurationVar(&opts.terminateTimeout, "terminate-timeout", engine.DefaultTerminateTimeout,
		"how long to wait for workers to acknowledge shutdown")
	f.SortFlags = false

	rootCmd.AddCommand(newTraceCmd(stdout))
	rootCmd.AddCommand(newDocsCmd())

	return rootCmd
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: CLI entry point wires every subsystem
func runSync(cmd *cobra.Command, opts *options, src, dst string, stdout, stderr io.Writer) error {
	// Load optional config file.
	cfg, cfgErr := config.Load()

	// Apply config defaults for flags not explicitly set on CLI.
	applyConfigDefaults(cmd.Flags(), cfg.Defaults, opts)
	ui.ApplyTheme(cfg.Theme)

	// Configure logging.
	logLevel := slog.LevelWarn
	if opts.verbose {
		logLevel = slog.LevelDebug
	} else if !opts.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel})
	var logHandler slog.Handler = textHandler
	var eventLog *slog.Logger
	if opts.logFile != "" {
		lf, err := os.Create(opts.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
		eventLog = slog.New(jsonHandler)
	}
	prevLogger := slog.Default()
	slog.SetDefault(slog.New(logHandler))
	defer slog.SetDefault(prevLogger)

	if cfgErr != nil {
		slog.Warn("failed to load config", "error", cfgErr)
	}

	engineCfg, closeTrace, err := buildEngineConfig(opts, src, dst)
	if err != nil {
		return err
	}
	defer closeTrace()

	// Set up context with signal handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	engineCfg.Stats = collector
	engineCfg.Events = events

	// When --log is set, tee events through a logging goroutine
	// that writes structured records to the log file before forwarding
	// to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if eventLog != nil {
		presenterEvents = teeEvents(events, eventLog)
	}

	isTTY := false
	if f, ok := stderr.(*os.File); ok {
		isTTY = ui.IsTTY(f.Fd())
	}
	presenter := ui.NewPresenter(ui.Config{
		Writer:    stdout,
		ErrWriter: stderr,
		Stats:     collector,
		IsTTY:     isTTY,
		Quiet:     opts.quiet,
		Verbose:   opts.verbose,
		DryRun:    opts.dryRun,
	})

	if opts.dryRun {
		slog.Info("dry run mode")
	}
	slog.Debug("starting sync",
		"source", engineCfg.SourceRoot,
		"destination", engineCfg.DestRoot,
		"parallel", engineCfg.Parallel,
		"workers", engineCfg.Workers,
		"digest", engineCfg.UseDigest,
		"algorithm", engineCfg.Algorithm,
		"filter", engineCfg.Filter.String(),
	)

	// Inline mode: run presenter in background, engine in foreground.
	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Go(func() {
		presenterErr = presenter.Run(presenterEvents)
	})

	result := engine.Run(ctx, engineCfg)
	stop()
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(stderr, "presenter: %v\n", presenterErr)
	}

	if !opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(stderr, summary)
		}
	}

	if result.Err != nil {
		if result.Fatal {
			slog.Error("sync failed", "error", result.Err)
			return &exitError{code: exitFatal}
		}
		slog.Warn("sync incomplete", "failures", result.Stats.Failures(), "error", result.Err)
		return &exitError{code: exitPartial}
	}
	return nil
}

// buildEngineConfig turns flag values into an engine configuration. The
// returned func closes the trace log, if any.
func buildEngineConfig(opts *options, src, dst string) (engine.Config, func(), error) {
	noop := func() {}

	alg, err := props.ParseAlgorithm(opts.digest)
	if err != nil {
		return engine.Config{}, noop, fmt.Errorf("invalid --digest: %w", err)
	}

	var bwLimit int64
	if opts.bwLimit != "" {
		bwLimit, err = filter.ParseSize(opts.bwLimit)
		if err != nil {
			return engine.Config{}, noop, fmt.Errorf("invalid --bwlimit: %w", err)
		}
	}

	chain, err := filter.New(filter.Options{
		File:     opts.filterFile,
		MinSize:  opts.minSize,
		MaxSize:  opts.maxSize,
		Excludes: opts.excludes,
		Includes: opts.includes,
	})
	if err != nil {
		return engine.Config{}, noop, fmt.Errorf("filter: %w", err)
	}

	workers := opts.workers
	if workers < 0 {
		return engine.Config{}, noop, fmt.Errorf("invalid --workers %d", workers)
	}
	if workers == 0 {
		workers = min(runtime.NumCPU(), 16)
	}

	cfg := engine.Config{
		SourceRoot:       src,
		DestRoot:         dst,
		Parallel:         !opts.noParallel,
		Workers:          workers,
		UseDigest:        !opts.dateSizeOnly,
		Algorithm:        alg,
		DryRun:           opts.dryRun,
		Verbose:          opts.verbose,
		Verify:           opts.verify,
		Filter:           chain,
		BWLimit:          bwLimit,
		TerminateTimeout: opts.terminateTimeout,
	}

	if opts.traceFile == "" {
		return cfg, noop, nil
	}
	tf, err := os.Create(opts.traceFile)
	if err != nil {
		return engine.Config{}, noop, fmt.Errorf("open trace file: %w", err)
	}
	tw, err := mq.NewTraceWriter(tf)
	if err != nil {
		tf.Close()
		return engine.Config{}, noop, err
	}
	cfg.Trace = tw
	return cfg, func() {
		if err := tw.Close(); err != nil {
			slog.Warn("trace incomplete", "error", err)
		}
		tf.Close()
		slog.Debug("trace written", "path", opts.traceFile, "frames", tw.Frames())
	}, nil
}

// teeEvents logs every event at info level to log before forwarding it.
func teeEvents(events <-chan event.Event, log *slog.Logger) <-chan event.Event {
	teed := make(chan event.Event, 256)
	go func() {
		for ev := range events {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("path", ev.Path),
				slog.Int64("size", ev.Size),
			}
			if ev.Reason != "" {
				attrs = append(attrs, slog.String("reason", ev.Reason))
			}
			if ev.Total != 0 {
				attrs = append(attrs, slog.Int64("total", ev.Total))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			log.LogAttrs(context.Background(), slog.LevelInfo, "dirsync.event", attrs...)
			teed <- ev
		}
		close(teed)
	}()
	return teed
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(flags *pflag.FlagSet, defaults config.DefaultsConfig, opts *options) {
	if !flags.Changed("workers") && defaults.Workers != nil {
		opts.workers = *defaults.Workers
	}
	if !flags.Changed("date-size-only") && defaults.DateSizeOnly != nil {
		opts.dateSizeOnly = *defaults.DateSizeOnly
	}
	if !flags.Changed("no-parallel") && defaults.NoParallel != nil {
		opts.noParallel = *defaults.NoParallel
	}
	if !flags.Changed("digest") && defaults.Digest != nil {
		opts.digest = *defaults.Digest
	}
	if !flags.Changed("verify") && defaults.Verify != nil {
		opts.verify = *defaults.Verify
	}
	if !flags.Changed("bwlimit") && defaults.BWLimit != nil {
		opts.bwLimit = *defaults.BWLimit
	}
	if !flags.Changed("terminate-timeout") && defaults.TerminateTimeout != nil {
		opts.terminateTimeout = defaults.TerminateTimeout.Duration
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
