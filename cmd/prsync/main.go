package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/prsync/prsync/internal/config"
	"github.com/prsync/prsync/internal/engine"
	"github.com/prsync/prsync/internal/preflight"
	"github.com/prsync/prsync/internal/size"
	"github.com/prsync/prsync/internal/stats"
	"github.com/prsync/prsync/internal/transfer"
	"github.com/prsync/prsync/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds every root command flag.
type options struct {
	processes   int
	files       int
	size        string
	buckets     string
	rsync       string
	rsyncExe    string
	logFile     string
	timeout     time.Duration
	keep        bool
	show        bool
	progress    bool
	stats       bool
	dryRun      bool
	verbose     bool
	showVersion bool
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(stdout, stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", exitErr.err)
			}
			return exitErr.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitOptions
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "prsync [flags] SRC [SRC...] DEST",
		Short: "Run rsync in parallel over buckets of files",
		Long: `prsync crawls each source directory, groups its entries into buckets bounded
by a file count and a total size, and runs one rsync per bucket with a fixed
number of rsync processes in parallel.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(stdout, "prsync %s\n", version)
				return nil
			}

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd.Flags(), cfg.Defaults, &opts)

			fileLogger, closeLog, err := setupLogging(stderr, opts.verbose, opts.logFile)
			if err != nil {
				return err
			}
			defer closeLog()

			return runSync(cmd.Context(), opts, args[:len(args)-1], args[len(args)-1], ioConfig{
				stdout:     stdout,
				stderr:     stderr,
				fileLogger: fileLogger,
			})
		},
	}

	f := rootCmd.Flags()
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.IntVarP(&opts.processes, "processes", "p", 1, "number of rsync processes to run in parallel")
	f.IntVarP(&opts.files, "files", "f", 1000, "maximum number of entries per bucket")
	f.StringVarP(&opts.size, "size", "s", "1G", "maximum total size per bucket (e.g. 100M, 1G)")
	f.StringVarP(&opts.buckets, "buckets", "b", "", "parent directory for bucket files (default: system temp dir)")
	f.BoolVarP(&opts.keep, "keep", "k", false, "keep the bucket directory after the run")
	f.BoolVarP(&opts.show, "show", "j", false, "print the bucket directory")
	f.BoolVarP(&opts.progress, "progress", "P", false, "show progress")
	f.BoolVar(&opts.stats, "stats", false, "show statistics at the end of the run")
	f.BoolVarP(&opts.dryRun, "dry-run", "d", false, "crawl and build buckets without running rsync")
	f.StringVarP(&opts.rsync, "rsync", "r", transfer.DefaultOptions, "rsync options (--delete is not allowed)")
	f.StringVar(&opts.rsyncExe, "rsync-path", "rsync", "rsync executable")
	f.DurationVar(&opts.timeout, "timeout", transfer.DefaultTimeout, "kill an rsync that runs longer than this")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	f.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")

	rootCmd.AddCommand(newDocsCmd())
	return rootCmd
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(flags *pflag.FlagSet, defaults config.DefaultsConfig, opts *options) {
	if !flags.Changed("processes") && defaults.Processes != nil {
		opts.processes = *defaults.Processes
	}
	if !flags.Changed("files") && defaults.Files != nil {
		opts.files = *defaults.Files
	}
	if !flags.Changed("size") && defaults.Size != nil {
		opts.size = *defaults.Size
	}
	if !flags.Changed("rsync") && defaults.Rsync != nil {
		opts.rsync = *defaults.Rsync
	}
	if !flags.Changed("timeout") && defaults.Timeout != nil {
		opts.timeout = *defaults.Timeout
	}
	if !flags.Changed("progress") && defaults.Progress != nil {
		opts.progress = *defaults.Progress
	}
	if !flags.Changed("stats") && defaults.Stats != nil {
		opts.stats = *defaults.Stats
	}
	if !flags.Changed("keep") && defaults.Keep != nil {
		opts.keep = *defaults.Keep
	}
}

// setupLogging installs the default logger. When logFile is set it also
// returns a logger writing only to that file, which the message sink uses so
// operator messages are not printed twice.
func setupLogging(stderr io.Writer, verbose bool, logFile string) (*slog.Logger, func(), error) {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	textHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	var fileLogger *slog.Logger
	closeLog := func() {}
	if logFile != "" {
		lf, err := os.Create(logFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeLog = func() { lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
		fileLogger = slog.New(jsonHandler)
	}
	slog.SetDefault(slog.New(logHandler))
	return fileLogger, closeLog, nil
}

type ioConfig struct {
	stdout     io.Writer
	stderr     io.Writer
	fileLogger *slog.Logger
}

// limits validates the bucket bounds.
func limits(opts options) (engine.Limits, error) {
	if opts.processes < 1 {
		return engine.Limits{}, fmt.Errorf("--processes must be at least 1, got %d", opts.processes)
	}
	if opts.files < 1 || uint64(opts.files) > uint64(^uint32(0)) {
		return engine.Limits{}, fmt.Errorf("--files must be between 1 and %d, got %d", ^uint32(0), opts.files)
	}
	sz, err := size.Parse(opts.size)
	if err != nil {
		return engine.Limits{}, fmt.Errorf("--size: %w", err)
	}
	if sz == 0 {
		return engine.Limits{}, errors.New("--size must be greater than 0")
	}
	return engine.Limits{Size: sz, Files: uint32(opts.files)}, nil
}

//nolint:gocyclo,revive // cyclomatic,cognitive-complexity: CLI entry point runs every pre-flight check in order
func runSync(ctx context.Context, opts options, sources []string, dst string, out ioConfig) error {
	lim, err := limits(opts)
	if err != nil {
		return &exitError{err: err, code: exitOptions}
	}
	rsyncOpts, err := transfer.ParseOptions(opts.rsync)
	if err != nil {
		return &exitError{err: fmt.Errorf("--rsync: %w", err), code: exitOptions}
	}
	if err := transfer.ValidateOptions(rsyncOpts); err != nil {
		return &exitError{err: err, code: exitOptions}
	}

	runner, err := transfer.NewRunner(opts.rsyncExe, rsyncOpts, opts.timeout)
	if err != nil {
		return fatal(fmt.Errorf("%w: %w", errNoBinary, err))
	}
	if err := preflight.Sources(sources); err != nil {
		return fatal(err)
	}
	if err := preflight.Destination(dst); err != nil {
		return fatal(err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Check(ctx); err != nil {
		if ctx.Err() != nil {
			return &exitError{code: exitInterrupted}
		}
		return fatal(err)
	}

	if err := preflight.BucketsDir(opts.buckets); err != nil {
		return fatal(err)
	}
	runID := uuid.NewString()
	bucketsDir, err := engine.CreateBucketsDir(opts.buckets, runID[:8])
	if err != nil {
		return fatal(fmt.Errorf("%w: %w", errBucketsCreate, err))
	}
	if opts.show {
		fmt.Fprintln(out.stdout, "buckets dir is", bucketsDir)
	}

	isTTY, width := ui.Terminal(os.Stdout)
	sink := ui.NewSink(ui.SinkConfig{
		Out:    out.stdout,
		Err:    out.stderr,
		Logger: out.fileLogger,
		Width:  width,
		Inline: isTTY && out.stdout == io.Writer(os.Stdout),
	})

	slog.Debug("starting run",
		"run", runID,
		"sources", sources,
		"dst", dst,
		"processes", opts.processes,
		"files", lim.Files,
		"size", lim.Size,
		"rsync", runner.Exe,
		"options", rsyncOpts,
		"buckets", bucketsDir,
	)
	if opts.dryRun {
		slog.Info("dry run mode")
	}

	result := engine.Run(ctx, engine.Config{
		Transfer:   runner,
		Sink:       sink,
		Dst:        dst,
		BucketsDir: bucketsDir,
		RunID:      runID,
		Sources:    sources,
		Limits:     lim,
		Workers:    opts.processes,
		Keep:       opts.keep,
		Progress:   opts.progress,
		DryRun:     opts.dryRun,
	})
	stop()

	if result.Err != nil {
		return fatal(fmt.Errorf("%w: %w", errBucketsCreate, result.Err))
	}
	if result.Interrupted {
		slog.Warn("interrupted", "buckets", result.Buckets, "transferred", result.Stats.Buckets)
		return &exitError{code: exitInterrupted}
	}

	if opts.stats {
		wd, _ := os.Getwd()
		stats.WriteReport(out.stdout, result.Stats, stats.ReportInfo{
			WorkDir: wd,
			Cmdline: shellquote.Join(append([]string{"prsync"}, os.Args[1:]...)...),
		})
	}

	if code := failureExit(result.Stats.Errors); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
