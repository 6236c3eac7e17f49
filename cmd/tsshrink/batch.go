package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/gwlsn/tsshrink/internal/config"
	"github.com/gwlsn/tsshrink/internal/jobs"
	"github.com/gwlsn/tsshrink/internal/lifecycle"
	"github.com/gwlsn/tsshrink/internal/logger"
	"github.com/gwlsn/tsshrink/internal/metrics"
	"github.com/gwlsn/tsshrink/internal/store"
)

// lockPath returns the lock file guarding dir. It lives in the temp
// directory so nothing is left behind in the recordings.
func lockPath(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	return filepath.Join(os.TempDir(), "tsshrink-"+hex.EncodeToString(sum[:8])+".lock"), nil
}

// forceExitAfter bounds how long the batch may take to wind down after
// an interrupt, e.g. while blocked on a deletion prompt.
const forceExitAfter = 10 * time.Second

type batchFlags struct {
	recursive      bool
	dryRun         bool
	yes            bool
	allowVideoOnly bool
	remux          bool
	crf            int
	preset         string
	tolerance      float64
	metricsFile    string
}

func (b *batchFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&b.recursive, "recursive", "r", false, "Process subdirectories")
	f.BoolVar(&b.dryRun, "dry-run", false, "Show what would be converted without doing it")
	f.BoolVarP(&b.yes, "yes", "y", false, "Delete originals after verification without asking")
	f.BoolVar(&b.allowVideoOnly, "allow-video-only", false, "Accept sources without an audio stream")
	f.BoolVar(&b.remux, "remux", false, "Copy streams into MP4 instead of re-encoding")
	f.IntVar(&b.crf, "crf", 28, "HEVC quality, 0-51, lower is better")
	f.StringVar(&b.preset, "preset", "medium", "x265 speed preset")
	f.Float64Var(&b.tolerance, "tolerance", 2.0, "Duration tolerance in seconds for --remux")
	f.StringVar(&b.metricsFile, "metrics-textfile", "", "Write run metrics to this .prom file")
}

// apply copies explicitly set flags over the config file values
func (b *batchFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("crf") {
		cfg.CRF = b.crf
	}
	if f.Changed("preset") {
		cfg.Preset = b.preset
	}
	if f.Changed("tolerance") {
		cfg.ToleranceSeconds = b.tolerance
	}
	if f.Changed("allow-video-only") {
		cfg.AllowVideoOnly = b.allowVideoOnly
	}
	if f.Changed("metrics-textfile") {
		cfg.MetricsTextfile = b.metricsFile
	}
	if b.remux {
		cfg.Mode = config.ModeRemux
	}
	return cfg.Validate()
}

func runBatch(cmd *cobra.Command, cfg *config.Config, b *batchFlags, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := checkTools(ctx, cfg); err != nil {
		return err
	}

	if cfg.LockDirectory && !b.dryRun {
		path, err := lockPath(dir)
		if err != nil {
			return fmt.Errorf("resolve lock path: %w", err)
		}
		lock := flock.New(path)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another tsshrink run is already processing %s", dir)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("Failed to release directory lock", "path", lock.Path(), "error", err)
			}
		}()
	}

	state := lifecycle.NewState(cfg.KillGrace())
	stop := lifecycle.Install(ctx, state, func(code int) {
		cancel()
		time.AfterFunc(forceExitAfter, func() { os.Exit(code) })
	})
	defer stop()

	opts := jobs.Options{
		Recursive: b.recursive,
		DryRun:    b.dryRun,
		Confirm:   selectConfirmer(b.yes, cmd),
	}

	if cfg.HistoryPath != "" {
		history, err := store.NewSQLiteStore(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer history.Close()
		logger.Debug("Recording run history", "path", history.Path())
		opts.Recorder = history
	}

	runner := jobs.NewRunner(cfg, state, opts)

	var runMetrics *metrics.RunMetrics
	if cfg.MetricsTextfile != "" {
		runMetrics = metrics.NewRunMetrics()
		runner.Subscribe(runMetrics.ObserveEvent)
	}

	// Debug output logs every progress tick, which would tear the bar
	if isTerminal(cmd.ErrOrStderr()) && !logger.Enabled(slog.LevelDebug) {
		bars := newProgressRenderer(cmd.ErrOrStderr())
		runner.Subscribe(bars.handle)
	}

	logger.Info("Starting run",
		"directory", dir,
		"mode", cfg.Mode,
		"crf", cfg.CRF,
		"preset", cfg.Preset,
		"dry_run", b.dryRun)

	run, err := runner.Run(ctx, dir)
	if err != nil {
		return err
	}

	if runMetrics != nil {
		runMetrics.ObserveRun(run)
		if err := runMetrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn("Failed to write metrics", "path", cfg.MetricsTextfile, "error", err)
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), renderSummary(run, b.dryRun))

	if run.Stats.Cancelled || state.Interrupted() {
		return &exitError{code: lifecycle.ExitInterrupted}
	}
	if code := run.Stats.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// selectConfirmer prompts only when someone can answer
func selectConfirmer(yes bool, cmd *cobra.Command) jobs.Confirmer {
	if yes {
		return jobs.AutoConfirm
	}
	if !isTerminal(cmd.InOrStdin()) {
		logger.Info("Standard input is not a terminal, originals will be kept (use --yes to delete)")
		return jobs.NeverConfirm
	}
	return jobs.NewPromptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
}

func isTerminal(w interface{}) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// checkTools runs "-version" on both binaries so a missing install fails
// before any file is touched.
func checkTools(ctx context.Context, cfg *config.Config) error {
	for _, tool := range []struct{ name, path string }{
		{"ffmpeg", cfg.FFmpegPath},
		{"ffprobe", cfg.FFprobePath},
	} {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.ValidityTimeout())
		out, err := exec.CommandContext(checkCtx, tool.path, "-version").Output()
		cancel()
		if err != nil {
			return fmt.Errorf("%s not found or not runnable (%s): %w", tool.name, tool.path, err)
		}
		version, _, _ := strings.Cut(string(out), "\n")
		logger.Debug("Found tool", "tool", tool.name, "version", strings.TrimSpace(version))
	}
	return nil
}
