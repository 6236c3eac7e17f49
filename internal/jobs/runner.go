package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/gwlsn/tsshrink/internal/browse"
	"github.com/gwlsn/tsshrink/internal/config"
	"github.com/gwlsn/tsshrink/internal/ffmpeg"
	"github.com/gwlsn/tsshrink/internal/lifecycle"
	"github.com/gwlsn/tsshrink/internal/logger"
	"github.com/gwlsn/tsshrink/internal/verify"
)

// Prober is the output validity check used to skip finished files
type Prober interface {
	IsValidOutput(ctx context.Context, path string) bool
}

// Transcoder converts one source file
type Transcoder interface {
	Transcode(ctx context.Context, req ffmpeg.TranscodeRequest) (*ffmpeg.TranscodeResult, error)
}

// Verifier judges a converted output against its source
type Verifier interface {
	Verify(ctx context.Context, source, output string) verify.Verdict
}

// Options controls a single batch run
type Options struct {
	Recursive bool
	DryRun    bool

	// Confirm approves source deletion after a passing verdict.
	// nil keeps every source.
	Confirm Confirmer

	// Recorder receives run history. nil disables history.
	Recorder Recorder
}

// Runner processes candidate files one at a time: skip if a valid output
// exists, otherwise transcode, verify, and offer deletion of the source.
type Runner struct {
	cfg        *config.Config
	state      *lifecycle.State
	scanner    *browse.Scanner
	prober     Prober
	transcoder Transcoder
	verifier   Verifier
	opts       Options

	removeFile func(path string) error
	listeners  []func(JobEvent)
}

// NewRunner wires a Runner from cfg. state is shared with the interrupt
// handler.
func NewRunner(cfg *config.Config, state *lifecycle.State, opts Options) *Runner {
	prober := ffmpeg.NewProber(cfg.FFprobePath).WithTimeouts(cfg.ProbeTimeout(), cfg.ValidityTimeout())
	if opts.Confirm == nil {
		opts.Confirm = NeverConfirm
	}
	return &Runner{
		cfg:        cfg,
		state:      state,
		scanner:    browse.NewScanner(cfg.SourceExtensions),
		prober:     prober,
		transcoder: ffmpeg.NewTranscoder(cfg.FFmpegPath, prober, state),
		verifier:   verify.NewEngine(prober, verify.PolicyFor(cfg.Mode, cfg.ToleranceSeconds)),
		opts:       opts,
		removeFile: os.Remove,
	}
}

// Subscribe registers fn for job events of subsequent runs
func (r *Runner) Subscribe(fn func(JobEvent)) {
	r.listeners = append(r.listeners, fn)
}

func (r *Runner) cancelled(ctx context.Context) bool {
	return r.state.Interrupted() || ctx.Err() != nil
}

// Run processes every candidate in dir in path order. Per-file failures
// are recorded in the returned Stats and do not stop the batch; an
// interrupt stops it before the next file starts and sets
// Stats.Cancelled. The error is non-nil only when dir cannot be scanned.
func (r *Runner) Run(ctx context.Context, dir string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Directory: dir,
		Mode:      r.cfg.Mode,
		CRF:       r.cfg.CRF,
		Preset:    r.cfg.Preset,
		DryRun:    r.opts.DryRun,
		StartedAt: time.Now(),
	}

	files, err := r.scanner.Scan(ctx, dir, r.opts.Recursive)
	if err != nil {
		return nil, err
	}

	if rec := r.opts.Recorder; rec != nil {
		if err := rec.StartRun(run); err != nil {
			logger.Warn("Failed to record run start", "run_id", run.ID, "error", err)
		}
	}

	stats := &run.Stats
	stats.Found = len(files)

	if len(files) == 0 {
		logger.Info("No candidate files found", "directory", dir)
	} else {
		logger.Info("Found candidate files",
			"directory", dir,
			"count", len(files),
			"total_size", humanize.IBytes(uint64(browse.TotalSize(files))))
	}

	queue := NewQueue(run.ID, r.opts.Recorder)
	for _, fn := range r.listeners {
		queue.Subscribe(fn)
	}
	for _, f := range files {
		queue.Add(f.Path, browse.OutputPath(f.Path, r.cfg.OutputExtension), f.Size)
	}

	for _, job := range queue.GetAll() {
		if r.cancelled(ctx) {
			stats.Cancelled = true
			break
		}
		r.processJob(ctx, queue, job, stats)
		if stats.Cancelled {
			break
		}
	}

	if stats.Cancelled {
		logger.Warn("Run cancelled", "run_id", run.ID)
	}

	run.CompletedAt = time.Now()
	if rec := r.opts.Recorder; rec != nil {
		if err := rec.FinishRun(run); err != nil {
			logger.Warn("Failed to record run result", "run_id", run.ID, "error", err)
		}
	}

	return run, nil
}

// processJob drives one job to a terminal state
func (r *Runner) processJob(ctx context.Context, queue *Queue, job *Job, stats *Stats) {
	name := filepath.Base(job.InputPath)

	if r.prober.IsValidOutput(ctx, job.OutputPath) {
		logger.Info("Skipping, valid output already exists", "file", name, "output", job.OutputPath)
		_ = queue.Skip(job.ID, "valid output already exists")
		stats.Skipped++
		return
	}

	if r.opts.DryRun {
		logger.Info("Dry run, would convert", "file", name, "output", filepath.Base(job.OutputPath))
		_ = queue.Skip(job.ID, "dry run")
		stats.Processed++
		return
	}

	logger.Info("Job started",
		"job_id", job.ID,
		"file", name,
		"mode", r.cfg.Mode,
		"crf", r.cfg.CRF,
		"preset", r.cfg.Preset,
		"size", humanize.IBytes(uint64(job.InputSize)))
	_ = queue.StartTranscode(job.ID)

	result, err := r.transcoder.Transcode(ctx, ffmpeg.TranscodeRequest{
		InputPath:    job.InputPath,
		OutputPath:   job.OutputPath,
		Settings:     r.cfg.EncodeSettings(),
		RequireAudio: !r.cfg.AllowVideoOnly,
		Progress: func(p ffmpeg.Progress) {
			logger.Debug("FFmpeg progress", "job_id", job.ID, "percent", p.Percent, "speed", p.Speed)
			queue.UpdateProgress(job.ID, p)
		},
	})

	// Handle cancellation (could happen at any point above)
	if errors.Is(err, ffmpeg.ErrCancelled) || r.cancelled(ctx) {
		logger.Warn("Job cancelled", "job_id", job.ID, "file", name)
		if result != nil {
			r.discardUnverified(job.OutputPath)
		}
		_ = queue.Cancel(job.ID)
		stats.Cancelled = true
		return
	}

	if err != nil {
		reason := failureReason(err)
		logger.Error("Job failed", "job_id", job.ID, "file", name, "error", err.Error())
		_ = queue.Fail(job.ID, reason)
		stats.addFailure(job.InputPath, reason)
		return
	}

	_ = queue.StartVerify(job.ID, result.OutputSize, result.Duration)
	logger.Info("Verifying output", "job_id", job.ID, "output", filepath.Base(job.OutputPath))

	verdict := r.verifier.Verify(ctx, job.InputPath, job.OutputPath)
	if r.cancelled(ctx) {
		logger.Warn("Job cancelled during verification", "job_id", job.ID, "file", name)
		r.discardUnverified(job.OutputPath)
		_ = queue.Cancel(job.ID)
		stats.Cancelled = true
		return
	}

	if !verdict.OK {
		// The output is kept for inspection; only the source is protected.
		logger.Error("Verification failed",
			"job_id", job.ID,
			"file", name,
			"check", verdict.Check,
			"reason", verdict.Reason,
			"output", job.OutputPath)
		_ = queue.Fail(job.ID, verdict.Reason)
		stats.addFailure(job.InputPath, verdict.Reason)
		return
	}

	logger.Info("Job complete",
		"job_id", job.ID,
		"file", name,
		"duration", result.Duration.Round(time.Second).String(),
		"saved", humanize.IBytes(uint64(max(result.SpaceSaved, 0))))
	_ = queue.Complete(job.ID, verdict.Warnings)
	stats.Succeeded++
	stats.Processed++
	stats.BytesSaved += result.SpaceSaved

	r.offerDeletion(queue, job, stats)
}

// discardUnverified removes an output the next run would otherwise skip
// as already converted.
func (r *Runner) discardUnverified(path string) {
	if err := lifecycle.RemovePartial(path); err != nil {
		logger.Error("Failed to delete unverified output", "path", path, "error", err)
	}
}

// offerDeletion removes the source of a verified job if confirmed. A
// failed removal is reported but leaves the verdict alone.
func (r *Runner) offerDeletion(queue *Queue, job *Job, stats *Stats) {
	name := filepath.Base(job.InputPath)

	if !r.opts.Confirm.Confirm(job.InputPath) {
		logger.Info("Kept original", "file", name)
		return
	}

	if err := r.removeFile(job.InputPath); err != nil {
		logger.Error("Failed to delete original", "file", name, "error", err)
		return
	}

	logger.Info("Deleted original", "file", name)
	_ = queue.MarkDeleted(job.ID)
	stats.Deleted++
}
