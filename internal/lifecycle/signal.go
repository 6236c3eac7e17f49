package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gwlsn/tsshrink/internal/logger"
)

// ExitInterrupted is the process exit code after an interrupt.
const ExitInterrupted = 130

// HandleInterrupt performs the interrupt cleanup synchronously: it sets
// the flag, stops the active encoder, and deletes its partial output.
// It returns false without doing anything else when another call is
// already cleaning up.
func (s *State) HandleInterrupt() bool {
	s.Interrupt()
	if !s.handling.CompareAndSwap(false, true) {
		return false
	}

	p := s.active.Load()
	if p == nil {
		return true
	}
	if !Terminate(p, s.grace) {
		logger.Warn("Encoder ignored SIGTERM, killed", "grace", s.grace)
	}
	if err := RemovePartial(p.outputPath); err != nil {
		logger.Error("Failed to delete partial file", "path", p.outputPath, "error", err)
	} else {
		logger.Info("Deleted partial output file", "path", p.outputPath)
	}
	return true
}

// Install routes SIGINT and SIGTERM to HandleInterrupt and then calls exit
// with ExitInterrupted. Each signal is handled on its own goroutine so a
// repeated Ctrl+C during cleanup returns at once instead of queueing.
// The returned function stops signal delivery.
func Install(ctx context.Context, s *State, exit func(code int)) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				go func() {
					logger.Warn("Interrupt received, cleaning up", "signal", sig.String())
					if !s.HandleInterrupt() {
						logger.Warn("Cleanup already in progress")
						return
					}
					logger.Info("Cleanup complete, exiting")
					if exit != nil {
						exit(ExitInterrupted)
					}
				}()
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		cancel()
	}
}
