// Package lifecycle owns process-wide cancellation: the interrupted flag,
// the encoder process currently running, and the output file it is
// writing. The signal handler and the transcoder share one State value.
package lifecycle

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultGrace is how long a process gets between SIGTERM and SIGKILL.
const DefaultGrace = 5 * time.Second

// exitWait bounds how long termination waits for the owner to reap the
// process after SIGKILL has been sent.
const exitWait = 2 * time.Second

// State is the cancellation state for one invocation. The zero value is
// not usable; construct with NewState. All methods are safe for
// concurrent use and none of them block on the main flow.
type State struct {
	interrupted atomic.Bool
	handling    atomic.Bool
	active      atomic.Pointer[Process]
	grace       time.Duration
}

// NewState returns a State with a cleared interrupted flag.
func NewState(grace time.Duration) *State {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &State{grace: grace}
}

// Interrupted reports whether cancellation has been requested.
func (s *State) Interrupted() bool {
	return s.interrupted.Load()
}

// Interrupt sets the interrupted flag. The flag is never cleared.
func (s *State) Interrupt() {
	s.interrupted.Store(true)
}

// Grace returns the SIGTERM-to-SIGKILL grace period.
func (s *State) Grace() time.Duration {
	return s.grace
}

// Register records cmd as the active job writing outputPath. cmd must
// already be started. Any previous registration is replaced.
func (s *State) Register(cmd *exec.Cmd, outputPath string) *Process {
	p := &Process{
		cmd:        cmd,
		outputPath: outputPath,
		exited:     make(chan struct{}),
	}
	s.active.Store(p)
	return p
}

// Active returns the registered process, or nil.
func (s *State) Active() *Process {
	return s.active.Load()
}

// Clear drops the registration if p is still the active process.
func (s *State) Clear(p *Process) {
	s.active.CompareAndSwap(p, nil)
}

// Process is a registered encoder subprocess and the file it writes.
type Process struct {
	cmd        *exec.Cmd
	outputPath string
	exited     chan struct{}
	exitOnce   sync.Once
}

// MarkExited must be called by the owner once Wait has returned.
func (p *Process) MarkExited() {
	p.exitOnce.Do(func() { close(p.exited) })
}

// Exited is closed after the owner has reaped the process.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Terminate asks p to stop with SIGTERM and escalates to SIGKILL when it
// has not exited within grace. It returns true if the process exited
// without needing SIGKILL.
func Terminate(p *Process, grace time.Duration) bool {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return true
	}
	_ = signalTerm(p.cmd)

	select {
	case <-p.exited:
		return true
	case <-time.After(grace):
	}

	_ = signalKill(p.cmd)
	select {
	case <-p.exited:
	case <-time.After(exitWait):
	}
	return false
}

// RemovePartial deletes path if it exists. A missing file is not an error.
func RemovePartial(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
