package lifecycle

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func startReaped(t *testing.T, name string, args ...string) (*exec.Cmd, chan error) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process group signalling requires unix")
	}
	cmd := exec.Command(name, args...)
	Isolate(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start %s: %v", name, err)
	}
	return cmd, make(chan error, 1)
}

func reap(cmd *exec.Cmd, p *Process, done chan error) {
	go func() {
		err := cmd.Wait()
		p.MarkExited()
		done <- err
	}()
}

func TestNewStateStartsCleared(t *testing.T) {
	s := NewState(0)
	if s.Interrupted() {
		t.Fatal("fresh state must not be interrupted")
	}
	if s.Grace() != DefaultGrace {
		t.Errorf("expected default grace %v, got %v", DefaultGrace, s.Grace())
	}

	s.Interrupt()
	if !s.Interrupted() {
		t.Fatal("expected interrupted after Interrupt")
	}

	// A new invocation gets its own state
	if NewState(time.Second).Interrupted() {
		t.Fatal("new state inherited interrupted flag")
	}
}

func TestRegisterAndClear(t *testing.T) {
	s := NewState(time.Second)
	first := s.Register(&exec.Cmd{}, "/tmp/a.mp4")
	if s.Active() != first {
		t.Fatal("expected first registration to be active")
	}

	second := s.Register(&exec.Cmd{}, "/tmp/b.mp4")

	// Clearing a stale registration must not drop the current one
	s.Clear(first)
	if s.Active() != second {
		t.Fatal("stale Clear removed the active registration")
	}

	s.Clear(second)
	if s.Active() != nil {
		t.Fatal("expected no active process after Clear")
	}
}

func TestMarkExitedIsIdempotent(t *testing.T) {
	p := NewState(time.Second).Register(&exec.Cmd{}, "")
	p.MarkExited()
	p.MarkExited()
	select {
	case <-p.Exited():
	default:
		t.Fatal("expected exited channel to be closed")
	}
}

func TestRemovePartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.mp4")
	if err := os.WriteFile(path, []byte("half"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RemovePartial(path); err != nil {
		t.Fatalf("RemovePartial failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file to be removed")
	}

	// Missing files and empty paths are fine
	if err := RemovePartial(path); err != nil {
		t.Errorf("expected nil for missing file, got %v", err)
	}
	if err := RemovePartial(""); err != nil {
		t.Errorf("expected nil for empty path, got %v", err)
	}
}

func TestTerminateGraceful(t *testing.T) {
	cmd, done := startReaped(t, "sleep", "30")
	s := NewState(2 * time.Second)
	p := s.Register(cmd, "")
	reap(cmd, p, done)

	start := time.Now()
	if !Terminate(p, s.Grace()) {
		t.Error("expected sleep to exit on SIGTERM")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("graceful termination took %v", elapsed)
	}
	<-done
}

func TestTerminateEscalatesToKill(t *testing.T) {
	cmd, done := startReaped(t, "sh", "-c", `trap "" TERM; sleep 30`)
	p := NewState(time.Second).Register(cmd, "")
	reap(cmd, p, done)

	// Give the shell a moment to install its trap
	time.Sleep(100 * time.Millisecond)

	if Terminate(p, 200*time.Millisecond) {
		t.Error("expected escalation to SIGKILL")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process survived SIGKILL")
	}
}

func TestHandleInterruptDeletesPartialOutput(t *testing.T) {
	cmd, done := startReaped(t, "sleep", "30")
	out := filepath.Join(t.TempDir(), "recording.mp4")
	if err := os.WriteFile(out, []byte("partial"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewState(2 * time.Second)
	p := s.Register(cmd, out)
	reap(cmd, p, done)

	if !s.HandleInterrupt() {
		t.Fatal("first HandleInterrupt should perform cleanup")
	}
	if !s.Interrupted() {
		t.Error("expected interrupted flag to be set")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("expected partial output to be deleted")
	}
	<-done

	// A second request during or after cleanup must return immediately
	finished := make(chan bool, 1)
	go func() { finished <- s.HandleInterrupt() }()
	select {
	case again := <-finished:
		if again {
			t.Error("second HandleInterrupt should not repeat cleanup")
		}
	case <-time.After(time.Second):
		t.Fatal("second HandleInterrupt hung")
	}
}

func TestHandleInterruptWithoutActiveJob(t *testing.T) {
	s := NewState(time.Second)
	if !s.HandleInterrupt() {
		t.Fatal("expected cleanup to run")
	}
	if !s.Interrupted() {
		t.Fatal("expected flag to be set")
	}
}
