//go:build unix

package lifecycle

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Isolate starts cmd in its own process group so a terminal Ctrl+C reaches
// only this process; the encoder is then stopped through Terminate.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalTerm(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGTERM)
}

func signalKill(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGKILL)
}

// signalGroup signals the whole process group led by cmd. A process that
// already exited is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return err
	}
	if pgid != pid {
		// Not a group leader; never signal our own group.
		err = unix.Kill(pid, sig)
	} else {
		err = unix.Kill(-pgid, sig)
	}
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
