//go:build !unix

package lifecycle

import (
	"os/exec"
)

// Isolate is a no-op on platforms without process groups.
func Isolate(cmd *exec.Cmd) {}

func signalTerm(cmd *exec.Cmd) error {
	// No graceful signal outside unix; the grace period still applies
	// before the forced kill.
	return nil
}

func signalKill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
