//go:build unix

// Package procctl provides cross-platform process-group termination
// primitives shared by the checker runner and the external watcher
// driver: both spawn a supervised child and need the same soft-then-hard
// shutdown sequence.
package procctl

import (
	"os/exec"
	"syscall"
)

// SetProcessGroup puts the child in its own process group so a
// termination signal can be delivered to the whole group rather than
// just the child, catching any subprocesses it spawns itself.
func SetProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// SoftTerminate sends SIGTERM to the process group rooted at the
// command's pid. ESRCH ("no such process") is swallowed: the process may
// have already exited between the caller's liveness check and this call.
func SoftTerminate(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGTERM)
}

// HardKill sends SIGKILL to the process group.
func HardKill(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
