//go:build windows

package procctl

import "os/exec"

// SetProcessGroup is a no-op on Windows: there is no Setpgid equivalent
// without a Job object, which is more machinery than a single checker or
// watcher child warrants.
func SetProcessGroup(cmd *exec.Cmd) {}

// SoftTerminate has no graceful signal on Windows, so it goes straight to
// HardKill.
func SoftTerminate(cmd *exec.Cmd) error {
	return HardKill(cmd)
}

// HardKill terminates the process directly.
func HardKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
