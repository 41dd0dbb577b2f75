// Package watcher notifies the control endpoint's /reload route when
// source files change, either by running an external watcher command or,
// natively, via fsnotify.
package watcher

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ddaanet/tuick/internal/procctl"
)

// Handle represents a running watcher, external or native.
type Handle interface {
	// Stop terminates the watcher and releases its resources.
	Stop() error
}

// Driver spawns an external watcher command unchanged, reusing the
// checker runner's process-group lifecycle.
type Driver struct{}

type externalHandle struct {
	cmd *exec.Cmd
}

func (h *externalHandle) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := procctl.SoftTerminate(h.cmd); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()
	// The exit status reported by Wait is the result of the signal sent
	// above, so it is not returned as a Stop failure.
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if err := procctl.HardKill(h.cmd); err != nil {
			return err
		}
		<-done
		return nil
	}
}

// Start spawns cmdTemplate as the external watcher. Its stdin, stdout and
// stderr are not connected (they are the null device), so the watcher's
// own output is discarded.
func (d *Driver) Start(ctx context.Context, cmdTemplate []string) (Handle, error) {
	if len(cmdTemplate) == 0 {
		return nil, fmt.Errorf("watcher: empty command")
	}
	cmd := exec.CommandContext(ctx, cmdTemplate[0], cmdTemplate[1:]...)
	procctl.SetProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("watcher: start %v: %w", cmdTemplate, err)
	}
	return &externalHandle{cmd: cmd}, nil
}

// matchesPatterns reports whether name matches at least one of patterns,
// or whether patterns is empty (meaning "watch everything").
func matchesPatterns(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	base := filepath.Base(name)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}
