package checker

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/ddaanet/tuick/internal/block"
	"github.com/ddaanet/tuick/internal/errorformat"
	"github.com/ddaanet/tuick/internal/procctl"
)

// Generation is a single run of the checker command. At most one
// Generation is ever active for a session; starting a new one implies
// terminating the previous one first.
type Generation struct {
	id      uint64
	cmd     *exec.Cmd
	adapter *errorformat.Adapter
	log     *slog.Logger

	done     chan struct{}
	reapOnce sync.Once
	exitCode int
	waitErr  error
}

// ID returns the generation's monotonically increasing sequence number.
func (g *Generation) ID() uint64 { return g.id }

// Blocks returns the stream of parsed blocks from this generation's
// checker output. The channel closes once the process exits and the
// adapter has flushed any trailing block.
func (g *Generation) Blocks() <-chan block.Block {
	return g.adapter.Blocks()
}

// drain waits for the adapter to finish reading the process's stdout
// (independent of whether a consumer has drained Blocks()) and then reaps
// the process, recording its exit status and closing done. It runs for
// the lifetime of the generation regardless of whether anyone ever calls
// Terminate or AwaitExit.
func (g *Generation) drain() {
	<-g.adapter.Done()
	g.reap()
}

// reap performs the single cmd.Wait() call for this generation. It is
// idempotent and safe to call from both drain and Terminate/AwaitExit.
func (g *Generation) reap() {
	g.reapOnce.Do(func() {
		err := g.cmd.Wait()
		g.waitErr = err
		if g.cmd.ProcessState != nil {
			g.exitCode = g.cmd.ProcessState.ExitCode()
		} else if err != nil {
			g.exitCode = -1
		}
		close(g.done)
	})
}

// AwaitExit blocks until the process has exited, returning its exit code.
// A negative exit code indicates the process was killed by a signal or
// never started cleanly.
func (g *Generation) AwaitExit(ctx context.Context) (int, error) {
	select {
	case <-g.done:
		return g.exitCode, g.waitErr
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Terminate stops the generation: it sends a soft termination signal to
// the process group, waits up to soft for it to exit on its own, and
// escalates to a hard kill if it hasn't. Unless ctx is done first, it
// waits for the process to actually be reaped before returning, so
// callers can rely on the generation being fully gone once Terminate
// returns nil. If ctx is done after the hard kill, Terminate returns
// ctx.Err() without waiting for the reap.
//
// If the process has already exited, Terminate returns nil immediately.
func (g *Generation) Terminate(ctx context.Context, soft time.Duration) error {
	select {
	case <-g.done:
		return nil
	default:
	}

	if soft <= 0 {
		soft = DefaultSoftTimeout
	}

	if err := procctl.SoftTerminate(g.cmd); err != nil && g.log != nil {
		g.log.Warn("checker: soft terminate failed", "generation", g.id, "error", err)
	}

	timer := time.NewTimer(soft)
	defer timer.Stop()

	select {
	case <-g.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
		g.reap()
		return ctx.Err()
	}

	if err := procctl.HardKill(g.cmd); err != nil && g.log != nil {
		g.log.Warn("checker: hard kill failed", "generation", g.id, "error", err)
	}

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
