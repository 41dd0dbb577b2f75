package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ddaanet/tuick/internal/block"
	"github.com/ddaanet/tuick/internal/checker"
	"github.com/ddaanet/tuick/internal/control"
	"github.com/ddaanet/tuick/internal/finder"
)

// Generation is the subset of *checker.Generation the controller depends
// on, kept narrow so tests can supply a fake checker process.
type Generation interface {
	Blocks() <-chan block.Block
	Terminate(ctx context.Context, soft time.Duration) error
}

// Runner starts a new Generation for a command.
type Runner interface {
	Start(ctx context.Context, id uint64, command []string) (Generation, error)
}

// FinderHandle is the subset of *finder.Handle the controller depends on.
type FinderHandle interface {
	Stdin() io.Writer
	Wait() error
	Stop() error
}

// FinderStarter starts a FinderHandle.
type FinderStarter interface {
	Start() (FinderHandle, error)
}

// Watcher is the subset of a running watcher the controller depends on.
type Watcher interface {
	Stop() error
}

// runnerAdapter lets a *checker.Runner satisfy Runner.
type runnerAdapter struct{ r *checker.Runner }

func (a runnerAdapter) Start(ctx context.Context, id uint64, command []string) (Generation, error) {
	return a.r.Start(ctx, id, command)
}

// NewRunner adapts a *checker.Runner to the Runner interface.
func NewRunner(r *checker.Runner) Runner { return runnerAdapter{r: r} }

// finderAdapter lets a *finder.Driver satisfy FinderStarter.
type finderAdapter struct{ d *finder.Driver }

func (a finderAdapter) Start() (FinderHandle, error) { return a.d.Start() }

// NewFinderStarter adapts a *finder.Driver to the FinderStarter interface.
func NewFinderStarter(d *finder.Driver) FinderStarter { return finderAdapter{d: d} }

// Controller is the session-wide state machine: it owns the current
// checker generation, the finder process, the control endpoint, and the
// (optional) watcher, and is the only goroutine allowed to mutate any of
// them.
type Controller struct {
	Command      []string
	Runner       Runner
	FinderDriver FinderStarter
	Endpoint     *control.Endpoint
	Watcher      Watcher
	SaveFile     *os.File
	SoftTimeout  time.Duration
	Log          *slog.Logger

	ID uuid.UUID

	mu        sync.Mutex
	state     State
	gen       Generation
	nextGenID uint64

	finder      FinderHandle
	forwarderWG sync.WaitGroup
}

// State reports the controller's current state-machine position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run is the controller's single state-machine goroutine: it starts the
// control endpoint, the first checker generation, and the finder, then
// loops on reloads, finder exit, and signal-driven shutdown until it
// drains and returns.
func (c *Controller) Run(ctx context.Context) error {
	c.setState(StateStarting)
	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	endpointErrCh := make(chan error, 1)
	go func() { endpointErrCh <- c.Endpoint.Serve(serveCtx) }()

	if err := c.startGeneration(ctx); err != nil {
		return fmt.Errorf("session: start first generation: %w", err)
	}

	fh, err := c.FinderDriver.Start()
	if err != nil {
		return fmt.Errorf("session: start finder: %w", err)
	}
	c.finder = fh
	c.startForwarder(c.gen)

	finderDoneCh := make(chan error, 1)
	go func() { finderDoneCh <- fh.Wait() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	c.setState(StateRunning)

	var runErr error
loop:
	for {
		select {
		case <-c.Endpoint.Reloads():
			log.Debug("session: reload requested")
			if err := c.reload(ctx); err != nil {
				log.Warn("session: reload failed", "error", err)
			}

		case err := <-finderDoneCh:
			if err != nil {
				log.Debug("session: finder exited", "error", err)
			}
			break loop

		case sig := <-sigCh:
			log.Debug("session: received signal", "signal", sig)
			break loop

		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		}
	}

	c.setState(StateDraining)
	cancelServe()
	<-endpointErrCh

	if c.Watcher != nil {
		_ = c.Watcher.Stop()
	}
	_ = c.finder.Stop()

	termCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if c.gen != nil {
		_ = c.gen.Terminate(termCtx, c.softTimeout())
	}
	c.forwarderWG.Wait()

	c.printSaveFile()
	c.setState(StateStopped)
	return runErr
}

func (c *Controller) softTimeout() time.Duration {
	if c.SoftTimeout <= 0 {
		return checker.DefaultSoftTimeout
	}
	return c.SoftTimeout
}

// reload terminates the current generation, starts a new one, and swaps
// the forwarder goroutine atomically: the new forwarder is only started
// once the old one has fully returned, so the finder never sees blocks
// from two generations interleaved.
func (c *Controller) reload(ctx context.Context) error {
	c.setState(StateReloading)
	defer c.setState(StateRunning)

	old := c.gen
	if old != nil {
		if err := old.Terminate(ctx, c.softTimeout()); err != nil {
			return fmt.Errorf("terminate previous generation: %w", err)
		}
	}
	c.forwarderWG.Wait()

	if err := c.startGeneration(ctx); err != nil {
		return err
	}
	c.startForwarder(c.gen)
	return nil
}

func (c *Controller) startGeneration(ctx context.Context) error {
	c.nextGenID++
	g, err := c.Runner.Start(ctx, c.nextGenID, c.Command)
	if err != nil {
		return err
	}
	c.gen = g
	return nil
}

func (c *Controller) startForwarder(g Generation) {
	c.forwarderWG.Add(1)
	go func() {
		defer c.forwarderWG.Done()
		w := c.finder.Stdin()
		for b := range g.Blocks() {
			stripped := block.StripDelimiters(b)
			if err := block.Encode(w, stripped); err != nil {
				c.logWarn("session: encode block for finder", err)
				return
			}
		}
	}()
}

func (c *Controller) logWarn(msg string, err error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn(msg, "error", err)
}

func (c *Controller) printSaveFile() {
	if c.SaveFile == nil {
		return
	}
	r, err := os.Open(c.SaveFile.Name())
	if err != nil {
		return
	}
	defer r.Close()
	_, _ = io.Copy(os.Stdout, r)
}
