package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ddaanet/tuick/internal/block"
	"github.com/ddaanet/tuick/internal/control"
)

type fakeGeneration struct {
	blocks     chan block.Block
	terminated chan struct{}
	once       sync.Once
}

func newFakeGeneration() *fakeGeneration {
	return &fakeGeneration{
		blocks:     make(chan block.Block, 8),
		terminated: make(chan struct{}),
	}
}

func (g *fakeGeneration) Blocks() <-chan block.Block { return g.blocks }

func (g *fakeGeneration) Terminate(ctx context.Context, soft time.Duration) error {
	g.once.Do(func() {
		close(g.blocks)
		close(g.terminated)
	})
	return nil
}

type fakeRunner struct {
	created chan *fakeGeneration
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{created: make(chan *fakeGeneration, 8)}
}

func (r *fakeRunner) Start(ctx context.Context, id uint64, command []string) (Generation, error) {
	g := newFakeGeneration()
	r.created <- g
	return g, nil
}

// syncBuffer is a thread-safe io.Writer, since the forwarder goroutine
// writes concurrently with the test reading. cond wakes waiters blocked
// in waitForContent on every write, so they never need to poll.
type syncBuffer struct {
	mu   sync.Mutex
	cond sync.Cond
	buf  bytes.Buffer
}

func newSyncBuffer() *syncBuffer {
	b := &syncBuffer{}
	b.cond.L = &b.mu
	return b
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.buf.Write(p)
	b.cond.Broadcast()
	return n, err
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeFinderHandle struct {
	stdin  *syncBuffer
	waitCh chan struct{}
	once   sync.Once
}

func newFakeFinderHandle() *fakeFinderHandle {
	return &fakeFinderHandle{stdin: newSyncBuffer(), waitCh: make(chan struct{})}
}

func (f *fakeFinderHandle) Stdin() io.Writer { return f.stdin }
func (f *fakeFinderHandle) Wait() error      { <-f.waitCh; return nil }
func (f *fakeFinderHandle) Stop() error {
	f.once.Do(func() { close(f.waitCh) })
	return nil
}

type fakeFinderStarter struct {
	handle *fakeFinderHandle
}

func (s *fakeFinderStarter) Start() (FinderHandle, error) { return s.handle, nil }

func waitForGeneration(t *testing.T, ch <-chan *fakeGeneration) *fakeGeneration {
	t.Helper()
	select {
	case g := <-ch:
		return g
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for generation to start")
		return nil
	}
}

// waitForContent blocks on buf's condition variable until want appears or
// the deadline passes, woken by every Write rather than by polling. A
// timer forces one final wakeup at the deadline so a wait that outlasts
// all writes still terminates.
func waitForContent(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	timer := time.AfterFunc(2*time.Second, func() {
		buf.mu.Lock()
		buf.cond.Broadcast()
		buf.mu.Unlock()
	})
	defer timer.Stop()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	for !bytes.Contains(buf.buf.Bytes(), []byte(want)) {
		if time.Now().After(deadline) {
			t.Fatalf("content %q never appeared in %q", want, buf.buf.String())
		}
		buf.cond.Wait()
	}
}

func newTestController(t *testing.T) (*Controller, *fakeRunner, *fakeFinderHandle, int, Token) {
	t.Helper()
	tok, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	ep := control.New(tok, nil)
	port, err := ep.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	runner := newFakeRunner()
	fh := newFakeFinderHandle()
	starter := &fakeFinderStarter{handle: fh}

	ctrl := &Controller{
		Command:      []string{"fake-checker"},
		Runner:       runner,
		FinderDriver: starter,
		Endpoint:     ep,
	}
	return ctrl, runner, fh, port, tok
}

// TestControllerStreamsBlocksAsTheyArrive covers Testable Property 1: a
// block emitted by the current generation reaches the finder's stdin
// without waiting for the generation to exit.
func TestControllerStreamsBlocksAsTheyArrive(t *testing.T) {
	ctrl, runner, fh, _, _ := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()

	g1 := waitForGeneration(t, runner.created)
	g1.blocks <- block.Block{File: "a.py", Line: 1, Col: 1, Content: "a.py:1:1: boom"}
	waitForContent(t, fh.stdin, "a.py")

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestControllerAtomicCutoverOnReload covers Testable Property 2: on
// reload, the old generation's blocks stop being forwarded before the
// new generation's blocks start, with no interleaving window.
func TestControllerAtomicCutoverOnReload(t *testing.T) {
	ctrl, runner, fh, port, tok := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- ctrl.Run(ctx) }()

	g1 := waitForGeneration(t, runner.created)
	g1.blocks <- block.Block{File: "a.py", Line: 1, Col: 1, Content: "a.py:1:1: first"}
	waitForContent(t, fh.stdin, "a.py")

	reload(t, port, tok)

	select {
	case <-g1.terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("old generation was never terminated on reload")
	}

	g2 := waitForGeneration(t, runner.created)
	g2.blocks <- block.Block{File: "b.py", Line: 2, Col: 2, Content: "b.py:2:2: second"}
	waitForContent(t, fh.stdin, "b.py")

	cancel()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// reload posts a single authenticated reload request. No retry loop is
// needed: newTestController's Endpoint.Listen call already has the
// loopback socket bound and listening before Run's Serve goroutine is
// even started, so the connection succeeds on the first attempt.
func reload(t *testing.T, port int, tok Token) {
	t.Helper()
	url := fmt.Sprintf("http://127.0.0.1:%d/reload", port)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(control.HeaderKey, tok.String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("reload request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("reload request: status %d", resp.StatusCode)
	}
}
