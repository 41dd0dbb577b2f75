package checker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ddaanet/tuick/internal/block"
	"github.com/ddaanet/tuick/internal/errorformat"
)

func ruffRecipe() errorformat.Recipe {
	return errorformat.DefaultRegistry()["ruff"]
}

func collectBlocks(g *Generation) []block.Block {
	var got []block.Block
	for b := range g.Blocks() {
		got = append(got, b)
	}
	return got
}

// TestRunnerStreamsBlocks checks that the checker's output line reaches
// the Blocks channel as one parsed block and that the exit code is then
// reported. It does not check when the block arrives relative to the
// process's exit.
func TestRunnerStreamsBlocks(t *testing.T) {
	r := &Runner{Recipe: ruffRecipe()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, err := r.Start(ctx, 1, []string{"sh", "-c", "echo 'a.py:1:1: boom'"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := collectBlocks(g)
	if len(got) != 1 {
		t.Fatalf("got %d blocks, want 1: %+v", len(got), got)
	}
	if got[0].File != "a.py" || got[0].Line != 1 {
		t.Errorf("got %+v", got[0])
	}

	code, err := g.AwaitExit(ctx)
	if err != nil {
		t.Fatalf("AwaitExit: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

// TestAtMostOneActiveGeneration covers Testable Property 3: starting a new
// generation after terminating the previous one never leaves two checker
// processes producing overlapping output.
func TestAtMostOneActiveGeneration(t *testing.T) {
	r := &Runner{Recipe: ruffRecipe()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g1, err := r.Start(ctx, 1, []string{"sh", "-c", "sleep 5"})
	if err != nil {
		t.Fatalf("Start g1: %v", err)
	}

	if err := g1.Terminate(ctx, 50*time.Millisecond); err != nil {
		t.Fatalf("Terminate g1: %v", err)
	}
	// Drain in case Terminate's caller doesn't; Blocks is already closed.
	for range g1.Blocks() {
	}

	g2, err := r.Start(ctx, 2, []string{"sh", "-c", "echo 'a.py:1:1: boom'"})
	if err != nil {
		t.Fatalf("Start g2: %v", err)
	}
	got := collectBlocks(g2)
	if len(got) != 1 {
		t.Fatalf("got %d blocks from g2, want 1", len(got))
	}
}

// TestTerminateCleansUpQuickExit covers Testable Property 5 (clean
// teardown): Terminate on an already-exited process returns promptly
// without blocking on a hard kill.
func TestTerminateCleansUpQuickExit(t *testing.T) {
	r := &Runner{Recipe: ruffRecipe()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, err := r.Start(ctx, 1, []string{"sh", "-c", "true"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range g.Blocks() {
	}
	if _, err := g.AwaitExit(ctx); err != nil {
		t.Fatalf("AwaitExit: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- g.Terminate(ctx, 2*time.Second) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Terminate: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Terminate on exited process blocked")
	}
}

// TestTerminateEscalatesToHardKill covers the soft-then-hard escalation
// path: a process that ignores SIGTERM is still gone after Terminate
// returns.
func TestTerminateEscalatesToHardKill(t *testing.T) {
	if testing.Short() {
		t.Skip("slow: exercises real signal escalation")
	}
	r := &Runner{Recipe: ruffRecipe()}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, err := r.Start(ctx, 1, []string{"sh", "-c", "trap '' TERM; sleep 30"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = g.Terminate(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	for range g.Blocks() {
	}
}

func TestErrStartFailedOnEmptyCommand(t *testing.T) {
	r := &Runner{Recipe: ruffRecipe()}
	_, err := r.Start(context.Background(), 1, nil)
	if err == nil {
		t.Fatal("expected error for empty command")
	}
	if !strings.Contains(err.Error(), "checker:") {
		t.Errorf("error = %v, want checker: prefix", err)
	}
}
