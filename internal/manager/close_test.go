package manager

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClose_FreesModelAndRejectsLoads(t *testing.T) {
	env := newTestEnv(t)
	env.installModel(t)
	inst, err := env.m.GetOrLoad(testCtx(t))
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if err := env.m.Close(testCtx(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !env.backend.Model.Closed() {
		t.Fatalf("model must be freed")
	}
	if _, err := env.m.GetOrLoad(testCtx(t)); !IsClosed(err) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := inst.Acquire(testCtx(t)); !IsClosed(err) {
		t.Fatalf("stale instance must refuse new generations, got %v", err)
	}
	if s := env.m.Snapshot(); s.State != StateUnloaded || s.CurrentModel != nil {
		t.Fatalf("snapshot after close: %+v", s)
	}
	// Second Close is a no-op.
	if err := env.m.Close(testCtx(t)); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestClose_WaitsForInflightGeneration(t *testing.T) {
	env := newTestEnv(t)
	env.installModel(t)
	inst, _ := env.m.GetOrLoad(testCtx(t))
	release, err := inst.Acquire(testCtx(t))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := env.m.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected Close to time out behind the generation, got %v", err)
	}
	if env.backend.Model.Closed() {
		t.Fatalf("model freed while in use")
	}

	done := make(chan error, 1)
	go func() { done <- env.m.Close(testCtx(t)) }()
	time.Sleep(10 * time.Millisecond)
	release()
	if err := <-done; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !env.backend.Model.Closed() {
		t.Fatalf("model must be freed after the generation finished")
	}
}

func TestClose_BeforeLoad(t *testing.T) {
	env := newTestEnv(t)
	if err := env.m.Close(testCtx(t)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := env.m.GetOrLoad(testCtx(t)); !IsClosed(err) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if env.backend.Inits() != 0 {
		t.Fatalf("closed manager must not touch the backend")
	}
}
