package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestQueue_CloseWaitsForSubmittedJobs(t *testing.T) {
	q := NewQueue(testLogger(), 3, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		err := q.Submit(ctx, func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			completed.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	q.Close()

	if completed.Load() != 10 {
		t.Errorf("Expected 10 completed jobs, got %d", completed.Load())
	}
	stats := q.Stats()
	if stats.Submitted != 10 || stats.Succeeded != 10 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestQueue_ErrorHandling(t *testing.T) {
	q := NewQueue(testLogger(), 2, 5)

	var errorCount atomic.Int32
	q.SetErrorHandler(func(err error) {
		errorCount.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	_ = q.Submit(ctx, func(ctx context.Context) error { return nil })
	_ = q.Submit(ctx, func(ctx context.Context) error { return errors.New("task failed") })
	q.Close()

	stats := q.Stats()
	if stats.Succeeded != 1 {
		t.Errorf("Expected 1 success, got %d", stats.Succeeded)
	}
	if stats.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", stats.Failed)
	}
	if errorCount.Load() != 1 {
		t.Errorf("Expected 1 error callback, got %d", errorCount.Load())
	}
}

func TestQueue_PanicRecovery(t *testing.T) {
	q := NewQueue(testLogger(), 1, 5)

	var handled atomic.Int32
	q.SetErrorHandler(func(err error) { handled.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	_ = q.Submit(ctx, func(ctx context.Context) error {
		panic("intentional panic")
	})

	// 单个 worker 在 panic 后仍需继续处理
	var executed atomic.Bool
	_ = q.Submit(ctx, func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})
	q.Close()

	stats := q.Stats()
	if stats.Panics != 1 || stats.Failed != 1 {
		t.Errorf("Expected 1 panic counted as failure, got %+v", stats)
	}
	if handled.Load() != 1 {
		t.Errorf("Expected panic to reach error handler")
	}
	if !executed.Load() {
		t.Error("Normal job should execute after panic")
	}
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := NewQueue(testLogger(), 1, 1)
	q.Start(context.Background())
	q.Close()
	q.Close()

	err := q.Submit(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestQueue_SubmitRespectsContext(t *testing.T) {
	q := NewQueue(testLogger(), 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	block := make(chan struct{})
	defer close(block)
	_ = q.Submit(ctx, func(ctx context.Context) error { <-block; return nil })
	time.Sleep(20 * time.Millisecond)
	_ = q.Submit(ctx, func(ctx context.Context) error { return nil })

	subCtx, subCancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer subCancel()
	err := q.Submit(subCtx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
