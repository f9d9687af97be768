package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cesargomez89/dictation/internal/logger"
)

func TestWorker_RunsTasks(t *testing.T) {
	w := NewWorker(2, logger.Discard())

	var count int32
	for i := 0; i < 10; i++ {
		if err := w.Go("task", func(ctx context.Context) {
			atomic.AddInt32(&count, 1)
		}); err != nil {
			t.Fatalf("Go failed: %v", err)
		}
	}
	w.Wait()

	if got := atomic.LoadInt32(&count); got != 10 {
		t.Errorf("Expected 10 tasks to run, got %d", got)
	}
}

func TestWorker_BoundsConcurrency(t *testing.T) {
	w := NewWorker(2, logger.Discard())

	var running, peak int32
	release := make(chan struct{})

	for i := 0; i < 6; i++ {
		_ = w.Go("task", func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	w.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("Expected at most 2 concurrent tasks, got %d", got)
	}
}

func TestWorker_RecoversPanics(t *testing.T) {
	w := NewWorker(1, logger.Discard())

	_ = w.Go("bad", func(ctx context.Context) {
		panic("boom")
	})

	var ran int32
	_ = w.Go("good", func(ctx context.Context) {
		atomic.StoreInt32(&ran, 1)
	})
	w.Wait()

	if atomic.LoadInt32(&ran) != 1 {
		t.Error("Expected task after a panic to still run")
	}
}

func TestWorker_DefaultConcurrency(t *testing.T) {
	w := NewWorker(0, nil)
	if w.MaxConcurrent < 1 {
		t.Errorf("Expected positive concurrency, got %d", w.MaxConcurrent)
	}
}

func TestWorker_Stop(t *testing.T) {
	w := NewWorker(1, logger.Discard())

	cancelled := make(chan struct{})
	_ = w.Go("long", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case <-cancelled:
	default:
		t.Error("Expected running task to observe cancellation")
	}

	if err := w.Go("late", func(ctx context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestWorker_StopTimeout(t *testing.T) {
	w := NewWorker(1, logger.Discard())

	block := make(chan struct{})
	defer close(block)
	_ = w.Go("stuck", func(ctx context.Context) {
		<-block
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
