// Package worker runs background pipeline tasks on a process-owned pool.
package worker

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/cesargomez89/dictation/internal/constants"
	"github.com/cesargomez89/dictation/internal/logger"
)

var ErrStopped = errors.New("worker is stopped")

// Worker runs tasks detached from the caller with at most MaxConcurrent of
// them executing at once. Tasks outlive the request that scheduled them and
// only observe cancellation when the worker itself is stopped.
type Worker struct {
	Logger        *logger.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	sem           chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	MaxConcurrent int
	stopped       bool
}

func NewWorker(maxConcurrent int, log *logger.Logger) *Worker {
	if maxConcurrent < 1 {
		maxConcurrent = constants.DefaultConcurrency
	}
	if log == nil {
		log = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		Logger:        log.WithComponent("worker"),
		MaxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Go schedules fn and returns immediately. fn waits for a free slot before
// it starts. A panic in fn is logged and does not take the worker down.
func (w *Worker) Go(name string, fn func(ctx context.Context)) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()

		select {
		case w.sem <- struct{}{}:
			defer func() { <-w.sem }()
		case <-w.ctx.Done():
			// Still run so the task can record its own failure
		}

		w.run(name, fn)
	}()
	return nil
}

func (w *Worker) run(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("Panic in task",
				"task", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	fn(w.ctx)
}

// Wait blocks until every scheduled task has returned
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Stop refuses new tasks, cancels the context running tasks see, and waits
// for them to return or for ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	w.Logger.Info("Stopping worker")

	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
