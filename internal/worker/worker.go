package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pool runs best-effort background tasks and drains them on shutdown
type Pool struct {
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	taskTimeout time.Duration
	logger      *slog.Logger
}

// NewPool creates a new worker pool. taskTimeout bounds every task submitted with Submit.
func NewPool(taskTimeout time.Duration, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:         ctx,
		cancel:      cancel,
		taskTimeout: taskTimeout,
		logger:      logger,
	}
}

// Submit runs a named task with the pool's default timeout.
// Returns false when the pool is shutting down and the task was dropped.
func (p *Pool) Submit(name string, task func(ctx context.Context)) bool {
	return p.SubmitWithTimeout(name, p.taskTimeout, task)
}

// SubmitWithTimeout runs a named task bounded by timeout
func (p *Pool) SubmitWithTimeout(name string, timeout time.Duration, task func(ctx context.Context)) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		p.logger.Warn("⚠️ [Worker] Pool is shutting down, dropping task", "task", name)
		return false
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("❌ [Worker] Task panicked", "task", name, "panic", r)
			}
		}()

		ctx := p.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(p.ctx, timeout)
			defer cancel()
		}
		task(ctx)
	}()
	return true
}

// Shutdown stops accepting tasks and waits for running ones.
// Tasks still running after timeout see their context cancelled.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.logger.Info("🛑 [Worker] Initiating graceful shutdown...")

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("✅ [Worker] All background tasks completed")
	case <-time.After(timeout):
		p.logger.Warn("⚠️ [Worker] Shutdown timeout exceeded, some tasks may not have completed",
			"timeout", timeout,
		)
	}
	p.cancel()
}
