// Package tasks runs work that must outlive the request that started it,
// such as memory updates after a reply has been streamed.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 2 * time.Minute

// Group tracks detached tasks so shutdown can wait for them.
type Group struct {
	log     *zap.Logger
	timeout time.Duration

	base   context.Context
	cancel context.CancelFunc
	eg     errgroup.Group

	mu       sync.Mutex
	closed   bool
	inflight atomic.Int64
}

// New returns a Group whose tasks each get timeout (DefaultTimeout when
// <= 0) to finish.
func New(log *zap.Logger, timeout time.Duration) *Group {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	return &Group{log: log.Named("tasks"), timeout: timeout, base: base, cancel: cancel}
}

// Go starts fn without blocking the caller. Failures are logged, never
// returned. Returns false once Shutdown has begun.
func (g *Group) Go(name string, fn func(ctx context.Context) error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.log.Warn("task rejected after shutdown", zap.String("task", name))
		return false
	}
	g.inflight.Add(1)
	g.eg.Go(func() error {
		defer g.inflight.Add(-1)
		ctx, cancel := context.WithTimeout(g.base, g.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			g.log.Warn("task failed", zap.String("task", name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return nil
		}
		g.log.Debug("task finished", zap.String("task", name), zap.Duration("elapsed", time.Since(start)))
		return nil
	})
	return true
}

// Inflight reports the number of running tasks.
func (g *Group) Inflight() int {
	return int(g.inflight.Load())
}

// Wait blocks until every started task has returned.
func (g *Group) Wait() {
	_ = g.eg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones until ctx
// expires. Remaining tasks are then cancelled; the number abandoned is
// returned along with ctx's error.
func (g *Group) Shutdown(ctx context.Context) (int, error) {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = g.eg.Wait()
		close(done)
	}()
	select {
	case <-done:
		g.cancel()
		return 0, nil
	case <-ctx.Done():
		abandoned := g.Inflight()
		g.cancel()
		<-done
		g.log.Warn("tasks abandoned at shutdown", zap.Int("count", abandoned))
		return abandoned, ctx.Err()
	}
}
