// Package jobs runs fire-and-forget work on a bounded worker pool.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Stop on a queue that was never started.
var ErrQueueClosed = errors.New("queue closed")

// Handler processes one item.
type Handler[T any] func(context.Context, T) error

// Config configures worker pool behaviour.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-memory buffered dispatcher. Items still buffered when Stop is
// called are drained before Stop returns.
type Queue[T any] struct {
	name       string
	handler    Handler[T]
	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	items   chan T
	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
}

// New builds a queue with the provided handler.
func New[T any](name string, handler Handler[T], cfg Config) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger.With(zap.String("queue", name)),
		items:      make(chan T, cfg.BufferSize),
	}
}

// Start launches the workers. ctx is handed to every handler call. Safe to call once.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.ctx = ctx
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.workers))
}

// TryEnqueue buffers item without blocking. It reports false when the queue
// is not running or the buffer is full.
func (q *Queue[T]) TryEnqueue(item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.started || q.closed {
		return false
	}
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// Stop stops intake and waits for buffered items to finish or ctx to expire.
func (q *Queue[T]) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.closed = true
	close(q.items)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("queue drained")
		return nil
	case <-ctx.Done():
		q.logger.Warn("queue stop timed out", zap.Int("pending", len(q.items)))
		return ctx.Err()
	}
}

func (q *Queue[T]) worker() {
	defer q.wg.Done()
	for item := range q.items {
		q.process(item)
	}
}

func (q *Queue[T]) process(item T) {
	var err error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(q.retryDelay)
		}
		if err = q.handler(q.ctx, item); err == nil {
			return
		}
		q.logger.Warn("job failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	q.logger.Error("job exceeded retries", zap.Error(err))
}
