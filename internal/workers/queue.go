// Package workers implements supervised background work queues. Each
// queue owns one pull-block-process loop; handler failures and panics are
// logged and the loop resumes after a fixed delay instead of dying.
// Concurrency across all queues is bounded by a shared semaphore.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/packfactory/packfactory/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
)

// ErrQueueStopped is returned by Enqueue once shutdown has begun.
var ErrQueueStopped = errors.New("queue stopped")

// stopSentinel is pushed onto the queue to signal graceful shutdown. It
// never reaches a handler and is never exposed to callers.
const stopSentinel int64 = -1

const queueDepth = 128

// Handler processes one queued item. A returned error is logged and the
// loop restarts after the configured delay.
type Handler func(ctx context.Context, id int64) error

// Queue is a durable work queue driven by a single supervised loop.
type Queue struct {
	name         string
	handler      Handler
	pool         *semaphore.Weighted
	restartDelay time.Duration
	logger       logging.Logger

	mu      sync.Mutex
	stopped bool

	items chan int64
	done  chan struct{}
}

// NewQueue builds a queue. The pool bounds in-flight handler calls across
// every queue sharing it.
func NewQueue(name string, handler Handler, pool *semaphore.Weighted, restartDelay time.Duration, logger logging.Logger) *Queue {
	return &Queue{
		name:         name,
		handler:      handler,
		pool:         pool,
		restartDelay: restartDelay,
		logger:       logger.With("queue", name),
		items:        make(chan int64, queueDepth),
		done:         make(chan struct{}),
	}
}

// Start launches the supervised loop. The context governs the loop's
// lifetime; cancelling it abandons queued items without running them.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)

		backoff := retry.NewConstant(q.restartDelay)
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := q.loop(ctx); err != nil {
				q.logger.Error(ctx, "worker loop failed, restarting", "error", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			q.logger.Error(ctx, "worker loop terminated", "error", err)
		}
	}()
}

// Enqueue hands an item to the worker. It fails once Stop has been
// called so shutdown cannot race new work.
func (q *Queue) Enqueue(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return fmt.Errorf("queue %q: %w", q.name, ErrQueueStopped)
	}
	select {
	case q.items <- id:
		return nil
	default:
		return fmt.Errorf("queue %q is full", q.name)
	}
}

// Stop rejects further enqueues and blocks until the loop has drained
// the items queued before Stop and exited.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.items <- stopSentinel
	<-q.done
}

// loop pulls and processes items until the stop sentinel arrives. A nil
// return means graceful shutdown; any error restarts the loop.
func (q *Queue) loop(ctx context.Context) error {
	for {
		var id int64
		select {
		case <-ctx.Done():
			return nil
		case id = <-q.items:
		}
		if id == stopSentinel {
			return nil
		}

		if err := q.pool.Acquire(ctx, 1); err != nil {
			return nil
		}
		err := q.process(ctx, id)
		q.pool.Release(1)
		if err != nil {
			return err
		}
	}
}

// process runs the handler for one item, converting panics to errors so
// the supervisor can restart the loop.
func (q *Queue) process(ctx context.Context, id int64) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()

	q.logger.Debug(ctx, "processing item", "id", id)
	return q.handler(ctx, id)
}
