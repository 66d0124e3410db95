package project

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fileLock is one per-file mutual exclusion slot. The semaphore channel
// holds one token when the lock is free.
type fileLock struct {
	refs int
	sem  chan struct{}
}

// lockTable maps file ids to locks. Entries are created on first use and
// removed once no operation references them, so the table stays
// proportional to in-flight work rather than to project size.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*fileLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*fileLock)}
}

// acquire blocks until the lock for id is held, the timeout elapses, or
// ctx is cancelled. On success the returned release function must be
// called exactly once.
func (t *lockTable) acquire(ctx context.Context, id int64, timeout time.Duration) (func(), error) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &fileLock{sem: make(chan struct{}, 1)}
		l.sem <- struct{}{}
		t.locks[id] = l
	}
	l.refs++
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.sem:
		return func() { t.release(id, l) }, nil
	case <-timer.C:
		t.unref(id, l)
		return nil, fmt.Errorf("file %d: %w", id, ErrLockTimeout)
	case <-ctx.Done():
		t.unref(id, l)
		return nil, ctx.Err()
	}
}

func (t *lockTable) release(id int64, l *fileLock) {
	l.sem <- struct{}{}
	t.unref(id, l)
}

// unref drops one reference and garbage-collects the entry at zero.
func (t *lockTable) unref(id int64, l *fileLock) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(t.locks, id)
	}
}

// size reports the number of live entries. Test hook.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
