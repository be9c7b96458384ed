// Package lock provides keyed mutual exclusion for board writes, either within
// one process or across processes through Redis.
package lock

import (
	"context"
	"sync"
)

// Local is an in-process keyed mutex. Waiters give up when their context ends.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned unlock function
// is safe to call more than once.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// None never blocks. It suits a single editor working against the store.
type None struct{}

// Lock returns immediately.
func (None) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}
