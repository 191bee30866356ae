// Package lock provides soft per-node locks held for the duration of an
// apply, so two operators do not converge the same node at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLocked is returned when the lock is held elsewhere and waiting is
// not allowed or timed out.
var ErrLocked = errors.New("node is locked")

// UnlockFunc releases a lock.
type UnlockFunc func(ctx context.Context) error

// Locker acquires named locks.
type Locker interface {
	// Lock acquires key for ttl. It retries until wait has elapsed; a zero
	// wait tries exactly once.
	Lock(ctx context.Context, key string, ttl, wait time.Duration) (UnlockFunc, error)
}

const pollInterval = 100 * time.Millisecond

// poll calls try until it succeeds, fails, wait elapses or ctx is done.
func poll(ctx context.Context, key string, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().Add(pollInterval).After(deadline) {
			return fmt.Errorf("%w: %s", ErrLocked, key)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Nop hands out locks without coordination.
type Nop struct{}

func (Nop) Lock(context.Context, string, time.Duration, time.Duration) (UnlockFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// Memory coordinates locks within one process.
type Memory struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{held: map[string]time.Time{}, now: time.Now}
}

func (m *Memory) Lock(ctx context.Context, key string, ttl, wait time.Duration) (UnlockFunc, error) {
	var expires time.Time
	err := poll(ctx, key, wait, func() (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if exp, ok := m.held[key]; ok && (exp.IsZero() || m.now().Before(exp)) {
			return false, nil
		}
		if ttl > 0 {
			expires = m.now().Add(ttl)
		} else {
			expires = time.Time{}
		}
		m.held[key] = expires
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if exp, ok := m.held[key]; ok && exp.Equal(expires) {
			delete(m.held, key)
		}
		return nil
	}, nil
}
