package lock

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Mutex is an in-process keyed lock. Waiting for a key respects
// context cancellation.
type Mutex struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func NewMutex() *Mutex {
	return &Mutex{keys: make(map[string]chan struct{})}
}

func (m *Mutex) Acquire(ctx context.Context, key string) (func(), error) {
	ch := m.slot(key)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "could not acquire [%s] lock", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

func (m *Mutex) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.keys[key] = ch
	}

	return ch
}
