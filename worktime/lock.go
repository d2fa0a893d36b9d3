package worktime

import (
	"context"
	"sync"
)

// =============================================================================
// LOCKER - Single writer per user
// =============================================================================

// Locker serializes writers on a key. Every ledger and batch write for a user
// runs under Lock(ctx, UserLockKey(userID)).
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func
	// releases the key and must be called exactly once.
	Lock(ctx context.Context, key string) (func(), error)
}

func UserLockKey(userID string) string { return "attendance:user:" + userID }

// KeyedMutex is the in-process Locker. Keys are created on demand and
// dropped once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	// A free key would otherwise race ctx.Done() in the select below.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			k.release(key, s)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// held reports how many keys are live. Used by tests.
func (k *KeyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
