package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("lock: held by another request")

// Locker grants short-lived exclusive ownership of a key. The returned
// release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Memory is a process-local Locker for single-instance deployments and tests.
type Memory struct {
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	held map[string]memEntry
	seq  uint64
}

type memEntry struct {
	token   uint64
	expires time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, held: map[string]memEntry{}}
}

func (m *Memory) Acquire(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.held[key]; ok && (m.ttl <= 0 || now.Before(e.expires)) {
		return nil, ErrHeld
	}
	m.seq++
	token := m.seq
	m.held[key] = memEntry{token: token, expires: now.Add(m.ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if e, ok := m.held[key]; ok && e.token == token {
				delete(m.held, key)
			}
		})
	}, nil
}
