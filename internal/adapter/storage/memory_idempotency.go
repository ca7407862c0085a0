package storage

import (
	"context"
	"sync"
	"time"
)

const idemSweepInterval = time.Minute

type idemEntry struct {
	value   string
	expires time.Time
}

// MemoryIdempotency keeps idempotency keys in process, for single-instance runs.
type MemoryIdempotency struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]idemEntry
	now     func() time.Time
	swept   time.Time
}

func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	if ttl <= 0 {
		ttl = idempotencyKeyTTL
	}
	return &MemoryIdempotency{ttl: ttl, entries: make(map[string]idemEntry), now: time.Now}
}

func (m *MemoryIdempotency) Reserve(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.value == idempotencyPending {
			return "", false, nil
		}
		return e.value, false, nil
	}
	m.entries[key] = idemEntry{value: idempotencyPending, expires: now.Add(m.ttl)}
	return "", true, nil
}

// sweep drops expired entries. Callers hold m.mu.
func (m *MemoryIdempotency) sweep(now time.Time) {
	if now.Sub(m.swept) < idemSweepInterval {
		return
	}
	m.swept = now
	for k, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, k)
		}
	}
}

func (m *MemoryIdempotency) Complete(ctx context.Context, key string, result string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = idemEntry{value: result, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
