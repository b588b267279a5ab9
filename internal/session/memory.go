package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps sessions in process memory. Sessions are lost on
// restart; it backs the MCP transport and single-instance deployments.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload string
	expires time.Time // zero means never
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (b *MemoryBackend) Load(_ context.Context, id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]
	if !ok {
		return "", errNotFound
	}
	if !e.expires.IsZero() && !b.now().Before(e.expires) {
		delete(b.entries, id)
		return "", errNotFound
	}
	return e.payload, nil
}

func (b *MemoryBackend) Save(_ context.Context, id, payload string, ttl time.Duration) error {
	e := memoryEntry{payload: payload}
	if ttl > 0 {
		e.expires = b.now().Add(ttl)
	}

	b.mu.Lock()
	b.entries[id] = e
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	delete(b.entries, id)
	b.mu.Unlock()
	return nil
}

// Sweep drops every expired entry.
func (b *MemoryBackend) Sweep(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var n int64
	for id, e := range b.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(b.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

func (b *MemoryBackend) Close() error { return nil }
