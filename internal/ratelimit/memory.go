package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store guarded by a mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryStore) Start(_ context.Context, key string, resetAt time.Time) error {
	m.mu.Lock()
	m.entries[key] = Entry{Count: 1, ResetAt: resetAt}
	m.mu.Unlock()
	return nil
}

// Increment creates the entry with a zero ResetAt when it was swept between
// Get and Increment; the next request then starts a fresh window.
func (m *MemoryStore) Increment(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	e.Count++
	m.entries[key] = e
	return e.Count, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Remove deletes key and reports whether it was tracked. Listed keys are
// ledger keys, so both forms name the same entry.
func (m *MemoryStore) Remove(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok, nil
}

// Sweep drops every entry whose window has ended and returns how many were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.ResetAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Snapshot returns a copy of the ledger.
func (m *MemoryStore) Snapshot() map[string]Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Entry, len(m.entries))
	for k, e := range m.entries {
		out[k] = e
	}
	return out
}

// Len returns the number of tracked keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) List(_ context.Context) (map[string]Entry, error) {
	return m.Snapshot(), nil
}
