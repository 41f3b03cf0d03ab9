// ABOUTME: In-memory ephemeral Store implementation for testing
// ABOUTME: TTL map with a background janitor; can simulate backend outage

package ephemeral

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	members   map[string]struct{}
	counter   int64
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-memory Store implementation for testing.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	done    chan struct{}
	closed  bool

	// failing simulates an unreachable backend; every call returns
	// ErrUnavailable while set
	failing bool
}

// Ensure Memory implements the Store interface
var _ Store = (*Memory)(nil)

// NewMemory creates a new in-memory ephemeral store with a background janitor.
func NewMemory() *Memory {
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		done:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

// SetFailing toggles simulated backend outage for fail-open tests.
func (m *Memory) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}

// get returns the live entry at key, removing it lazily when expired.
// Must be called with mu held.
func (m *Memory) get(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if e.expired(time.Now()) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func ttlDeadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Set stores value under key with the given TTL.
func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return ErrUnavailable
	}
	m.entries[key] = &memoryEntry{value: value, expiresAt: ttlDeadline(ttl)}
	return nil
}

// Get retrieves the value at key.
func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return "", ErrUnavailable
	}
	e := m.get(key)
	if e == nil {
		return "", ErrNotFound
	}
	return e.value, nil
}

// GetDel atomically reads and deletes key.
func (m *Memory) GetDel(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return "", ErrUnavailable
	}
	e := m.get(key)
	if e == nil {
		return "", ErrNotFound
	}
	delete(m.entries, key)
	return e.value, nil
}

// Delete removes key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return ErrUnavailable
	}
	delete(m.entries, key)
	return nil
}

// Exists reports whether key is present.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return false, ErrUnavailable
	}
	return m.get(key) != nil, nil
}

// Incr increments the counter at key, attaching ttl on first creation.
func (m *Memory) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return 0, ErrUnavailable
	}
	e := m.get(key)
	if e == nil {
		e = &memoryEntry{expiresAt: ttlDeadline(ttl)}
		m.entries[key] = e
	}
	e.counter++
	return e.counter, nil
}

// SetAdd adds member to the set at key.
func (m *Memory) SetAdd(ctx context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return ErrUnavailable
	}
	e := m.get(key)
	if e == nil {
		e = &memoryEntry{members: make(map[string]struct{})}
		m.entries[key] = e
	}
	if e.members == nil {
		e.members = make(map[string]struct{})
	}
	e.members[member] = struct{}{}
	return nil
}

// SetRemove removes member from the set at key.
func (m *Memory) SetRemove(ctx context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return ErrUnavailable
	}
	if e := m.get(key); e != nil {
		delete(e.members, member)
		if len(e.members) == 0 {
			delete(m.entries, key)
		}
	}
	return nil
}

// SetMembers returns all members of the set at key.
func (m *Memory) SetMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return nil, ErrUnavailable
	}
	e := m.get(key)
	if e == nil {
		return []string{}, nil
	}
	members := make([]string, 0, len(e.members))
	for member := range e.members {
		members = append(members, member)
	}
	return members, nil
}

// Ping reports simulated availability.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return ErrUnavailable
	}
	return nil
}

// Close stops the janitor. Safe to call multiple times.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
	return nil
}
