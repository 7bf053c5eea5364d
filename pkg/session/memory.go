package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory. It mirrors the Redis
// store's expiry semantics and is intended for tests and single-node
// development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	ttl     time.Duration
	closed  bool

	// now is swappable in tests.
	now func() time.Time
}

type memoryRecord struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store. ttl of 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(m.ttl)
}

func (m *MemoryStore) expired(rec memoryRecord) bool {
	return !rec.expiresAt.IsZero() && m.now().After(rec.expiresAt)
}

// Save stores a deep copy of the session and refreshes its expiry.
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	m.records[s.ID] = memoryRecord{data: data, expiresAt: m.expiry()}
	return nil
}

// Get retrieves a session by ID.
func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := m.records[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(rec) {
		delete(m.records, sessionID)
		return nil, ErrSessionNotFound
	}

	var s Session
	if err := json.Unmarshal(rec.data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	delete(m.records, sessionID)
	return nil
}

// Touch refreshes a session's expiry.
func (m *MemoryStore) Touch(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	rec, ok := m.records[sessionID]
	if !ok || m.expired(rec) {
		delete(m.records, sessionID)
		return ErrSessionNotFound
	}

	rec.expiresAt = m.expiry()
	m.records[sessionID] = rec
	return nil
}

// ActiveIDs returns live session IDs in sorted order.
func (m *MemoryStore) ActiveIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(m.records))
	for id, rec := range m.records {
		if m.expired(rec) {
			delete(m.records, id)
			continue
		}
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids, nil
}

// Ping reports whether the store is open.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed and drops all records.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.records = nil
	return nil
}
