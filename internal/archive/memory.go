package archive

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps archive records in process memory. It backs tests and
// key-less development runs; records are lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations []ConversationRecord
	summaries     []SessionSummary
	experiences   []UserExperience
	nextID        uint
}

// NewMemory creates an empty in-memory archive store.
func NewMemory() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) SaveConversation(ctx context.Context, rec *ConversationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	stored.ID = m.nextID
	stored.ConversationData = append([]byte(nil), rec.ConversationData...)
	m.nextID++
	m.conversations = append(m.conversations, stored)
	rec.ID = stored.ID
	return nil
}

func (m *MemoryStore) SaveSummary(ctx context.Context, summary *SessionSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *summary
	stored.ID = m.nextID
	m.nextID++
	m.summaries = append(m.summaries, stored)
	summary.ID = stored.ID
	return nil
}

func (m *MemoryStore) SaveExperience(ctx context.Context, exp *UserExperience) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *exp
	stored.ID = m.nextID
	stored.FavoriteFeatures = append([]string(nil), exp.FavoriteFeatures...)
	m.nextID++
	m.experiences = append(m.experiences, stored)
	exp.ID = stored.ID
	return nil
}

func (m *MemoryStore) UserSummaries(ctx context.Context, userID string, limit int) ([]SessionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []SessionSummary
	for _, s := range m.summaries {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sortNewestFirst(out, func(s SessionSummary) (int64, uint) { return s.CreatedAt.UnixNano(), s.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UserExperiences(ctx context.Context, userID string, limit int) ([]UserExperience, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []UserExperience
	for _, e := range m.experiences {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sortNewestFirst(out, func(e UserExperience) (int64, uint) { return e.CreatedAt.UnixNano(), e.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Conversations returns stored transcripts for a session. Only tests and
// the REPL use this; the Store interface stays write-only for transcripts.
func (m *MemoryStore) Conversations(sessionID string) []ConversationRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ConversationRecord
	for _, c := range m.conversations {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}

// sortNewestFirst orders records by creation time descending, breaking
// ties by insertion order so same-timestamp records stay stable.
func sortNewestFirst[T any](items []T, key func(T) (int64, uint)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti != tj {
			return ti > tj
		}
		return idi > idj
	})
}
