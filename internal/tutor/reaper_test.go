package tutor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingokit/lingokit/internal/archive"
	"github.com/lingokit/lingokit/pkg/session"
)

type flakyStore struct {
	*session.MemoryStore
	activeErr error
	extraIDs  []string
}

func (f *flakyStore) ActiveIDs(ctx context.Context) ([]string, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	ids, err := f.MemoryStore.ActiveIDs(ctx)
	if err != nil {
		return nil, err
	}
	return append(ids, f.extraIDs...), nil
}

func TestReaper_EndsIdleSessions(t *testing.T) {
	ctx := context.Background()
	m, store, arch := newTestManager()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	idle, err := m.CreateSession(ctx, map[string]any{"user_id": "ua"})
	require.NoError(t, err)

	current = base.Add(30 * time.Minute)
	fresh, err := m.CreateSession(ctx, map[string]any{"user_id": "ub"})
	require.NoError(t, err)

	r := NewReaper(m, store, 45*time.Minute)
	r.now = func() time.Time { return base.Add(50 * time.Minute) }

	reaped, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	_, err = store.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)

	sums, err := arch.UserSummaries(ctx, "ua", 10)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, session.StatusEnded, sums[0].SessionStatus)
	exps, err := arch.UserExperiences(ctx, "ua", 10)
	require.NoError(t, err)
	assert.Empty(t, exps)

	// Nothing left to reap on the next sweep.
	reaped, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, reaped)
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestReaper_LeavesFreshSessionsAlone(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager()

	s, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)

	r := NewReaper(m, store, 45*time.Minute)
	reaped, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, reaped)

	_, err = store.Get(ctx, s.ID)
	assert.NoError(t, err)
}

func TestReaper_ListFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: session.NewMemoryStore(0), activeErr: errors.New("redis down")}
	m := NewManager(store, archive.NewMemory(), archive.RatingBounds{})

	r := NewReaper(m, store, 45*time.Minute)
	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list active sessions")
}

func TestReaper_SkipsVanishedSessions(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: session.NewMemoryStore(0), extraIDs: []string{"ghost"}}
	m := NewManager(store, archive.NewMemory(), archive.RatingBounds{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	s, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)

	r := NewReaper(m, store, 45*time.Minute)
	r.now = func() time.Time { return base.Add(time.Hour) }

	reaped, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	_, err = store.Get(ctx, s.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestReaper_EndFailuresDoNotAbortSweep(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(0)
	arch := &failingArchive{MemoryStore: archive.NewMemory(), conversationErr: archive.ErrUnavailable}
	m := NewManager(store, arch, archive.RatingBounds{})

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	first, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)
	second, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)

	r := NewReaper(m, store, 45*time.Minute)
	r.now = func() time.Time { return base.Add(time.Hour) }

	// The archive is down: nothing is reaped, nothing is lost.
	reaped, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, reaped)
	_, err = store.Get(ctx, first.ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, second.ID)
	assert.NoError(t, err)

	// Once it recovers, the next sweep catches up.
	arch.conversationErr = nil
	reaped, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reaped)
}

func TestReaper_HonorsContext(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	_, err := m.CreateSession(ctx, nil)
	require.NoError(t, err)

	r := NewReaper(m, store, 45*time.Minute)
	r.now = func() time.Time { return base.Add(time.Hour) }

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	reaped, err := r.Run(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, reaped)
}
