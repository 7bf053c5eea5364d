package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := NewMemoryStore(0)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	s := newTestSession("mem-1", "user-1")
	s.History = append(s.History, Turn{
		Type:      TurnStudent,
		Message:   "hello",
		Timestamp: time.Now().UTC(),
	})

	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Get(ctx, "mem-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.UserID != "user-1" {
		t.Errorf("UserID mismatch: got %s, want user-1", loaded.UserID)
	}
	if len(loaded.History) != 1 || loaded.History[0].Message != "hello" {
		t.Errorf("history mismatch: %+v", loaded.History)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(0)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if err := store.Save(ctx, newTestSession("mem-copy", "user-1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	first, err := store.Get(ctx, "mem-copy")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first.ProficiencyScore = 99
	first.History = append(first.History, Turn{Type: TurnStudent, Message: "mutated"})

	second, err := store.Get(ctx, "mem-copy")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second.ProficiencyScore != DefaultProficiency {
		t.Errorf("stored session mutated through returned copy: score %d", second.ProficiencyScore)
	}
	if len(second.History) != 0 {
		t.Errorf("stored history mutated through returned copy: %d turns", len(second.History))
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	store := NewMemoryStore(0)
	defer func() { _ = store.Close() }()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(0)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if err := store.Save(ctx, newTestSession("mem-del", "user-1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "mem-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "mem-del"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}

	// Deleting a missing session is not an error.
	if err := store.Delete(ctx, "mem-del"); err != nil {
		t.Errorf("repeat Delete failed: %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(1 * time.Hour)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if err := store.Save(ctx, newTestSession("mem-exp", "user-1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(2 * time.Hour) }

	if _, err := store.Get(ctx, "mem-exp"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after expiry, got %v", err)
	}
	ids, err := store.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no live ids after expiry, got %v", ids)
	}
}

func TestMemoryStore_TouchRefreshesTTL(t *testing.T) {
	store := NewMemoryStore(1 * time.Hour)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if err := store.Save(ctx, newTestSession("mem-touch", "user-1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := store.Touch(ctx, "mem-touch"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(75 * time.Minute) }
	if _, err := store.Get(ctx, "mem-touch"); err != nil {
		t.Fatalf("Get after touch failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(3 * time.Hour) }
	if _, err := store.Get(ctx, "mem-touch"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after refreshed TTL expiry, got %v", err)
	}
}

func TestMemoryStore_ActiveIDs_Sorted(t *testing.T) {
	store := NewMemoryStore(0)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	for _, id := range []string{"z", "a", "m"} {
		if err := store.Save(ctx, newTestSession(id, "user-1")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	ids, err := store.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs failed: %v", err)
	}
	want := []string{"a", "m", "z"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d]: got %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Save(ctx, newTestSession("x", "u")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed from Ping, got %v", err)
	}
}
