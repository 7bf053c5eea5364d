package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Each session is one JSON value
// under session:<id>, with membership tracked in an active-index set so
// the idle reaper can enumerate live sessions.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db).
	URL string
	// Prefix is the key prefix for all session keys (default: "lingokit:").
	Prefix string
	// SessionTTL is the session expiry duration (0 = never expire).
	SessionTTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w: %w", ErrStoreUnavailable, err)
	}

	return &RedisStore{
		client: client,
		prefix: normalizePrefix(cfg.Prefix),
		ttl:    cfg.SessionTTL,
	}, nil
}

// NewRedisStoreFromClient creates a store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: normalizePrefix(prefix),
		ttl:    ttl,
	}
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return "lingokit:"
	}
	return prefix
}

func (r *RedisStore) sessionKey(sessionID string) string {
	return r.prefix + "session:" + sessionID
}

func (r *RedisStore) activeIndexKey() string {
	return r.prefix + "sessions:active"
}

func (r *RedisStore) checkClosed() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save writes the full session record and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if err := r.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.sessionKey(s.ID), data, r.ttl)
	pipe.SAdd(ctx, r.activeIndexKey(), s.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w: %w", ErrStoreUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID.
func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	if err := r.checkClosed(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w: %w", ErrStoreUnavailable, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &s, nil
}

// Delete removes a session and its index entry.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.checkClosed(); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	pipe.SRem(ctx, r.activeIndexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w: %w", ErrStoreUnavailable, err)
	}

	return nil
}

// Touch refreshes a session's TTL.
func (r *RedisStore) Touch(ctx context.Context, sessionID string) error {
	if err := r.checkClosed(); err != nil {
		return err
	}
	if r.ttl <= 0 {
		return nil
	}

	ok, err := r.client.Expire(ctx, r.sessionKey(sessionID), r.ttl).Result()
	if err != nil {
		return fmt.Errorf("touch session: %w: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// ActiveIDs returns live session IDs in sorted order. Index entries whose
// records expired are removed as they are discovered.
func (r *RedisStore) ActiveIDs(ctx context.Context) ([]string, error) {
	if err := r.checkClosed(); err != nil {
		return nil, err
	}

	ids, err := r.client.SMembers(ctx, r.activeIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w: %w", ErrStoreUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		exists, err := r.client.Exists(ctx, r.sessionKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w: %w", ErrStoreUnavailable, err)
		}
		if exists == 0 {
			// Record expired; drop the stale index entry.
			r.client.SRem(ctx, r.activeIndexKey(), id)
			continue
		}
		live = append(live, id)
	}

	sort.Strings(live)
	return live, nil
}

// Ping checks if the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.checkClosed(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

// Close releases resources held by the store.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	return r.client.Close()
}
