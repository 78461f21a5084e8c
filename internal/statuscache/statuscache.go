// Package statuscache records the outcome of the most recent sync pass per
// kind so that every replica reports the same status.
package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is the last known outcome of one pass kind.
type Entry struct {
	Kind       string          `json:"kind"`
	RunID      string          `json:"run_id"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Cache stores Entries keyed by kind.
type Cache interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, kind string) (Entry, bool, error)
	All(ctx context.Context) ([]Entry, error)
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries[e.Kind] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, kind string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[kind]
	return e, ok, nil
}

func (m *Memory) All(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sortByKind(out)
	return out, nil
}

// DefaultKey is the Redis hash holding sync status.
const DefaultKey = "alarmdesk:sync:status"

// Redis stores entries as JSON fields of a single hash.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedis returns a Redis-backed cache. A zero ttl keeps entries forever.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

func (r *Redis) Put(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, e.Kind, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store status: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, kind string) (Entry, bool, error) {
	data, err := r.client.HGet(ctx, r.key, kind).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load status: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode status %s: %w", kind, err)
	}
	return e, true, nil
}

func (r *Redis) All(ctx context.Context) ([]Entry, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	out := make([]Entry, 0, len(fields))
	for kind, raw := range fields {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode status %s: %w", kind, err)
		}
		out = append(out, e)
	}
	sortByKind(out)
	return out, nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func sortByKind(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Kind, b.Kind) })
}
