package statuscache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caches(t *testing.T) map[string]Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Cache{
		"memory": NewMemory(),
		"redis":  NewRedis(client, "", 0),
	}
}

func TestCache_PutGetAll(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := c.Get(ctx, "alarms")
			require.NoError(t, err)
			assert.False(t, ok)

			finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, c.Put(ctx, Entry{
				Kind:       "equipment",
				RunID:      "run-1",
				Outcome:    OutcomeSuccess,
				Result:     json.RawMessage(`{"synced":2}`),
				FinishedAt: finished,
			}))
			require.NoError(t, c.Put(ctx, Entry{
				Kind:       "alarms",
				RunID:      "run-2",
				Outcome:    OutcomeFailure,
				Error:      "list events: upstream down",
				FinishedAt: finished,
			}))

			got, ok, err := c.Get(ctx, "equipment")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "run-1", got.RunID)
			assert.JSONEq(t, `{"synced":2}`, string(got.Result))
			assert.True(t, finished.Equal(got.FinishedAt))

			all, err := c.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "alarms", all[0].Kind)
			assert.Equal(t, OutcomeFailure, all[0].Outcome)
			assert.Equal(t, "equipment", all[1].Kind)
		})
	}
}

func TestCache_PutOverwrites(t *testing.T) {
	for name, c := range caches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, c.Put(ctx, Entry{Kind: "alarms", Outcome: OutcomeFailure}))
			require.NoError(t, c.Put(ctx, Entry{Kind: "alarms", Outcome: OutcomeSuccess}))

			got, ok, err := c.Get(ctx, "alarms")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, OutcomeSuccess, got.Outcome)
		})
	}
}

func TestRedis_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedis(client, "test:status", time.Minute)
	require.NoError(t, c.Put(context.Background(), Entry{Kind: "equipment"}))
	require.NoError(t, c.Ping(context.Background()))

	assert.Equal(t, time.Minute, mr.TTL("test:status"))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(context.Background(), "equipment")
	require.NoError(t, err)
	assert.False(t, ok)
}
