package kvs_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitflow/resilience/pkg/resilience/kvs"
)

// redisAddr returns the test Redis address, skipping the test when no
// instance is reachable in this environment.
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("RESILIENCE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RESILIENCE_TEST_REDIS_ADDR not set, skipping redis-backed test")
	}
	return addr
}

func newTestRedisStore(t *testing.T) *kvs.RedisStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := kvs.NewRedisStore(ctx, kvs.RedisOptions{
		Addr:        redisAddr(t),
		DialTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	key := "resilience-test:set-get-delete"
	require.NoError(t, store.Set(ctx, key, []byte("value"), time.Minute))

	val, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), val)

	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, kvs.ErrNotFound)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	key := "resilience-test:ttl-expiry"
	require.NoError(t, store.Set(ctx, key, []byte("v"), 50*time.Millisecond))
	time.Sleep(200 * time.Millisecond)

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, kvs.ErrNotFound)
}

func TestRedisStore_MissingKey(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "resilience-test:does-not-exist")
	assert.ErrorIs(t, err, kvs.ErrNotFound)
}

func TestRedisStore_NewRedisStoreFromClient(t *testing.T) {
	addr := redisAddr(t)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	store := kvs.NewRedisStoreFromClient(client)
	ctx := context.Background()

	key := "resilience-test:from-client"
	require.NoError(t, store.Set(ctx, key, []byte("shared"), time.Minute))

	val, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), val)

	require.NoError(t, store.Delete(ctx, key))
}
