package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	counts  map[string]int64
	expired map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int64{}, expired: map[string]time.Duration{}}
}

func (f *fakeStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(_ context.Context, key string, _ any, _ time.Duration) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(_ context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.counts[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.counts[key] = 1
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeStore) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expired[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.counts, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestFixedWindowAllow(t *testing.T) {
	store := newFakeStore()
	client := &Client{store: store}

	for i := 0; i < 5; i++ {
		allowed, count, err := client.FixedWindowAllow(context.Background(), "checkout:abc", 5, 15*time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
		require.EqualValues(t, i+1, count)
	}

	allowed, count, err := client.FixedWindowAllow(context.Background(), "checkout:abc", 5, 15*time.Minute)
	require.NoError(t, err)
	require.False(t, allowed, "6th attempt within the window must be rejected")
	require.EqualValues(t, 6, count)
}

func TestIncrWithTTLStampsWindowOnce(t *testing.T) {
	store := newFakeStore()
	client := &Client{store: store}

	key := client.RateLimitKey("checkout:xyz")
	_, err := client.IncrWithTTL(context.Background(), key, time.Minute)
	require.NoError(t, err)
	require.Contains(t, store.expired, key)

	delete(store.expired, key)
	_, err = client.IncrWithTTL(context.Background(), key, time.Minute)
	require.NoError(t, err)
	require.NotContains(t, store.expired, key, "TTL must only be stamped on the first increment")
}

func TestKeyNamespaces(t *testing.T) {
	client := &Client{}
	require.Equal(t, "tg:idempotency:xendit:evt-1", client.IdempotencyKey("xendit", "evt-1"))
	require.Equal(t, "tg:rate_limit:checkout:abc", client.RateLimitKey("checkout:abc"))
	require.Equal(t, "tg:otp:ana@example.com", client.OTPKey("  Ana@Example.com "))
}
