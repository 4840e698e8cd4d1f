package storage

import (
	"context"
	"testing"
	"time"

	"FMEdge/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "search:gd:1:10:love", `{"count":0}`, time.Minute))
	require.NoError(t, s.Put(ctx, "forever", "x", 0))

	v, ok, err := s.Get(ctx, "search:gd:1:10:love")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"count":0}`, v)

	now = now.Add(time.Minute)
	_, ok, err = s.Get(ctx, "search:gd:1:10:love")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = s.Get(ctx, "forever")
	assert.True(t, ok)

	_, ok, _ = s.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	ctx := context.Background()

	assert.ErrorIs(t, s.Put(ctx, "k", "v", time.Second), ErrClosed)
	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	_, ok, err := s.Get(ctx, "track:gd:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "track:gd:1", `{"id":"1"}`, 10*time.Second))
	v, ok, err := s.Get(ctx, "track:gd:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, v)
	assert.Equal(t, 10*time.Second, mr.TTL("track:gd:1"))

	mr.FastForward(11 * time.Second)
	_, ok, err = s.Get(ctx, "track:gd:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer s.Close()
	mr.Close()

	_, _, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestOpenBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	s, err := Open(ctx, &config.Config{KVBackend: BackendRedis, RedisHost: mr.Host(), RedisPort: mr.Port()})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, &config.Config{KVBackend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(ctx, &config.Config{KVBackend: "etcd"})
	assert.Error(t, err)
}

func TestObjectNameRoundTrip(t *testing.T) {
	key := "search:gd+kuwo:1:10:love song/remix"
	name := ObjectName(key)
	assert.NotContains(t, name[len(kvPrefix):], "/")

	got, ok := KeyFromObject(name)
	require.True(t, ok)
	assert.Equal(t, key, got)

	_, ok = KeyFromObject("other/x")
	assert.False(t, ok)
}

func TestEnvelopeExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	data, err := encodeEnvelope("v", time.Second, now)
	require.NoError(t, err)

	e, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "v", e.Value)
	assert.False(t, e.expired(now))
	assert.True(t, e.expired(now.Add(time.Second)))

	data, err = encodeEnvelope("v", 0, now)
	require.NoError(t, err)
	e, err = decodeEnvelope(data)
	require.NoError(t, err)
	assert.False(t, e.expired(now.Add(24*time.Hour)))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2.0 MB", FormatSize(2*1024*1024))
}
