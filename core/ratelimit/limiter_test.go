package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"FMEdge/storage"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type brokenStore struct{ storage.Store }

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (brokenStore) Put(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func newLimiter(t *testing.T) (*Limiter, *clock, *storage.MemoryStore) {
	t.Helper()
	c := &clock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore().WithClock(c.Now)
	return New(store, WithClock(c.Now)), c, store
}

func TestSlidingWindow(t *testing.T) {
	l, c, _ := newLimiter(t)
	ctx := context.Background()

	var got []bool
	for i := 0; i < 4; i++ {
		got = append(got, l.Admit(ctx, "1.2.3.4", "search", 3, time.Minute).Allowed)
		c.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, []bool{true, true, true, false}, got)

	c.Advance(61 * time.Second)
	assert.True(t, l.Admit(ctx, "1.2.3.4", "search", 3, time.Minute).Allowed)
}

func TestRetryAfter(t *testing.T) {
	l, c, _ := newLimiter(t)
	ctx := context.Background()

	require.True(t, l.Admit(ctx, "a", "track", 1, time.Minute).Allowed)
	c.Advance(20 * time.Second)

	d := l.Admit(ctx, "a", "track", 1, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, 40, d.RetryAfter)

	c.Advance(39*time.Second + 900*time.Millisecond)
	d = l.Admit(ctx, "a", "track", 1, time.Minute)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfter)
}

func TestBucketsAndClientsAreIndependent(t *testing.T) {
	l, _, _ := newLimiter(t)
	ctx := context.Background()

	require.True(t, l.Admit(ctx, "a", "search", 1, time.Minute).Allowed)
	assert.False(t, l.Admit(ctx, "a", "search", 1, time.Minute).Allowed)
	assert.True(t, l.Admit(ctx, "b", "search", 1, time.Minute).Allowed)
	assert.True(t, l.Admit(ctx, "a", "stream", 1, time.Minute).Allowed)
}

func TestStoredStateIsBounded(t *testing.T) {
	l, c, store := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.Admit(ctx, "a", "search", 3, time.Minute)
		c.Advance(time.Second)
	}
	raw, ok, err := store.Get(ctx, Key("search", "a"))
	require.NoError(t, err)
	require.True(t, ok)

	var w window
	require.NoError(t, json.Unmarshal([]byte(raw), &w))
	assert.LessOrEqual(t, len(w.Points), 3)
}

func TestFailOpen(t *testing.T) {
	l := New(brokenStore{})
	for i := 0; i < 5; i++ {
		assert.True(t, l.Admit(context.Background(), "a", "search", 1, time.Minute).Allowed)
	}
}

func TestCorruptStateResets(t *testing.T) {
	l, _, store := newLimiter(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Key("search", "a"), "not json", time.Minute))

	assert.True(t, l.Admit(ctx, "a", "search", 1, time.Minute).Allowed)
	assert.False(t, l.Admit(ctx, "a", "search", 1, time.Minute).Allowed)
}

// 读改写不加锁：并发请求可能超出额度，但放行数不会少于额度。
func TestConcurrentAdmissionIsApproximate(t *testing.T) {
	l, _, _ := newLimiter(t)
	ctx := context.Background()

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit(ctx, "a", "search", 5, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, allowed, 5)
}

func TestClientIdentity(t *testing.T) {
	r := httptest.NewRequest("GET", "/search", nil)
	assert.Equal(t, UnknownClient, ClientIdentity(r))

	r.Header.Set("X-Real-IP", "10.0.0.3")
	assert.Equal(t, "10.0.0.3", ClientIdentity(r))

	r.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIdentity(r))

	r.Header.Set("CF-Connecting-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIdentity(r))
}
