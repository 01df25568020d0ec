package fetch

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupLimiter(t *testing.T, requestsPerSecond float64) (*RateLimiter, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	limiter := NewRateLimiter(client, "economy", requestsPerSecond)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return limiter, cleanup
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	t.Parallel()

	limiter, cleanup := setupLimiter(t, 2)
	defer cleanup()

	ctx := t.Context()
	now := time.Date(2024, 1, 1, 0, 0, 0, int(500*time.Millisecond), time.UTC)
	limiter.now = func() time.Time { return now }

	for range 2 {
		allowed, err := limiter.TryAcquire(ctx)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Half of the previous window still counts
	now = now.Add(time.Second)

	allowed, err = limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRateLimiterWindowKeysShareHashTag(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	defer client.Close()

	limiter := NewRateLimiter(client, "economy", 5)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.NotPanics(t, func() {
		allowed, err := limiter.TryAcquire(t.Context())
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	assert.Equal(t, []string{fmt.Sprintf("ratelimit:{economy}:%d", now.Unix())}, mr.Keys())
}

func TestRateLimiterKeysArePerUpstream(t *testing.T) {
	t.Parallel()

	limiter, cleanup := setupLimiter(t, 1)
	defer cleanup()

	ctx := t.Context()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	other := NewRateLimiter(limiter.client, "resale", 1)
	other.now = limiter.now

	allowed, err := limiter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = other.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiterMiddleware(t *testing.T) {
	t.Parallel()

	limiter, cleanup := setupLimiter(t, 100)
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New("test", PrimaryPolicy(), zaptest.NewLogger(t), WithMiddleware(limiter, NewLocalLimiter(1000)))

	for range 3 {
		resp, err := client.Do(t.Context(), &Request{URL: server.URL})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestLinearBackOff(t *testing.T) {
	t.Parallel()

	b := newLinearBackOff(Policy{BaseDelay: 2 * time.Second, MaxDelay: 5 * time.Second})

	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 5*time.Second, b.NextBackOff())

	b.useHint(time.Second)
	assert.Equal(t, time.Second, b.NextBackOff())

	b.useHint(time.Minute)
	assert.Equal(t, 5*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, 2*time.Second, b.NextBackOff())
}
