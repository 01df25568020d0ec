package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jaxron/axonet/pkg/client/logger"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/redis/rueidis"
	"github.com/robalyx/bgcheck/pkg/utils"
	"golang.org/x/time/rate"
)

const (
	// RateLimitKeyPrefix is the prefix for the rate limit keys in Redis.
	RateLimitKeyPrefix = "ratelimit"

	// RateLimitWaitTime is the fixed wait time between capacity checks.
	RateLimitWaitTime = 100 * time.Millisecond
)

// slidingWindowScript increments the current one-second window when the weighted count
// of the current and previous windows is under the limit.
var slidingWindowScript = rueidis.NewLuaScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or 0)
	local last = tonumber(redis.call('GET', KEYS[2]) or 0)
	local weight = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])

	if (last * weight) + current >= limit then
		return 0
	end

	redis.call('INCR', KEYS[1])
	redis.call('EXPIRE', KEYS[1], 2)

	return 1
`)

// RateLimiter implements a distributed sliding-window rate limit shared by every process
// talking to the same upstream.
type RateLimiter struct {
	client            rueidis.Client
	keyPrefix         string
	requestsPerSecond float64
	now               func() time.Time
	logger            logger.Logger
}

var _ middleware.Middleware = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter for the named upstream.
// The upstream is a hash tag so both window keys of the script map to the same cluster slot.
func NewRateLimiter(client rueidis.Client, upstream string, requestsPerSecond float64) *RateLimiter {
	return &RateLimiter{
		client:            client,
		keyPrefix:         fmt.Sprintf("%s:{%s}", RateLimitKeyPrefix, upstream),
		requestsPerSecond: requestsPerSecond,
		now:               time.Now,
		logger:            &logger.NoOpLogger{},
	}
}

// Process waits for capacity before passing the request to the next middleware.
func (m *RateLimiter) Process(
	ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc,
) (*http.Response, error) {
	for {
		allowed, err := m.TryAcquire(ctx)
		if err != nil {
			// Redis being unavailable must not stall pricing entirely
			m.logger.WithFields(logger.String("error", err.Error())).Warn("Rate limiter unavailable, passing request")
			return next(ctx, httpClient, req)
		}

		if allowed {
			return next(ctx, httpClient, req)
		}

		if utils.ContextSleep(ctx, RateLimitWaitTime) == utils.SleepCancelled {
			return nil, ctx.Err()
		}
	}
}

// TryAcquire attempts to take one request from the current window.
func (m *RateLimiter) TryAcquire(ctx context.Context) (bool, error) {
	now := m.now().UTC()
	currentKey := fmt.Sprintf("%s:%d", m.keyPrefix, now.Unix())
	lastKey := fmt.Sprintf("%s:%d", m.keyPrefix, now.Unix()-1)

	// Weight of the previous window decays as the current second progresses
	weight := 1.0 - float64(now.Nanosecond())/float64(time.Second)

	allowed, err := slidingWindowScript.Exec(ctx, m.client,
		[]string{currentKey, lastKey},
		[]string{fmt.Sprintf("%.6f", weight), fmt.Sprintf("%.6f", m.requestsPerSecond)},
	).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return allowed == 1, nil
}

// SetLogger sets the logger for the middleware.
func (m *RateLimiter) SetLogger(l logger.Logger) {
	m.logger = l
}

// LocalLimiter paces requests within one process.
type LocalLimiter struct {
	limiter *rate.Limiter
	logger  logger.Logger
}

var _ middleware.Middleware = (*LocalLimiter)(nil)

// NewLocalLimiter creates a token bucket limiter allowing requestsPerSecond with a burst of one.
func NewLocalLimiter(requestsPerSecond float64) *LocalLimiter {
	return &LocalLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  &logger.NoOpLogger{},
	}
}

// Process waits for a token before passing the request to the next middleware.
func (m *LocalLimiter) Process(
	ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc,
) (*http.Response, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return next(ctx, httpClient, req)
}

// SetLogger sets the logger for the middleware.
func (m *LocalLimiter) SetLogger(l logger.Logger) {
	m.logger = l
}
