package client

import (
	"time"

	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/robalyx/bgcheck/internal/fetch"
	"github.com/robalyx/bgcheck/internal/redis"
	"github.com/robalyx/bgcheck/internal/setup/config"
	"go.uber.org/zap"
)

const (
	// DefaultPricingRequestsPerSecond applies when no pricing budget is configured.
	DefaultPricingRequestsPerSecond = 10

	// DefaultPricingCacheTTL applies when no pricing cache lifetime is configured.
	DefaultPricingCacheTTL = time.Hour
)

// Clients are the fetch clients shared by every background check.
type Clients struct {
	// Primary serves identity, profile, membership and inventory calls.
	Primary *fetch.Client
	// Pricing serves economy calls under a shared request budget.
	Pricing *fetch.Client
}

// NewClients constructs the fetch clients with their middleware chains.
// The pricing budget and response cache are kept in Redis when configured so concurrent
// runs share them.
func NewClients(cfg *config.Config, redisManager *redis.Manager, zapLogger *zap.Logger) *Clients {
	primaryPolicy := policyFromConfig(cfg.Fetch.Primary, fetch.PrimaryPolicy())
	pricingPolicy := policyFromConfig(cfg.Fetch.Secondary, fetch.SecondaryPolicy())

	// Build middleware chains - order matters!
	var primaryMiddlewares, pricingMiddlewares []middleware.Middleware

	if cfg.CircuitBreaker.Enabled {
		primaryMiddlewares = append(primaryMiddlewares, newBreaker("primary", &cfg.CircuitBreaker))
		pricingMiddlewares = append(pricingMiddlewares, newBreaker("pricing", &cfg.CircuitBreaker))
	}

	primaryMiddlewares = append(primaryMiddlewares, fetch.NewCoalescer())
	pricingMiddlewares = append(pricingMiddlewares, fetch.NewCoalescer())

	// Cache hits skip the pricing budget
	if cache := newPricingCache(cfg.Fetch.PricingCacheTTL, redisManager, zapLogger); cache != nil {
		pricingMiddlewares = append(pricingMiddlewares, cache)
	}

	pricingMiddlewares = append(pricingMiddlewares,
		newPricingLimiter(cfg.Fetch.PricingRequestsPerSecond, redisManager, zapLogger))

	return &Clients{
		Primary: fetch.New("primary", primaryPolicy, zapLogger, fetch.WithMiddleware(primaryMiddlewares...)),
		Pricing: fetch.New("pricing", pricingPolicy, zapLogger, fetch.WithMiddleware(pricingMiddlewares...)),
	}
}

// policyFromConfig overrides the preset with every configured value.
func policyFromConfig(cfg config.RetryPolicy, preset fetch.Policy) fetch.Policy {
	policy := preset

	if cfg.MaxRetries != nil {
		policy.MaxRetries = *cfg.MaxRetries
	}
	if cfg.Delay > 0 {
		policy.BaseDelay = config.Duration(cfg.Delay)
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = config.Duration(cfg.MaxDelay)
	}
	if cfg.Timeout > 0 {
		policy.DefaultTimeout = config.Duration(cfg.Timeout)
	}

	return policy
}

func newBreaker(name string, cfg *config.CircuitBreaker) *fetch.CircuitBreaker {
	return fetch.NewCircuitBreaker(name,
		max(cfg.MaxRequests, 1),
		max(cfg.MaxFailures, 1),
		config.Duration(cfg.Interval),
		config.Duration(cfg.Timeout),
	)
}

// newPricingCache returns the Redis response cache, or nil when Redis is unavailable.
func newPricingCache(ttl int, redisManager *redis.Manager, zapLogger *zap.Logger) middleware.Middleware {
	if redisManager == nil || !redisManager.Enabled() {
		return nil
	}

	cacheClient, err := redisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		zapLogger.Warn("Pricing responses will not be cached", zap.Error(err))
		return nil
	}

	expiration := DefaultPricingCacheTTL
	if ttl > 0 {
		expiration = config.Duration(ttl)
	}

	return fetch.NewResponseCache(cacheClient, expiration)
}

// newPricingLimiter returns the Redis limiter, or an in-process one when Redis is unavailable.
func newPricingLimiter(
	requestsPerSecond float64, redisManager *redis.Manager, zapLogger *zap.Logger,
) middleware.Middleware {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultPricingRequestsPerSecond
	}

	if redisManager != nil && redisManager.Enabled() {
		ratelimitClient, err := redisManager.GetClient(redis.RatelimitDBIndex)
		if err == nil {
			return fetch.NewRateLimiter(ratelimitClient, "economy", requestsPerSecond)
		}

		zapLogger.Warn("Falling back to local pricing rate limiter", zap.Error(err))
	}

	return fetch.NewLocalLimiter(requestsPerSecond)
}
