package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jaxron/axonet/pkg/client/logger"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/sony/gobreaker"
)

// errServerFault marks a 5xx response so the breaker counts it as a failure.
var errServerFault = errors.New("server fault")

// CircuitBreaker stops calling an upstream after repeated transport failures or 5xx responses.
// Client errors like 403 or 404 are answers, not faults, and never trip the breaker.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

var _ middleware.Middleware = (*CircuitBreaker)(nil)

// NewCircuitBreaker creates a circuit breaker that opens after maxFailures consecutive failures.
func NewCircuitBreaker(name string, maxRequests, maxFailures uint32, interval, timeout time.Duration) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 5
	}

	cb := &CircuitBreaker{logger: &logger.NoOpLogger{}}
	cb.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cb.logger.Warnf("Circuit breaker %s changed state from %s to %s", name, from, to)
		},
	})

	return cb
}

// Process forwards the request unless the circuit is open.
func (m *CircuitBreaker) Process(
	ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc,
) (*http.Response, error) {
	result, err := m.breaker.Execute(func() (any, error) {
		resp, err := next(ctx, httpClient, req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerFault
		}

		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}

	resp, _ := result.(*http.Response)
	if errors.Is(err, errServerFault) && resp != nil {
		return resp, nil
	}

	if err != nil {
		return nil, err
	}

	return resp, nil
}

// State returns the current breaker state.
func (m *CircuitBreaker) State() gobreaker.State {
	return m.breaker.State()
}

// SetLogger sets the logger for the middleware.
func (m *CircuitBreaker) SetLogger(l logger.Logger) {
	m.logger = l
}
