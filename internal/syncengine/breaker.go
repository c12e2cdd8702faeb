package syncengine

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerRegistry keys a *gobreaker.CircuitBreaker per kind, so a
// storm of failures against one collection (e.g. a down "invoices"
// endpoint) doesn't also throttle a healthy one.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[Outcome]
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker[Outcome])}
}

func (r *breakerRegistry) forKind(kind string) *gobreaker.CircuitBreaker[Outcome] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[kind]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:        kind,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	r.breakers[kind] = b
	return b
}

// dispatch runs fn through the kind's breaker. A failing fn (any
// non-nil error, including one representing an OutcomeRetryableError)
// counts toward tripping the breaker; an open breaker short-circuits
// to ErrOpenState without invoking fn, which the drain cycle treats as
// an immediate retryable failure (spec §5: "unexpected error ...
// treated as retryable").
func (r *breakerRegistry) dispatch(ctx context.Context, kind string, fn func(context.Context) (Outcome, error)) (Outcome, error) {
	b := r.forKind(kind)
	return b.Execute(func() (Outcome, error) {
		out, err := fn(ctx)
		if err != nil {
			return out, err
		}
		if out.Kind == OutcomeRetryableError {
			return out, out.Err
		}
		return out, nil
	})
}
