package graphview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger"
)

// BreakerSettings holds configuration for an endpoint circuit breaker.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the failure ratio that trips the breaker.
	FailureThreshold float64
	// MinRequests must be observed before the ratio is evaluated.
	MinRequests uint32
}

// DefaultBreakerSettings returns the settings used for graph endpoints.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Breaker guards the calls made to one graph endpoint. Unreachable servers
// and timeouts count as failures; query errors do not, since they are the
// caller's fault rather than the endpoint's.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker named after the endpoint it guards.
func NewBreaker(name string, s BreakerSettings) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "endpoint", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrQuery) || errors.Is(err, context.Canceled)
		},
	})
	return &Breaker{cb: cb}
}

// Do runs fn through the breaker. A rejected call wraps ErrConnection.
func (b *Breaker) Do(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, b.cb.Name(), err)
	}
	return out, err
}

// State returns the breaker state ("closed", "half-open" or "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Wrap returns a runner whose queries go through the breaker.
func (b *Breaker) Wrap(r QueryRunner) QueryRunner {
	return &breakerRunner{QueryRunner: r, breaker: b}
}

type breakerRunner struct {
	QueryRunner
	breaker *Breaker
}

func (r *breakerRunner) Run(ctx context.Context, query string, bindings map[string]interface{}) (any, error) {
	return r.breaker.Do(func() (any, error) {
		return r.QueryRunner.Run(ctx, query, bindings)
	})
}

// NeighborhoodQuery forwards to the wrapped runner when it can expand.
func (r *breakerRunner) NeighborhoodQuery(vertexID string) (string, map[string]interface{}, error) {
	exp, ok := r.QueryRunner.(Expander)
	if !ok {
		return "", nil, fmt.Errorf("runner %T cannot expand vertices", r.QueryRunner)
	}
	return exp.NeighborhoodQuery(vertexID)
}

func (r *breakerRunner) probeQuery() string {
	return probeQueryFor(r.QueryRunner)
}

//---

// BreakerSet hands out one Breaker per endpoint.
type BreakerSet struct {
	settings BreakerSettings
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty set; breakers are created on first use.
func NewBreakerSet(s BreakerSettings) *BreakerSet {
	return &BreakerSet{settings: s, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for endpoint, creating it if needed.
func (s *BreakerSet) For(endpoint string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[endpoint]
	if !ok {
		b = NewBreaker(endpoint, s.settings)
		s.breakers[endpoint] = b
	}
	return b
}
