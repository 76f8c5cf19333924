// Package resilience provides fault-tolerance patterns for the upstream bank
// API: circuit breaker and bulkhead. Nothing here retries on its own; a
// retry is always a caller-initiated refetch or resubmission.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/bankdash-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
)

// Config holds resilience parameters.
type Config struct {
	MaxConcurrency      int
	BreakerTimeout      time.Duration // open -> half-open
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:      50,
		BreakerTimeout:      10 * time.Second,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.6,
	}
}

// NewCircuitBreaker creates a circuit breaker that only counts network-level
// failures. An HTTP error status is an answer from a live server and never
// trips the breaker.
func NewCircuitBreaker(name string, cfg Config) *gobreaker.CircuitBreaker {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		IsSuccessful: IsAnswered,
	})
}

// IsAnswered reports whether err still means the server answered.
func IsAnswered(err error) bool {
	if err == nil {
		return true
	}
	var te *domain.ErrTransport
	return errors.As(err, &te) && te.StatusCode != 0
}

// IsOpen reports whether err was produced by an open or saturated breaker.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}
