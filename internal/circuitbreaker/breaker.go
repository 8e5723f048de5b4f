// Package circuitbreaker tracks consecutive delivery failures per
// partner webhook URL and refuses to dial endpoints that keep failing
// until a cooldown elapses.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type endpointState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker is safe for concurrent use by all worker slots.
type CircuitBreaker struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

// New creates a breaker that opens an endpoint after threshold
// consecutive failures and probes it again after cooldown.
func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		endpoints: make(map[string]*endpointState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Allow reports whether the endpoint may be dialed. After the cooldown
// a single probe call is let through; its outcome decides whether the
// circuit closes again.
func (cb *CircuitBreaker) Allow(url string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ep, ok := cb.endpoints[url]
	if !ok {
		return nil
	}

	switch ep.state {
	case stateOpen:
		if cb.clock().Sub(ep.openedAt) >= cb.cooldown {
			ep.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		// A probe is already in flight.
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the endpoint's circuit and resets its failure run.
func (cb *CircuitBreaker) RecordSuccess(url string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ep, ok := cb.endpoints[url]
	if !ok {
		return
	}
	ep.state = stateClosed
	ep.consecutiveFailures = 0
}

// RecordFailure extends the endpoint's failure run, opening the circuit
// once it reaches the threshold.
func (cb *CircuitBreaker) RecordFailure(url string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ep, ok := cb.endpoints[url]
	if !ok {
		ep = &endpointState{}
		cb.endpoints[url] = ep
	}

	ep.consecutiveFailures++
	if ep.consecutiveFailures >= cb.threshold {
		ep.state = stateOpen
		ep.openedAt = cb.clock()
	}
}
