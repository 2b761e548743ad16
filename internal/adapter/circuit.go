package adapter

import (
	"sync"
	"time"
)

// CircuitState is the breaker state machine position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitConfig tunes the breaker.
type CircuitConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`    // consecutive failures to trip
	RecoveryTimeout    time.Duration `yaml:"recovery_timeout"`     // open -> half-open delay
	HalfOpenProbeCount int           `yaml:"half_open_probe_count"` // concurrent probes allowed
	SuccessThreshold   int           `yaml:"success_threshold"`    // half-open successes to close
}

// DefaultCircuitConfig returns conservative breaker settings.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold:   5,
		RecoveryTimeout:    30 * time.Second,
		HalfOpenProbeCount: 2,
		SuccessThreshold:   2,
	}
}

// CircuitBreaker guards one upstream. Every transition happens inside a
// single critical section; Allow is the read-modify-write checkpoint.
type CircuitBreaker struct {
	name            string
	config          CircuitConfig
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int
	inFlightProbes  int
	lastFailureTime time.Time
	now             func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, config CircuitConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenProbeCount <= 0 {
		config.HalfOpenProbeCount = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// Allow decides whether a request may proceed. While open it returns a
// CircuitOpenError carrying the remaining recovery time; once the recovery
// window has elapsed the breaker moves to half-open and admits a bounded
// number of probes.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		elapsed := cb.now().Sub(cb.lastFailureTime)
		if elapsed < cb.config.RecoveryTimeout {
			return &CircuitOpenError{
				Adapter:   cb.name,
				RecoverIn: cb.config.RecoveryTimeout - elapsed,
			}
		}
		cb.state = CircuitHalfOpen
		cb.successCount = 0
		cb.inFlightProbes = 1
		return nil
	case CircuitHalfOpen:
		if cb.inFlightProbes >= cb.config.HalfOpenProbeCount {
			return &CircuitOpenError{Adapter: cb.name, RecoverIn: 0}
		}
		cb.inFlightProbes++
		return nil
	}
	return nil
}

// RecordSuccess feeds a successful call into the state machine. While closed,
// a success decrements the failure counter toward zero; recording successes
// against a clean closed breaker does not change state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	case CircuitHalfOpen:
		if cb.inFlightProbes > 0 {
			cb.inFlightProbes--
		}
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.inFlightProbes = 0
		}
	}
}

// RecordFailure feeds a failed call into the state machine.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()
	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successCount = 0
		cb.inFlightProbes = 0
	}
}

// State returns the current position without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a point-in-time breaker snapshot.
type CircuitStats struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	RecoverIn       time.Duration `json:"recover_in"`
}

// Stats snapshots the breaker.
func (cb *CircuitBreaker) Stats() CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var recoverIn time.Duration
	if cb.state == CircuitOpen {
		recoverIn = cb.config.RecoveryTimeout - cb.now().Sub(cb.lastFailureTime)
		if recoverIn < 0 {
			recoverIn = 0
		}
	}
	return CircuitStats{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		RecoverIn:       recoverIn,
	}
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.inFlightProbes = 0
}
