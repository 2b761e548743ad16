// Package adapter implements the shared resilience runtime every outbound
// integration is built on: token-bucket rate limiting, circuit breaking,
// retry with jittered backoff, typed TTL caching, and mandatory
// source-citation attachment.
package adapter

import (
	"fmt"
	"time"
)

// RateLimitError is returned in non-blocking mode when no token is available.
type RateLimitError struct {
	Adapter string
	Wait    time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("adapter %s: rate limit exceeded, retry in %v", e.Adapter, e.Wait)
}

// CircuitOpenError is returned while the breaker rejects calls.
type CircuitOpenError struct {
	Adapter   string
	RecoverIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("adapter %s: circuit open, recovery in %v", e.Adapter, e.RecoverIn)
}

// RetryExhaustedError wraps the last error after the retry budget is spent.
type RetryExhaustedError struct {
	Adapter  string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("adapter %s: %d attempts exhausted: %v", e.Adapter, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// UpstreamError carries an HTTP-level failure from the origin.
type UpstreamError struct {
	Adapter    string
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("adapter %s: upstream status %d: %s", e.Adapter, e.StatusCode, truncate(e.Body, 200))
}

// CitationMissingError signals a P0 violation: a response was produced
// without a citation attached. Defensive; never retried.
type CitationMissingError struct {
	Adapter  string
	Endpoint string
}

func (e *CitationMissingError) Error() string {
	return fmt.Sprintf("adapter %s: response for %s has no source citation", e.Adapter, e.Endpoint)
}

// ParseError marks a parse failure of an otherwise successful response.
// Parse failures are non-retryable.
type ParseError struct {
	Adapter string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("adapter %s: parse failed: %v", e.Adapter, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
