package adapter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket rate-limits one adapter. It wraps x/time/rate so sustained
// throughput never exceeds the refill rate while bursts up to the bucket
// capacity pass immediately.
type TokenBucket struct {
	name    string
	limiter *rate.Limiter
}

// NewTokenBucket creates a bucket refilling at tokensPerSecond with the given
// burst capacity.
func NewTokenBucket(name string, tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 1.0
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(tokensPerSecond), burst),
	}
}

// Acquire takes one token without blocking. When no token is available it
// returns a RateLimitError carrying the computed wait.
func (tb *TokenBucket) Acquire() error {
	r := tb.limiter.Reserve()
	if !r.OK() {
		return &RateLimitError{Adapter: tb.name, Wait: time.Second}
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return &RateLimitError{Adapter: tb.name, Wait: delay}
	}
	return nil
}

// AcquireWait suspends until a token is available or the context is done.
func (tb *TokenBucket) AcquireWait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// AvailableTokens returns the tokens immediately available.
func (tb *TokenBucket) AvailableTokens() float64 {
	return tb.limiter.Tokens()
}

// Rate returns the sustained refill rate in tokens per second.
func (tb *TokenBucket) Rate() float64 {
	return float64(tb.limiter.Limit())
}

// SlidingWindow rate-limits strictly per-minute APIs: a request is admitted
// iff fewer than limit requests happened inside the window.
type SlidingWindow struct {
	name   string
	limit  int
	window time.Duration
	mu     sync.Mutex
	stamps []time.Time
	now    func() time.Time
}

// NewSlidingWindow creates a window limiter admitting limit requests per window.
func NewSlidingWindow(name string, limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{name: name, limit: limit, window: window, now: time.Now}
}

// Acquire admits the request or returns a RateLimitError with the time until
// the oldest stamp falls out of the window.
func (sw *SlidingWindow) Acquire() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.evict(now)
	if len(sw.stamps) < sw.limit {
		sw.stamps = append(sw.stamps, now)
		return nil
	}
	wait := sw.stamps[0].Add(sw.window).Sub(now)
	return &RateLimitError{Adapter: sw.name, Wait: wait}
}

// AcquireWait suspends until admission or context cancellation.
func (sw *SlidingWindow) AcquireWait(ctx context.Context) error {
	for {
		err := sw.Acquire()
		if err == nil {
			return nil
		}
		rlErr, ok := err.(*RateLimitError)
		if !ok {
			return err
		}
		timer := time.NewTimer(rlErr.Wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// evict drops stamps older than the window. Callers hold the mutex.
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.stamps) && !sw.stamps[i].After(cutoff) {
		i++
	}
	sw.stamps = sw.stamps[i:]
}

// InFlight returns the number of requests currently counted in the window.
func (sw *SlidingWindow) InFlight() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.evict(sw.now())
	return len(sw.stamps)
}

// Limiter is the admission interface shared by both limiter kinds.
type Limiter interface {
	Acquire() error
	AcquireWait(ctx context.Context) error
}

// LimiterRegistry holds one limiter per adapter name. Built at startup and
// read-only afterwards from the runtime's perspective.
type LimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
}

// NewLimiterRegistry creates an empty registry.
func NewLimiterRegistry() *LimiterRegistry {
	return &LimiterRegistry{limiters: make(map[string]Limiter)}
}

// Register installs a limiter for the adapter name.
func (r *LimiterRegistry) Register(name string, l Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[name] = l
}

// Get returns the limiter for the adapter, or nil when unconfigured.
func (r *LimiterRegistry) Get(name string) Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[name]
}
