package adapter

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/metrics"
)

// RawResponse is what a source's Do strategy hands back: the wire-level
// outcome before parsing.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// Strategies are the three functions a concrete source supplies. The runtime
// owns everything else: limits, breaker, retry, cache, citation, metrics.
type Strategies struct {
	// Do performs the upstream request for an endpoint and params.
	Do func(ctx context.Context, endpoint string, params map[string]string) (*RawResponse, error)
	// Parse turns a successful body into the typed payload. Parse failures
	// are non-retryable.
	Parse func(endpoint string, body []byte) (any, error)
	// SourceURL builds the public provenance URL recorded on the citation.
	SourceURL func(endpoint string, params map[string]string) string
}

// Config tunes one adapter instance.
type Config struct {
	Name              string
	SourceType        citation.SourceType
	APIVersion        string
	CallTimeout       time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	RetryableStatuses map[int]bool
	DefaultTTL        time.Duration
	EndpointTTLs      map[string]time.Duration
	CostPerCallUSD    float64
	DefaultConfidence float64
}

// DefaultRetryableStatuses is the server-side status set worth retrying.
func DefaultRetryableStatuses() map[int]bool {
	return map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}
}

// SourcedResponse is the runtime's uniform return envelope. The citation is
// attached by the runtime itself; subclass strategies cannot omit it.
type SourcedResponse struct {
	Value     any                      `json:"value"`
	Citation  *citation.SourceCitation `json:"citation"`
	Cached    bool                     `json:"cached"`
	LatencyMS int64                    `json:"latency_ms"`
	CostUSD   float64                  `json:"cost_usd"`
}

// CallOptions select per-call behavior.
type CallOptions struct {
	BypassCache     bool
	BypassRateLimit bool
}

type bypassCacheKey struct{}

// WithBypassCache marks every call under ctx as cache-bypassing. The job
// layer uses it to force refresh without threading options through each
// module.
func WithBypassCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassCacheKey{}, true)
}

func bypassCacheFrom(ctx context.Context) bool {
	v, _ := ctx.Value(bypassCacheKey{}).(bool)
	return v
}

// Health is the adapter health snapshot served to operators.
type Health struct {
	Name            string       `json:"name"`
	Healthy         bool         `json:"healthy"`
	CircuitState    CircuitState `json:"circuit_state"`
	SuccessRate     float64      `json:"success_rate"`
	AvailableTokens float64      `json:"available_tokens"`
	CacheSize       int          `json:"cache_size"`
	LastError       string       `json:"last_error,omitempty"`
}

// Runtime fronts one upstream source with the full resilience stack.
type Runtime struct {
	config     Config
	strategies Strategies
	limiter    Limiter
	breaker    *CircuitBreaker
	cache      Store
	metrics    *Metrics
	inst       *metrics.Instruments
}

// NewRuntime assembles an adapter. A nil limiter disables rate limiting, a
// nil cache store falls back to an in-process MemoryCache, and nil
// instruments fall back to the process default.
func NewRuntime(config Config, strategies Strategies, limiter Limiter, cache Store, inst *metrics.Instruments) *Runtime {
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = 250 * time.Millisecond
	}
	if config.RetryableStatuses == nil {
		config.RetryableStatuses = DefaultRetryableStatuses()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}
	if config.DefaultConfidence <= 0 || config.DefaultConfidence > 1 {
		config.DefaultConfidence = 0.9
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if inst == nil {
		inst = metrics.Default
	}
	return &Runtime{
		config:     config,
		strategies: strategies,
		limiter:    limiter,
		breaker:    NewCircuitBreaker(config.Name, DefaultCircuitConfig()),
		cache:      cache,
		metrics:    &Metrics{},
		inst:       inst,
	}
}

// Name returns the adapter name.
func (rt *Runtime) Name() string { return rt.config.Name }

// SourceType returns the citation source type the adapter emits.
func (rt *Runtime) SourceType() citation.SourceType { return rt.config.SourceType }

// Call performs a guarded call in non-blocking rate-limit mode: when no
// token is available it returns a RateLimitError with the computed wait.
func (rt *Runtime) Call(ctx context.Context, endpoint string, params map[string]string, opts CallOptions) (*SourcedResponse, error) {
	return rt.call(ctx, endpoint, params, opts, false)
}

// CallWaiting performs a guarded call that suspends on the rate limiter
// instead of failing fast. It never returns a RateLimitError.
func (rt *Runtime) CallWaiting(ctx context.Context, endpoint string, params map[string]string, opts CallOptions) (*SourcedResponse, error) {
	opts.BypassRateLimit = false
	return rt.call(ctx, endpoint, params, opts, true)
}

func (rt *Runtime) call(ctx context.Context, endpoint string, params map[string]string, opts CallOptions, waiting bool) (*SourcedResponse, error) {
	key := CacheKey(rt.config.Name, endpoint, params)

	// 1. Cache check.
	if !opts.BypassCache && !bypassCacheFrom(ctx) {
		if entry, ok := rt.cache.Get(ctx, key); ok {
			rt.metrics.recordCacheHit()
			rt.inst.CacheHits.WithLabelValues(rt.config.Name).Inc()
			wrapped, err := citation.NewCached(entry.Citation, key)
			if err != nil {
				return nil, &CitationMissingError{Adapter: rt.config.Name, Endpoint: endpoint}
			}
			return &SourcedResponse{
				Value:    entry.Value,
				Citation: wrapped,
				Cached:   true,
			}, nil
		}
		rt.metrics.recordCacheMiss()
		rt.inst.CacheMisses.WithLabelValues(rt.config.Name).Inc()
	}

	// 2. Rate limit gate.
	if rt.limiter != nil && !opts.BypassRateLimit {
		if waiting {
			if err := rt.limiter.AcquireWait(ctx); err != nil {
				return nil, err
			}
		} else if err := rt.limiter.Acquire(); err != nil {
			rt.metrics.recordRateLimited()
			rt.inst.ObserveAdapterCall(rt.config.Name, "rate_limited", 0)
			return nil, err
		}
	}

	// 3. Circuit breaker checkpoint.
	if err := rt.breaker.Allow(); err != nil {
		rt.metrics.recordCircuitReject()
		rt.inst.ObserveAdapterCall(rt.config.Name, "circuit_open", 0)
		return nil, err
	}

	// 4. Execute with retry.
	start := time.Now()
	value, err := rt.execute(ctx, endpoint, params)
	latency := time.Since(start)
	if err != nil {
		rt.breaker.RecordFailure()
		rt.metrics.recordFailure(err)
		rt.inst.ObserveAdapterCall(rt.config.Name, "failure", latency)
		return nil, err
	}

	// 5. Citation is owned by the runtime.
	sourceURL := rt.strategies.SourceURL(endpoint, params)
	cit, cerr := citation.New(rt.config.SourceType, sourceURL,
		citation.WithEndpoint(endpoint),
		citation.WithVersion(rt.config.APIVersion),
		citation.WithConfidence(rt.config.DefaultConfidence))
	if cerr != nil {
		rt.breaker.RecordFailure()
		rt.metrics.recordFailure(cerr)
		log.Error().Err(cerr).Str("adapter", rt.config.Name).Str("endpoint", endpoint).
			Msg("citation construction failed")
		return nil, &CitationMissingError{Adapter: rt.config.Name, Endpoint: endpoint}
	}

	// 6. Record and cache.
	rt.breaker.RecordSuccess()
	rt.metrics.recordSuccess(latency, rt.config.CostPerCallUSD)
	rt.inst.ObserveAdapterCall(rt.config.Name, "success", latency)

	rt.cache.Set(ctx, key, &CacheEntry{
		Value:      value,
		Citation:   cit,
		CachedAt:   time.Now(),
		TTLSeconds: int(rt.ttlFor(endpoint).Seconds()),
		CostUSD:    rt.config.CostPerCallUSD,
	})

	return &SourcedResponse{
		Value:     value,
		Citation:  cit,
		Cached:    false,
		LatencyMS: latency.Milliseconds(),
		CostUSD:   rt.config.CostPerCallUSD,
	}, nil
}

// execute runs the Do strategy under the per-call timeout with jittered
// exponential backoff between retryable failures. Cancelled calls are never
// retried.
func (rt *Runtime) execute(ctx context.Context, endpoint string, params map[string]string) (any, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= rt.config.MaxRetries; attempt++ {
		if attempt > 0 {
			rt.metrics.recordRetry()
			backoff := rt.backoff(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, rt.config.CallTimeout)
		resp, err := rt.strategies.Do(callCtx, endpoint, params)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Transport-level failures and per-call timeouts are retryable.
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			value, perr := rt.strategies.Parse(endpoint, resp.Body)
			if perr != nil {
				return nil, &ParseError{Adapter: rt.config.Name, Cause: perr}
			}
			return value, nil
		}

		upstream := &UpstreamError{
			Adapter:    rt.config.Name,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			Retryable:  rt.config.RetryableStatuses[resp.StatusCode],
		}
		if !upstream.Retryable {
			return nil, upstream
		}
		lastErr = upstream
	}

	return nil, &RetryExhaustedError{Adapter: rt.config.Name, Attempts: attempts, Last: lastErr}
}

// backoff computes base * 2^(attempt-1) with ±25% jitter, capped at 30s.
func (rt *Runtime) backoff(attempt int) time.Duration {
	backoff := rt.config.BackoffBase * time.Duration(1<<uint(attempt-1))
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/2+1)) - backoff/4
	return backoff + jitter
}

// ttlFor resolves the endpoint TTL, falling back to the adapter default.
func (rt *Runtime) ttlFor(endpoint string) time.Duration {
	if ttl, ok := rt.config.EndpointTTLs[endpoint]; ok {
		return ttl
	}
	return rt.config.DefaultTTL
}

// Health snapshots the adapter for the observability surface.
func (rt *Runtime) Health(ctx context.Context) Health {
	snap := rt.metrics.Snapshot()
	state := rt.breaker.State()
	var tokens float64
	if tb, ok := rt.limiter.(*TokenBucket); ok && tb != nil {
		tokens = tb.AvailableTokens()
	}
	return Health{
		Name:            rt.config.Name,
		Healthy:         state != CircuitOpen,
		CircuitState:    state,
		SuccessRate:     snap.SuccessRate,
		AvailableTokens: tokens,
		CacheSize:       rt.cache.Size(ctx),
		LastError:       snap.LastError,
	}
}

// Metrics returns the adapter metrics snapshot.
func (rt *Runtime) Metrics() MetricsSnapshot {
	return rt.metrics.Snapshot()
}

// Breaker exposes the breaker for tests and the scheduler's guardrails.
func (rt *Runtime) Breaker() *CircuitBreaker { return rt.breaker }

// IsRetryable classifies an adapter error kind for callers that implement
// their own retry policy on top.
func IsRetryable(err error) bool {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var parse *ParseError
	if errors.As(err, &parse) {
		return false
	}
	var missing *CitationMissingError
	return !errors.As(err, &missing)
}
