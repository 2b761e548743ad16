package adapter

import (
	"sync"
	"time"
)

// Metrics accumulates per-adapter call accounting.
type Metrics struct {
	mu             sync.Mutex
	calls          int64
	successes      int64
	failures       int64
	cacheHits      int64
	cacheMisses    int64
	retries        int64
	rateLimited    int64
	circuitRejects int64
	totalLatency   time.Duration
	totalCostUSD   float64
	lastError      string
	lastErrorAt    time.Time
	lastSuccessAt  time.Time
}

// MetricsSnapshot is the read-only view handed to callers.
type MetricsSnapshot struct {
	Calls          int64         `json:"calls"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	CacheHits      int64         `json:"cache_hits"`
	CacheMisses    int64         `json:"cache_misses"`
	Retries        int64         `json:"retries"`
	RateLimited    int64         `json:"rate_limited"`
	CircuitRejects int64         `json:"circuit_rejects"`
	SuccessRate    float64       `json:"success_rate"`
	CacheHitRate   float64       `json:"cache_hit_rate"`
	AvgLatency     time.Duration `json:"avg_latency"`
	TotalCostUSD   float64       `json:"total_cost_usd"`
	LastError      string        `json:"last_error,omitempty"`
	LastErrorAt    time.Time     `json:"last_error_at"`
	LastSuccessAt  time.Time     `json:"last_success_at"`
}

func (m *Metrics) recordSuccess(latency time.Duration, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.successes++
	m.totalLatency += latency
	m.totalCostUSD += cost
	m.lastSuccessAt = time.Now()
}

func (m *Metrics) recordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.failures++
	if err != nil {
		m.lastError = err.Error()
	}
	m.lastErrorAt = time.Now()
}

func (m *Metrics) recordCacheHit()      { m.mu.Lock(); m.cacheHits++; m.mu.Unlock() }
func (m *Metrics) recordCacheMiss()     { m.mu.Lock(); m.cacheMisses++; m.mu.Unlock() }
func (m *Metrics) recordRetry()         { m.mu.Lock(); m.retries++; m.mu.Unlock() }
func (m *Metrics) recordRateLimited()   { m.mu.Lock(); m.rateLimited++; m.mu.Unlock() }
func (m *Metrics) recordCircuitReject() { m.mu.Lock(); m.circuitRejects++; m.mu.Unlock() }

// Snapshot copies the counters out under the lock.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Calls:          m.calls,
		Successes:      m.successes,
		Failures:       m.failures,
		CacheHits:      m.cacheHits,
		CacheMisses:    m.cacheMisses,
		Retries:        m.retries,
		RateLimited:    m.rateLimited,
		CircuitRejects: m.circuitRejects,
		TotalCostUSD:   m.totalCostUSD,
		LastError:      m.lastError,
		LastErrorAt:    m.lastErrorAt,
		LastSuccessAt:  m.lastSuccessAt,
	}
	if m.calls > 0 {
		snap.SuccessRate = float64(m.successes) / float64(m.calls)
	}
	if lookups := m.cacheHits + m.cacheMisses; lookups > 0 {
		snap.CacheHitRate = float64(m.cacheHits) / float64(lookups)
	}
	if m.successes > 0 {
		snap.AvgLatency = m.totalLatency / time.Duration(m.successes)
	}
	return snap
}
