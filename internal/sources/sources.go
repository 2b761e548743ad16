// Package sources wires the six concrete upstream integrations onto the
// adapter runtime: tech fingerprinting, traffic analytics, financial data,
// regulatory filings, web search, and people/jobs. Vendor response mechanics
// stay behind the Parse strategy; everything downstream consumes the
// SourcedResponse envelope.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/metrics"
)

// Adapter names; also the limiter registry keys.
const (
	NameTechFingerprint = "tech_fingerprint"
	NameTraffic         = "traffic"
	NameFinance         = "finance"
	NameRegulatory      = "regulatory"
	NameWebSearch       = "web_search"
	NamePeople          = "people"
)

const day = 24 * time.Hour

// Defaults captures the pre-configured per-source operating envelope.
type Defaults struct {
	SourceType     citation.SourceType
	TokensPerSec   float64
	Burst          int
	SlidingWindow  bool // strictly per-minute APIs use the window variant
	WindowPerMin   int
	DefaultTTL     time.Duration
	EndpointTTLs   map[string]time.Duration
	CostPerCallUSD float64
	CallTimeout    time.Duration
	Confidence     float64
}

// DefaultTable mirrors the known upstream caps per source.
var DefaultTable = map[string]Defaults{
	NameTechFingerprint: {
		SourceType:     citation.SourceTechFingerprint,
		TokensPerSec:   0.5,
		Burst:          5,
		DefaultTTL:     30 * day,
		CostPerCallUSD: 0.10,
		CallTimeout:    30 * time.Second,
		Confidence:     0.9,
	},
	NameTraffic: {
		SourceType:     citation.SourceTraffic,
		TokensPerSec:   1.0,
		Burst:          10,
		DefaultTTL:     7 * day,
		CostPerCallUSD: 0.08,
		CallTimeout:    30 * time.Second,
		Confidence:     0.85,
	},
	NameFinance: {
		SourceType:   citation.SourceFinance,
		TokensPerSec: 1.67,
		Burst:        10,
		DefaultTTL:   day,
		EndpointTTLs: map[string]time.Duration{
			"/quote":      day,
			"/statements": 90 * day,
		},
		CallTimeout: 30 * time.Second,
		Confidence:  0.95,
	},
	NameRegulatory: {
		SourceType:    citation.SourceRegulatory,
		SlidingWindow: true,
		WindowPerMin:  6,
		DefaultTTL:    90 * day,
		CallTimeout:   60 * time.Second,
		Confidence:    0.95,
	},
	NameWebSearch: {
		SourceType:   citation.SourceWebSearch,
		TokensPerSec: 5.0,
		Burst:        20,
		DefaultTTL:   7 * day,
		EndpointTTLs: map[string]time.Duration{
			"/news": time.Hour,
		},
		CostPerCallUSD: 0.005,
		CallTimeout:    30 * time.Second,
		Confidence:     0.7,
	},
	NamePeople: {
		SourceType:     citation.SourcePeopleNetwork,
		TokensPerSec:   1.0,
		Burst:          5,
		DefaultTTL:     7 * day,
		CostPerCallUSD: 0.05,
		CallTimeout:    30 * time.Second,
		Confidence:     0.8,
	},
}

// Endpoint holds the wire-level coordinates of one upstream.
type Endpoint struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// httpDoer implements the Do strategy over net/http.
type httpDoer struct {
	client   *http.Client
	endpoint Endpoint
}

func (d *httpDoer) do(ctx context.Context, endpoint string, params map[string]string) (*adapter.RawResponse, error) {
	u, err := url.Parse(d.endpoint.BaseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("bad endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if d.endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.endpoint.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return &adapter.RawResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// parseJSON is the shared Parse strategy: responses are generic JSON
// documents.
func parseJSON(_ string, body []byte) (any, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// newRuntime assembles one source adapter from the defaults table.
func newRuntime(name string, endpoint Endpoint, cache adapter.Store, limiters *adapter.LimiterRegistry, inst *metrics.Instruments) *adapter.Runtime {
	defs := DefaultTable[name]

	var limiter adapter.Limiter
	if defs.SlidingWindow {
		limiter = adapter.NewSlidingWindow(name, defs.WindowPerMin, time.Minute)
	} else {
		limiter = adapter.NewTokenBucket(name, defs.TokensPerSec, defs.Burst)
	}
	if limiters != nil {
		limiters.Register(name, limiter)
	}

	doer := &httpDoer{
		client:   &http.Client{Timeout: defs.CallTimeout},
		endpoint: endpoint,
	}
	strategies := adapter.Strategies{
		Do:    doer.do,
		Parse: parseJSON,
		SourceURL: func(ep string, params map[string]string) string {
			return sourceURL(endpoint.BaseURL, ep, params)
		},
	}
	return adapter.NewRuntime(adapter.Config{
		Name:              name,
		SourceType:        defs.SourceType,
		APIVersion:        "v1",
		CallTimeout:       defs.CallTimeout,
		MaxRetries:        3,
		BackoffBase:       500 * time.Millisecond,
		DefaultTTL:        defs.DefaultTTL,
		EndpointTTLs:      defs.EndpointTTLs,
		CostPerCallUSD:    defs.CostPerCallUSD,
		DefaultConfidence: defs.Confidence,
	}, strategies, limiter, cache, inst)
}

// sourceURL rebuilds the public provenance URL without credentials.
func sourceURL(base, endpoint string, params map[string]string) string {
	u, err := url.Parse(base + endpoint)
	if err != nil {
		return base + endpoint
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Clients bundles every source adapter the modules consume.
type Clients struct {
	TechFingerprint *adapter.Runtime
	Traffic         *adapter.Runtime
	Finance         *adapter.Runtime
	Regulatory      *adapter.Runtime
	WebSearch       *adapter.Runtime
	People          *adapter.Runtime
	Registry        *adapter.Registry
	Limiters        *adapter.LimiterRegistry
}

// Endpoints configures the upstream coordinates per source name.
type Endpoints map[string]Endpoint

// NewClients builds the full adapter set over a shared cache store.
func NewClients(endpoints Endpoints, cache adapter.Store, inst *metrics.Instruments) *Clients {
	limiters := adapter.NewLimiterRegistry()
	registry := adapter.NewRegistry()

	build := func(name string) *adapter.Runtime {
		rt := newRuntime(name, endpoints[name], cache, limiters, inst)
		registry.Register(rt)
		return rt
	}
	return &Clients{
		TechFingerprint: build(NameTechFingerprint),
		Traffic:         build(NameTraffic),
		Finance:         build(NameFinance),
		Regulatory:      build(NameRegulatory),
		WebSearch:       build(NameWebSearch),
		People:          build(NamePeople),
		Registry:        registry,
		Limiters:        limiters,
	}
}
