// Package citation implements the source-citation model: every value the
// engine produces carries a provenance record describing where it came from,
// when it was retrieved, and how fresh it still is.
package citation

import (
	"fmt"
	"net/url"
	"time"
)

// SourceType identifies the class of upstream a citation points at.
type SourceType string

const (
	SourceTechFingerprint  SourceType = "tech_fingerprint"
	SourceTraffic          SourceType = "traffic"
	SourceFinance          SourceType = "finance"
	SourceRegulatory       SourceType = "regulatory_filings"
	SourceWebSearch        SourceType = "web_search"
	SourcePeopleNetwork    SourceType = "people_network"
	SourceCompanySite      SourceType = "company_site"
	SourcePress            SourceType = "press"
	SourceEarningsCall     SourceType = "earnings_transcript"
	SourceInvestorDeck     SourceType = "investor_presentation"
	SourceNews             SourceType = "news"
	SourceManual           SourceType = "manual"
	SourceCache            SourceType = "cache"
)

// knownSourceTypes is the closed set; anything else fails validation.
var knownSourceTypes = map[SourceType]bool{
	SourceTechFingerprint: true,
	SourceTraffic:         true,
	SourceFinance:         true,
	SourceRegulatory:      true,
	SourceWebSearch:       true,
	SourcePeopleNetwork:   true,
	SourceCompanySite:     true,
	SourcePress:           true,
	SourceEarningsCall:    true,
	SourceInvestorDeck:    true,
	SourceNews:            true,
	SourceManual:          true,
	SourceCache:           true,
}

// Valid reports whether the source type belongs to the closed set.
func (st SourceType) Valid() bool {
	return knownSourceTypes[st]
}

// SourceCitation is the atomic provenance record. Instances are immutable
// after construction; all mutation happens through the factory functions.
type SourceCitation struct {
	SourceType       SourceType      `json:"source_type"`
	SourceURL        string          `json:"source_url"`
	RetrievedAt      time.Time       `json:"retrieved_at"`
	APIEndpoint      string          `json:"api_endpoint,omitempty"`
	APIVersion       string          `json:"api_version,omitempty"`
	CacheKey         string          `json:"cache_key,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	ConfidenceScore  float64         `json:"confidence_score"`
	OriginalCitation *SourceCitation `json:"original_citation,omitempty"`
}

// Option mutates a citation during construction.
type Option func(*SourceCitation)

// WithEndpoint records the API endpoint the value came from.
func WithEndpoint(endpoint string) Option {
	return func(c *SourceCitation) { c.APIEndpoint = endpoint }
}

// WithVersion records the upstream API version.
func WithVersion(version string) Option {
	return func(c *SourceCitation) { c.APIVersion = version }
}

// WithConfidence overrides the default confidence score.
func WithConfidence(score float64) Option {
	return func(c *SourceCitation) { c.ConfidenceScore = score }
}

// WithNotes attaches free-form notes.
func WithNotes(notes string) Option {
	return func(c *SourceCitation) { c.Notes = notes }
}

// New builds a citation for a freshly retrieved value. RetrievedAt is stamped
// with the current UTC time. Returns an error when the source type is outside
// the closed set, the URL is not absolute, or the confidence is out of range.
func New(sourceType SourceType, sourceURL string, opts ...Option) (*SourceCitation, error) {
	c := &SourceCitation{
		SourceType:      sourceType,
		SourceURL:       sourceURL,
		RetrievedAt:     time.Now().UTC(),
		ConfidenceScore: 1.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCached wraps an existing citation in a cache citation. The outer record
// carries a fresh RetrievedAt so consumers can see when the cache hit
// occurred; the original preserves true origin time. Nesting is rejected:
// wrapping an already cache-typed citation reuses its original instead.
func NewCached(original *SourceCitation, cacheKey string) (*SourceCitation, error) {
	if original == nil {
		return nil, fmt.Errorf("citation: cache wrap requires an original citation")
	}
	inner := original
	if inner.SourceType == SourceCache {
		if inner.OriginalCitation == nil {
			return nil, fmt.Errorf("citation: cache citation without original")
		}
		inner = inner.OriginalCitation
	}
	c := &SourceCitation{
		SourceType:       SourceCache,
		SourceURL:        inner.SourceURL,
		RetrievedAt:      time.Now().UTC(),
		CacheKey:         cacheKey,
		ConfidenceScore:  inner.ConfidenceScore,
		OriginalCitation: inner,
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// Placeholder builds a zero-confidence citation for degraded results (failed
// lookups, private companies without filings). P0 still holds: the failed or
// fallback search itself is the cited source.
func Placeholder(sourceType SourceType, sourceURL, reason string) *SourceCitation {
	return &SourceCitation{
		SourceType:      sourceType,
		SourceURL:       sourceURL,
		RetrievedAt:     time.Now().UTC(),
		Notes:           reason,
		ConfidenceScore: 0,
	}
}

// check enforces the structural invariants.
func (c *SourceCitation) check() error {
	if !c.SourceType.Valid() {
		return fmt.Errorf("citation: unknown source type %q", c.SourceType)
	}
	u, err := url.Parse(c.SourceURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("citation: source_url %q is not an absolute URL", c.SourceURL)
	}
	if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 {
		return fmt.Errorf("citation: confidence_score %.3f outside [0,1]", c.ConfidenceScore)
	}
	if c.SourceType == SourceCache {
		if c.OriginalCitation == nil {
			return fmt.Errorf("citation: cache citation requires original_citation")
		}
		if c.OriginalCitation.SourceType == SourceCache {
			return fmt.Errorf("citation: cache citations must not nest")
		}
	}
	return nil
}

// Origin returns the citation freshness decisions should be made against:
// the original for cache wraps, the citation itself otherwise.
func (c *SourceCitation) Origin() *SourceCitation {
	if c.SourceType == SourceCache && c.OriginalCitation != nil {
		return c.OriginalCitation
	}
	return c
}

// AgeDays returns the age of the originating retrieval in fractional days.
func (c *SourceCitation) AgeDays() float64 {
	return time.Since(c.Origin().RetrievedAt).Hours() / 24
}

// Equal reports structural equality, recursing into the original citation.
func (c *SourceCitation) Equal(other *SourceCitation) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.SourceType != other.SourceType ||
		c.SourceURL != other.SourceURL ||
		!c.RetrievedAt.Equal(other.RetrievedAt) ||
		c.APIEndpoint != other.APIEndpoint ||
		c.APIVersion != other.APIVersion ||
		c.CacheKey != other.CacheKey ||
		c.ConfidenceScore != other.ConfidenceScore {
		return false
	}
	return c.OriginalCitation.Equal(other.OriginalCitation)
}
