package citation

import (
	"time"
)

// FreshnessStatus classifies how stale an originating retrieval is.
type FreshnessStatus string

const (
	Fresh   FreshnessStatus = "fresh"
	Stale   FreshnessStatus = "stale"
	Expired FreshnessStatus = "expired"
	Unknown FreshnessStatus = "unknown"
)

// FreshnessPolicy is the per-source-type day triple. fresh < stale < expired.
type FreshnessPolicy struct {
	FreshDays   float64 `yaml:"fresh_days"`
	StaleDays   float64 `yaml:"stale_days"`
	ExpiredDays float64 `yaml:"expired_days"`
}

// Monotonic reports whether the triple satisfies fresh < stale < expired.
func (p FreshnessPolicy) Monotonic() bool {
	return p.FreshDays < p.StaleDays && p.StaleDays < p.ExpiredDays
}

// skewTolerance absorbs clock drift between this process and upstreams.
// Applied uniformly at classification time.
const skewTolerance = 60 * time.Second

// DefaultPolicies is the process-wide freshness table. Source types absent
// from the table classify as Unknown.
var DefaultPolicies = map[SourceType]FreshnessPolicy{
	SourceFinance:         {FreshDays: 1, StaleDays: 7, ExpiredDays: 30},
	SourceTraffic:         {FreshDays: 7, StaleDays: 30, ExpiredDays: 90},
	SourceTechFingerprint: {FreshDays: 30, StaleDays: 90, ExpiredDays: 180},
	SourceRegulatory:      {FreshDays: 90, StaleDays: 180, ExpiredDays: 365},
	SourceWebSearch:       {FreshDays: 7, StaleDays: 30, ExpiredDays: 90},
	SourcePeopleNetwork:   {FreshDays: 14, StaleDays: 45, ExpiredDays: 120},
	SourceNews:            {FreshDays: 1, StaleDays: 7, ExpiredDays: 30},
	SourcePress:           {FreshDays: 7, StaleDays: 30, ExpiredDays: 180},
	SourceEarningsCall:    {FreshDays: 90, StaleDays: 180, ExpiredDays: 365},
	SourceInvestorDeck:    {FreshDays: 90, StaleDays: 180, ExpiredDays: 365},
	SourceCompanySite:     {FreshDays: 30, StaleDays: 90, ExpiredDays: 180},
	SourceManual:          {FreshDays: 30, StaleDays: 90, ExpiredDays: 365},
}

// Classifier evaluates citation freshness against a policy table.
type Classifier struct {
	policies map[SourceType]FreshnessPolicy
	now      func() time.Time
}

// NewClassifier builds a classifier over the given table; nil means the
// default table.
func NewClassifier(policies map[SourceType]FreshnessPolicy) *Classifier {
	if policies == nil {
		policies = DefaultPolicies
	}
	return &Classifier{policies: policies, now: time.Now}
}

// Classify returns the freshness status of a citation. Cache wraps classify
// by their original citation. Classification depends only on source type and
// the originating retrieval time.
func (cl *Classifier) Classify(c *SourceCitation) FreshnessStatus {
	if c == nil {
		return Unknown
	}
	origin := c.Origin()
	policy, ok := cl.policies[origin.SourceType]
	if !ok {
		return Unknown
	}
	age := cl.now().Sub(origin.RetrievedAt) - skewTolerance
	switch {
	case age <= durationDays(policy.FreshDays):
		return Fresh
	case age <= durationDays(policy.ExpiredDays):
		return Stale
	default:
		return Expired
	}
}

// IsValid reports whether the citation has not expired.
func (cl *Classifier) IsValid(c *SourceCitation) bool {
	return cl.Classify(c) != Expired
}

// RefreshDue reports whether the originating retrieval has aged past the
// policy's stale_days boundary. A stale citation under the boundary is still
// serviceable; past it a re-fetch is warranted.
func (cl *Classifier) RefreshDue(c *SourceCitation) bool {
	if c == nil {
		return false
	}
	origin := c.Origin()
	policy, ok := cl.policies[origin.SourceType]
	if !ok {
		return false
	}
	age := cl.now().Sub(origin.RetrievedAt) - skewTolerance
	return age > durationDays(policy.StaleDays)
}

func durationDays(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

// defaultClassifier backs the package-level helpers.
var defaultClassifier = NewClassifier(nil)

// Classify evaluates against the default policy table.
func Classify(c *SourceCitation) FreshnessStatus {
	return defaultClassifier.Classify(c)
}

// IsValid evaluates against the default policy table.
func IsValid(c *SourceCitation) bool {
	return defaultClassifier.IsValid(c)
}

// RefreshDue evaluates against the default policy table.
func RefreshDue(c *SourceCitation) bool {
	return defaultClassifier.RefreshDue(c)
}
