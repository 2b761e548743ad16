package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// TrafficSourceMix is the per-channel fraction split. Fractions should sum
// to at most 1 within rounding.
type TrafficSourceMix struct {
	Direct   float64 `json:"direct"`
	Organic  float64 `json:"organic"`
	Paid     float64 `json:"paid"`
	Social   float64 `json:"social"`
	Referral float64 `json:"referral"`
	Email    float64 `json:"email"`
	Display  float64 `json:"display"`
}

// Sum adds all channel fractions.
func (m TrafficSourceMix) Sum() float64 {
	return m.Direct + m.Organic + m.Paid + m.Social + m.Referral + m.Email + m.Display
}

// CountryShare is one geography entry.
type CountryShare struct {
	Country string  `json:"country"`
	Share   float64 `json:"share"`
}

// TrafficPayload is M03's typed output.
type TrafficPayload struct {
	MonthlyVisits      float64          `json:"monthly_visits"`
	BounceRate         float64          `json:"bounce_rate"`
	PagesPerVisit      float64          `json:"pages_per_visit"`
	AvgVisitSeconds    float64          `json:"avg_visit_seconds"`
	MobileShare        float64          `json:"mobile_share"`
	TrendMoM           float64          `json:"trend_mom"`
	TrendYoY           float64          `json:"trend_yoy"`
	SourceMix          TrafficSourceMix `json:"source_mix"`
	TopCountries       []CountryShare   `json:"top_countries"`
	TopKeywords        []string         `json:"top_keywords,omitempty"`
	GlobalRank         int              `json:"global_rank,omitempty"`
	TrafficTier        string           `json:"traffic_tier"`
	ICPScoreContribution int            `json:"icp_score_contribution"`
}

// trafficTier classifies monthly visits into the fixed thresholds with their
// ICP score contributions.
func trafficTier(monthlyVisits float64) (tier string, icpContribution int) {
	switch {
	case monthlyVisits >= 50_000_000:
		return "50M+", 30
	case monthlyVisits >= 10_000_000:
		return "10M-50M", 25
	case monthlyVisits >= 1_000_000:
		return "1M-10M", 15
	case monthlyVisits >= 100_000:
		return "100K-1M", 10
	default:
		return "<100K", 5
	}
}

// TrafficAnalysis (M03) profiles the domain's web traffic.
type TrafficAnalysis struct {
	base
	deps Deps
}

// NewTrafficAnalysis builds M03.
func NewTrafficAnalysis(deps Deps) *TrafficAnalysis {
	return &TrafficAnalysis{
		base: base{
			id:         enrich.M03TrafficAnalysis,
			name:       "Traffic Analysis",
			sourceType: citation.SourceTraffic,
		},
		deps: deps,
	}
}

// Execute fetches volume, engagement, mix, and geography.
func (m *TrafficAnalysis) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	resp, err := m.deps.Clients.Traffic.CallWaiting(ctx, "/overview", map[string]string{"domain": domain}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	doc := AsDoc(resp.Value)

	mix := doc.Sub("source_mix")
	var countries []CountryShare
	for _, c := range doc.List("top_countries") {
		countries = append(countries, CountryShare{Country: c.Str("country"), Share: c.Num("share")})
	}
	if countries == nil {
		countries = []CountryShare{}
	}

	visits := doc.Num("monthly_visits")
	tier, icp := trafficTier(visits)
	payload := &TrafficPayload{
		MonthlyVisits:   visits,
		BounceRate:      doc.Num("bounce_rate"),
		PagesPerVisit:   doc.Num("pages_per_visit"),
		AvgVisitSeconds: doc.Num("avg_visit_seconds"),
		MobileShare:     doc.Num("mobile_share"),
		TrendMoM:        doc.Num("trend_mom"),
		TrendYoY:        doc.Num("trend_yoy"),
		SourceMix: TrafficSourceMix{
			Direct:   mix.Num("direct"),
			Organic:  mix.Num("organic"),
			Paid:     mix.Num("paid"),
			Social:   mix.Num("social"),
			Referral: mix.Num("referral"),
			Email:    mix.Num("email"),
			Display:  mix.Num("display"),
		},
		TopCountries:         countries,
		TopKeywords:          doc.Strings("top_keywords"),
		GlobalRank:           int(doc.Num("global_rank")),
		TrafficTier:          tier,
		ICPScoreContribution: icp,
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, resp.Citation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = resp.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces the source-mix budget: fractions sum to <= 1
// within rounding.
func (m *TrafficAnalysis) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[TrafficPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	const epsilon = 0.02
	if payload.SourceMix.Sum() > 1.0+epsilon {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("source mix fractions exceed 1.0")}
	}
	return nil
}
