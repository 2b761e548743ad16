package modules

import (
	"context"
	"errors"
	"math"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// Margin zones used as a sales-motion qualifier.
const (
	MarginGreen   = "GREEN"
	MarginYellow  = "YELLOW"
	MarginRed     = "RED"
	MarginUnknown = "UNKNOWN"
)

// ROIScenario is one projected annual impact line.
type ROIScenario struct {
	Label        string  `json:"label"`
	Lift         float64 `json:"lift"`
	AnnualImpact float64 `json:"annual_impact"`
}

// FinancePayload is M04's typed output.
type FinancePayload struct {
	IsPublic                 bool          `json:"is_public"`
	Ticker                   string        `json:"ticker,omitempty"`
	RevenueSeries            []float64     `json:"revenue_series,omitempty"`
	RevenueCAGR              float64       `json:"revenue_cagr,omitempty"`
	NetIncomeSeries          []float64     `json:"net_income_series,omitempty"`
	GrossMargin              float64       `json:"gross_margin,omitempty"`
	OperatingMargin          float64       `json:"operating_margin,omitempty"`
	NetMargin                float64       `json:"net_margin,omitempty"`
	EBITDAMargin             float64       `json:"ebitda_margin,omitempty"`
	MarginZone               string        `json:"margin_zone"`
	LatestRevenue            float64       `json:"latest_revenue,omitempty"`
	EcommerceShare           float64       `json:"ecommerce_share,omitempty"`
	EcommerceRevenue         float64       `json:"ecommerce_revenue,omitempty"`
	AddressableSearchRevenue float64       `json:"addressable_search_revenue,omitempty"`
	ROIScenarios             []ROIScenario `json:"roi_scenarios,omitempty"`
	DataLimitationReason     string        `json:"data_limitation_reason,omitempty"`
}

// addressableSearchShare is the modeled share of e-commerce revenue touched
// by on-site search.
const addressableSearchShare = 0.15

// privateRecordConfidence caps the citation confidence on degraded private
// records: the cited search proves only the absence of filings.
const privateRecordConfidence = 0.3

// marginZone buckets EBITDA margin.
func marginZone(ebitdaMargin float64, known bool) string {
	if !known {
		return MarginUnknown
	}
	switch {
	case ebitdaMargin > 0.20:
		return MarginGreen
	case ebitdaMargin > 0.10:
		return MarginYellow
	default:
		return MarginRed
	}
}

// revenueCAGR computes the compound annual growth rate over the series.
func revenueCAGR(series []float64) float64 {
	if len(series) < 2 || series[0] <= 0 || series[len(series)-1] <= 0 {
		return 0
	}
	years := float64(len(series) - 1)
	return math.Pow(series[len(series)-1]/series[0], 1/years) - 1
}

// roiScenarios derives the three standard uplift lines.
func roiScenarios(addressable float64) []ROIScenario {
	if addressable <= 0 {
		return nil
	}
	return []ROIScenario{
		{Label: "conservative", Lift: 0.05, AnnualImpact: addressable * 0.05},
		{Label: "moderate", Lift: 0.10, AnnualImpact: addressable * 0.10},
		{Label: "aggressive", Lift: 0.15, AnnualImpact: addressable * 0.15},
	}
}

// FinancialProfile (M04) extracts public-company financials or a minimal
// cited record for private companies.
type FinancialProfile struct {
	base
	deps Deps
}

// NewFinancialProfile builds M04.
func NewFinancialProfile(deps Deps) *FinancialProfile {
	return &FinancialProfile{
		base: base{
			id:         enrich.M04FinancialProfile,
			name:       "Financial Profile",
			sourceType: citation.SourceFinance,
		},
		deps: deps,
	}
}

// Execute resolves the ticker and pulls the statement series. Private
// companies degrade to a minimal record; P0 still holds via the citation of
// the failed or fallback search.
func (m *FinancialProfile) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	lookup, err := m.deps.Clients.Finance.CallWaiting(ctx, "/lookup", map[string]string{"domain": domain}, adapter.CallOptions{})
	if err != nil {
		return m.privateResult(domain, "ticker lookup failed: "+err.Error())
	}
	ticker := AsDoc(lookup.Value).Str("ticker")
	if ticker == "" {
		return m.privateResultWithCitation(domain, "no ticker resolvable for domain", lookup.Citation)
	}

	statements, err := m.deps.Clients.Finance.CallWaiting(ctx, "/statements", map[string]string{"ticker": ticker}, adapter.CallOptions{})
	if err != nil {
		var notFound *adapter.UpstreamError
		if errors.As(err, &notFound) && notFound.StatusCode == 404 {
			return m.privateResultWithCitation(domain, "no filings available", lookup.Citation)
		}
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	doc := AsDoc(statements.Value)

	revenue := doc.Nums("revenue_series")
	ebitda := doc.Num("ebitda_margin")
	_, hasEBITDA := doc["ebitda_margin"]
	ecomShare := doc.Num("ecommerce_share")

	payload := &FinancePayload{
		IsPublic:        true,
		Ticker:          ticker,
		RevenueSeries:   revenue,
		RevenueCAGR:     revenueCAGR(revenue),
		NetIncomeSeries: doc.Nums("net_income_series"),
		GrossMargin:     doc.Num("gross_margin"),
		OperatingMargin: doc.Num("operating_margin"),
		NetMargin:       doc.Num("net_margin"),
		EBITDAMargin:    ebitda,
		MarginZone:      marginZone(ebitda, hasEBITDA),
		EcommerceShare:  ecomShare,
	}
	if len(revenue) > 0 {
		payload.LatestRevenue = revenue[len(revenue)-1]
		payload.EcommerceRevenue = payload.LatestRevenue * ecomShare
		payload.AddressableSearchRevenue = payload.EcommerceRevenue * addressableSearchShare
		payload.ROIScenarios = roiScenarios(payload.AddressableSearchRevenue)
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, statements.Citation, lookup.Citation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = statements.Cached
	return result, m.ValidateOutput(result)
}

// privateResult emits the degraded record citing the failed search itself.
func (m *FinancialProfile) privateResult(domain, reason string) (*enrich.Result, error) {
	placeholder := citation.Placeholder(citation.SourceWebSearch,
		"https://www.sec.gov/cgi-bin/browse-edgar?company="+domain, reason)
	return m.privateResultWithCitation(domain, reason, placeholder)
}

func (m *FinancialProfile) privateResultWithCitation(domain, reason string, cit *citation.SourceCitation) (*enrich.Result, error) {
	if cit.ConfidenceScore > privateRecordConfidence {
		capped := *cit
		capped.ConfidenceScore = privateRecordConfidence
		if capped.Notes == "" {
			capped.Notes = reason
		}
		cit = &capped
	}
	payload := &FinancePayload{
		IsPublic:             false,
		MarginZone:           MarginUnknown,
		DataLimitationReason: reason,
	}
	result, err := enrich.NewSuccess(m.id, domain, payload, cit)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M04's schema.
func (m *FinancialProfile) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[FinancePayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	switch payload.MarginZone {
	case MarginGreen, MarginYellow, MarginRed, MarginUnknown:
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("margin_zone")}
	}
	if !payload.IsPublic && payload.DataLimitationReason == "" {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("data_limitation_reason for private company")}
	}
	return nil
}
