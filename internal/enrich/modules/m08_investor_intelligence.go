package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// Search priority levels derived from filings and earnings material.
const (
	SearchPriorityHigh    = "HIGH"
	SearchPriorityMedium  = "MEDIUM"
	SearchPriorityLow     = "LOW"
	SearchPriorityUnknown = "UNKNOWN"
)

// ExecutiveQuote is one verbatim quote with mandatory speaker attribution.
type ExecutiveQuote struct {
	Quote        string `json:"quote"`
	SpeakerName  string `json:"speaker_name"`
	SpeakerTitle string `json:"speaker_title"`
	SourceURL    string `json:"source_url"`
}

// InvestorPayload is M08's typed output.
type InvestorPayload struct {
	IsPublic             bool             `json:"is_public"`
	Quotes               []ExecutiveQuote `json:"quotes"`
	Commitments          []string         `json:"commitments"`
	RiskFactors          []string         `json:"risk_factors"`
	SearchPriorityLevel  string           `json:"search_priority_level"`
	DataLimitationReason string           `json:"data_limitation_reason,omitempty"`
}

// classifySearchPriority applies the explicit-keyword ladder over quotes,
// commitments, and risk factors.
func classifySearchPriority(quotes []ExecutiveQuote, commitments, riskFactors []string) string {
	var all []string
	for _, q := range quotes {
		all = append(all, q.Quote)
	}
	all = append(all, commitments...)

	for _, text := range all {
		if containsAny(text, "search", "site search", "product discovery", "findability") {
			return SearchPriorityHigh
		}
	}
	for _, text := range all {
		if containsAny(text, "ai", "artificial intelligence", "personalization", "machine learning") {
			return SearchPriorityMedium
		}
	}
	for _, rf := range riskFactors {
		if containsAny(rf, "search", "discovery", "conversion") {
			return SearchPriorityMedium
		}
	}
	for _, text := range all {
		if containsAny(text, "digital transformation", "digital investment") {
			return SearchPriorityLow
		}
	}
	return SearchPriorityUnknown
}

// InvestorIntelligence (M08) mines filings and earnings material of public
// companies.
type InvestorIntelligence struct {
	base
	deps Deps
}

// NewInvestorIntelligence builds M08.
func NewInvestorIntelligence(deps Deps) *InvestorIntelligence {
	return &InvestorIntelligence{
		base: base{
			id:         enrich.M08InvestorIntelligence,
			name:       "Investor Intelligence",
			sourceType: citation.SourceRegulatory,
		},
		deps: deps,
	}
}

// Execute extracts quotes, commitments, and risk factors from filings.
// Private companies emit a minimal record.
func (m *InvestorIntelligence) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	finance, err := deps.Require(m.id, enrich.M04FinancialProfile)
	if err != nil {
		return nil, err
	}
	financePayload, err := enrich.DecodePayload[FinancePayload](finance.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	if !financePayload.IsPublic {
		payload := &InvestorPayload{
			IsPublic:             false,
			Quotes:               []ExecutiveQuote{},
			Commitments:          []string{},
			RiskFactors:          []string{},
			SearchPriorityLevel:  SearchPriorityUnknown,
			DataLimitationReason: "private company; no filings or earnings material",
		}
		cit := citation.Placeholder(citation.SourceRegulatory,
			"https://www.sec.gov/cgi-bin/browse-edgar?company="+domain, payload.DataLimitationReason)
		result, rerr := enrich.NewSuccess(m.id, domain, payload, cit)
		if rerr != nil {
			return nil, &enrich.ModuleError{ModuleID: m.id, Cause: rerr}
		}
		return result, m.ValidateOutput(result)
	}

	filings, err := m.deps.Clients.Regulatory.CallWaiting(ctx, "/filings", map[string]string{"ticker": financePayload.Ticker}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	doc := AsDoc(filings.Value)

	var quotes []ExecutiveQuote
	for _, q := range doc.List("quotes") {
		quote := ExecutiveQuote{
			Quote:        q.Str("quote"),
			SpeakerName:  q.Str("speaker_name"),
			SpeakerTitle: q.Str("speaker_title"),
			SourceURL:    filings.Citation.SourceURL,
		}
		// Quotes without full speaker attribution are dropped rather than
		// emitted unattributed.
		if quote.Quote == "" || quote.SpeakerName == "" || quote.SpeakerTitle == "" {
			continue
		}
		quotes = append(quotes, quote)
	}
	if quotes == nil {
		quotes = []ExecutiveQuote{}
	}

	commitments := doc.Strings("commitments")
	if commitments == nil {
		commitments = []string{}
	}
	riskFactors := doc.Strings("risk_factors")
	if riskFactors == nil {
		riskFactors = []string{}
	}

	payload := &InvestorPayload{
		IsPublic:            true,
		Quotes:              quotes,
		Commitments:         commitments,
		RiskFactors:         riskFactors,
		SearchPriorityLevel: classifySearchPriority(quotes, commitments, riskFactors),
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, filings.Citation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = filings.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces speaker attribution on every emitted quote.
func (m *InvestorIntelligence) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[InvestorPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	switch payload.SearchPriorityLevel {
	case SearchPriorityHigh, SearchPriorityMedium, SearchPriorityLow, SearchPriorityUnknown:
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("search_priority_level")}
	}
	for _, q := range payload.Quotes {
		if q.SpeakerName == "" || q.SpeakerTitle == "" || q.SourceURL == "" {
			return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("quote missing speaker attribution")}
		}
	}
	return nil
}
