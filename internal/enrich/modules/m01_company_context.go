package modules

import (
	"context"
	"strings"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// CompanyPayload is M01's typed output.
type CompanyPayload struct {
	CompanyName      string   `json:"company_name"`
	Ticker           string   `json:"ticker,omitempty"`
	Exchange         string   `json:"exchange,omitempty"`
	IsPublic         bool     `json:"is_public"`
	Headquarters     string   `json:"headquarters,omitempty"`
	Vertical         string   `json:"vertical"`
	SubVertical      string   `json:"sub_vertical,omitempty"`
	BusinessModel    string   `json:"business_model"`
	EmployeeCount    int      `json:"employee_count,omitempty"`
	StoreCount       int      `json:"store_count,omitempty"`
	Brands           []string `json:"brands,omitempty"`
	FoundedYear      int      `json:"founded_year,omitempty"`
	Description      string   `json:"description,omitempty"`
	DataQualityScore float64  `json:"data_quality_score"`
}

// CompanyContext (M01) resolves the bare domain into a company record.
type CompanyContext struct {
	base
	deps Deps
}

// NewCompanyContext builds M01.
func NewCompanyContext(deps Deps) *CompanyContext {
	return &CompanyContext{
		base: base{
			id:         enrich.M01CompanyContext,
			name:       "Company Context",
			sourceType: citation.SourceWebSearch,
		},
		deps: deps,
	}
}

// verticalKeywords maps signal words in industry/description text to a
// vertical and business model.
var verticalKeywords = []struct {
	keywords []string
	vertical string
	sub      string
	model    string
}{
	{[]string{"retail", "e-commerce", "ecommerce", "store", "apparel", "grocery", "marketplace", "consumer goods"}, "Commerce", "Retail", "B2C"},
	{[]string{"wholesale", "distribution", "manufacturer", "industrial", "supplier"}, "Commerce", "B2B Commerce", "B2B"},
	{[]string{"media", "publisher", "publishing", "news", "streaming", "entertainment"}, "Content", "Media", "B2C"},
	{[]string{"documentation", "knowledge base", "education", "learning"}, "Content", "Knowledge", "B2B"},
	{[]string{"saas", "software", "platform", "developer", "api", "cloud"}, "Support", "SaaS", "B2B"},
	{[]string{"helpdesk", "customer service", "support"}, "Support", "Customer Support", "B2B"},
	{[]string{"travel", "booking", "hospitality", "airline"}, "Commerce", "Travel", "B2C"},
	{[]string{"financial services", "bank", "insurance", "fintech"}, "Commerce", "Financial Services", "B2B2C"},
}

// classifyVertical scores industry+description text against the keyword map.
// Empty scores default to Commerce / B2C.
func classifyVertical(industry, description string) (vertical, sub, model string) {
	text := strings.ToLower(industry + " " + description)
	bestScore := 0
	vertical, sub, model = "Commerce", "", "B2C"
	for _, entry := range verticalKeywords {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			vertical, sub, model = entry.vertical, entry.sub, entry.model
		}
	}
	return vertical, sub, model
}

// companyDataQuality is the weighted coverage metric over the record fields.
func companyDataQuality(p *CompanyPayload) float64 {
	score := 0.0
	if p.CompanyName != "" {
		score += 0.25
	}
	if p.Description != "" {
		score += 0.20
	}
	if p.Headquarters != "" {
		score += 0.10
	}
	if p.IsPublic && p.Ticker != "" {
		score += 0.15
	}
	if p.EmployeeCount > 0 {
		score += 0.10
	}
	if p.FoundedYear > 0 {
		score += 0.05
	}
	if len(p.Brands) > 0 {
		score += 0.05
	}
	if p.Vertical != "" {
		score += 0.10
	}
	return clamp01(score)
}

// Execute resolves the company profile and ticker.
func (m *CompanyContext) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	profile, err := m.deps.Clients.WebSearch.CallWaiting(ctx, "/company", map[string]string{"domain": domain}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	doc := AsDoc(profile.Value)

	payload := &CompanyPayload{
		CompanyName:   doc.Str("name"),
		Headquarters:  doc.Str("headquarters"),
		EmployeeCount: int(doc.Num("employee_count")),
		StoreCount:    int(doc.Num("store_count")),
		Brands:        doc.Strings("brands"),
		FoundedYear:   int(doc.Num("founded_year")),
		Description:   doc.Str("description"),
	}
	if payload.CompanyName == "" {
		payload.CompanyName = domain
	}
	payload.Vertical, payload.SubVertical, payload.BusinessModel = classifyVertical(doc.Str("industry"), payload.Description)

	supporting := []*citation.SourceCitation{}

	// Ticker resolution against the finance source; absence is benign.
	lookup, lerr := m.deps.Clients.Finance.CallWaiting(ctx, "/lookup", map[string]string{"domain": domain}, adapter.CallOptions{})
	if lerr == nil {
		lookupDoc := AsDoc(lookup.Value)
		payload.Ticker = lookupDoc.Str("ticker")
		payload.Exchange = lookupDoc.Str("exchange")
		payload.IsPublic = payload.Ticker != ""
		supporting = append(supporting, lookup.Citation)
	}

	payload.DataQualityScore = companyDataQuality(payload)

	result, err := enrich.NewSuccess(m.id, domain, payload, profile.Citation, supporting...)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = profile.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M01's schema.
func (m *CompanyContext) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[CompanyPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	if payload.Vertical == "" || payload.BusinessModel == "" {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("vertical/business_model")}
	}
	if payload.DataQualityScore < 0 || payload.DataQualityScore > 1 {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("data_quality_score out of range")}
	}
	return nil
}
