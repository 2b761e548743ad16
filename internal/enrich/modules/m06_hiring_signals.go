package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// Role tiers.
const (
	TierStrong    = "STRONG"    // VP/Director/Head-of/C-level in digital, ecommerce, product, technology
	TierModerate  = "MODERATE"  // Manager / Senior IC / Principal / Staff
	TierTechnical = "TECHNICAL" // engineer / developer
	TierNone      = ""
)

// Hiring intensity bands.
const (
	IntensityHigh     = "HIGH"
	IntensityModerate = "MODERATE"
	IntensityLow      = "LOW"
)

// OpenRole is one classified vacancy.
type OpenRole struct {
	Title    string `json:"title"`
	Tier     string `json:"tier"`
	Category string `json:"category"`
}

// HiringPayload is M06's typed output.
type HiringPayload struct {
	Roles                 []OpenRole     `json:"roles"`
	CountsByCategory      map[string]int `json:"counts_by_category"`
	Tier1Count            int            `json:"tier1_count"`
	TechnicalCount        int            `json:"technical_count"`
	AIInvestmentSignal    bool           `json:"ai_investment_signal"`
	DecisionWindowOpen    bool           `json:"decision_window_open"`
	OverallHiringIntensity string        `json:"overall_hiring_intensity"`
}

// digitalKeywords mark the functions whose senior vacancies open a decision
// window.
var digitalKeywords = []string{"digital", "ecommerce", "e-commerce", "product", "technology"}

// classifyRoleTier places a title in the seniority tiers.
func classifyRoleTier(title string) string {
	senior := containsAny(title, "vp", "vice president", "director", "head of", "chief", "cto", "cdo", "cio", "cpo")
	if senior && containsAny(title, digitalKeywords...) {
		return TierStrong
	}
	if containsAny(title, "manager", "principal", "staff", "senior", "lead") {
		return TierModerate
	}
	if containsAny(title, "engineer", "developer") {
		return TierTechnical
	}
	return TierNone
}

// classifyRoleCategory maps a title onto the functional buckets.
func classifyRoleCategory(title string) string {
	switch {
	case containsAny(title, "search", "discovery", "relevance"):
		return "search"
	case containsAny(title, "ai", "machine learning", "ml", "data science", "data scientist"):
		return "ai_ml"
	case containsAny(title, "data", "analytics"):
		return "data_analytics"
	case containsAny(title, "ecommerce", "e-commerce", "commerce", "merchandising", "merchandiser", "merchandise"):
		return "ecommerce"
	case containsAny(title, "product"):
		return "product"
	case containsAny(title, "ux", "design"):
		return "ux"
	case containsAny(title, "infrastructure", "infra", "platform", "devops", "sre", "cloud"):
		return "infrastructure"
	case containsAny(title, "engineer", "developer"):
		return "engineering"
	default:
		return "other"
	}
}

// hiringIntensity is the 3-clause rule over Tier-1 and technical counts.
func hiringIntensity(tier1, technical int) string {
	switch {
	case tier1 >= 2 || technical >= 10:
		return IntensityHigh
	case tier1 >= 1 || technical >= 5:
		return IntensityModerate
	default:
		return IntensityLow
	}
}

// HiringSignals (M06) reads open roles as buying signals.
type HiringSignals struct {
	base
	deps Deps
}

// NewHiringSignals builds M06.
func NewHiringSignals(deps Deps) *HiringSignals {
	return &HiringSignals{
		base: base{
			id:         enrich.M06HiringSignals,
			name:       "Hiring Signals",
			sourceType: citation.SourcePeopleNetwork,
		},
		deps: deps,
	}
}

// Execute pulls open roles and derives the tiered signal set.
func (m *HiringSignals) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	resp, err := m.deps.Clients.People.CallWaiting(ctx, "/jobs", map[string]string{"domain": domain}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	var roles []OpenRole
	counts := map[string]int{}
	tier1, technical := 0, 0
	aiSignal, decisionWindow := false, false

	for _, job := range AsDoc(resp.Value).List("jobs") {
		title := job.Str("title")
		if title == "" {
			continue
		}
		tier := classifyRoleTier(title)
		category := classifyRoleCategory(title)
		roles = append(roles, OpenRole{Title: title, Tier: tier, Category: category})
		counts[category]++
		switch tier {
		case TierStrong:
			tier1++
			if containsAny(title, "digital", "ecommerce", "e-commerce", "product") {
				decisionWindow = true
			}
		case TierTechnical:
			technical++
		}
		if containsAny(title, "ai", "machine learning", "ml") || containsAny(job.Str("description"), "ai", "machine learning") {
			aiSignal = true
		}
	}
	if roles == nil {
		roles = []OpenRole{}
	}

	payload := &HiringPayload{
		Roles:                  roles,
		CountsByCategory:       counts,
		Tier1Count:             tier1,
		TechnicalCount:         technical,
		AIInvestmentSignal:     aiSignal,
		DecisionWindowOpen:     decisionWindow,
		OverallHiringIntensity: hiringIntensity(tier1, technical),
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, resp.Citation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = resp.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M06's schema.
func (m *HiringSignals) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[HiringPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	switch payload.OverallHiringIntensity {
	case IntensityHigh, IntensityModerate, IntensityLow:
		return nil
	}
	return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("overall_hiring_intensity")}
}
