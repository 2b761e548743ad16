package modules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// CaseStudy is one reference customer story in the internal library.
type CaseStudy struct {
	Customer     string   `json:"customer"`
	Vertical     string   `json:"vertical"`
	Technologies []string `json:"technologies"`
	ScaleTier    string   `json:"scale_tier"`
	UseCases     []string `json:"use_cases"`
	Headline     string   `json:"headline"`
	URL          string   `json:"url"`
}

// CaseStudyMatch is one ranked match with its reason.
type CaseStudyMatch struct {
	CaseStudy CaseStudy `json:"case_study"`
	Score     int       `json:"score"`
	Reason    string    `json:"reason"`
}

// CaseStudyPayload is M12's typed output.
type CaseStudyPayload struct {
	Matches []CaseStudyMatch `json:"matches"`
}

// caseStudyLibrary is the built-in reference library. A real deployment
// would load this from the content system; the matching rules are the point.
var caseStudyLibrary = []CaseStudy{
	{Customer: "Lacoste", Vertical: "Commerce", Technologies: []string{"shopify"}, ScaleTier: "10M-50M", UseCases: []string{"site_search", "merchandising"}, Headline: "Lacoste lifted search conversion 150% after replatforming search", URL: "https://www.algolia.com/customers/lacoste/"},
	{Customer: "Gymshark", Vertical: "Commerce", Technologies: []string{"shopify"}, ScaleTier: "10M-50M", UseCases: []string{"site_search", "personalization"}, Headline: "Gymshark scaled Black Friday search on a headless stack", URL: "https://www.algolia.com/customers/gymshark/"},
	{Customer: "Walgreens", Vertical: "Commerce", Technologies: []string{"salesforce commerce cloud"}, ScaleTier: "50M+", UseCases: []string{"site_search", "store_inventory"}, Headline: "Walgreens unified product and store inventory search", URL: "https://www.algolia.com/customers/walgreens/"},
	{Customer: "Under Armour", Vertical: "Commerce", Technologies: []string{"sap commerce"}, ScaleTier: "50M+", UseCases: []string{"site_search", "recommendations"}, Headline: "Under Armour personalized discovery across 40 markets", URL: "https://www.algolia.com/customers/under-armour/"},
	{Customer: "Medium", Vertical: "Content", Technologies: []string{}, ScaleTier: "50M+", UseCases: []string{"content_search"}, Headline: "Medium serves article search at hundreds of millions of queries", URL: "https://www.algolia.com/customers/medium/"},
	{Customer: "Financial Times", Vertical: "Content", Technologies: []string{"contentful"}, ScaleTier: "10M-50M", UseCases: []string{"content_search", "paywall"}, Headline: "FT rebuilt reader search on a modern content stack", URL: "https://www.algolia.com/customers/financial-times/"},
	{Customer: "Zendesk", Vertical: "Support", Technologies: []string{}, ScaleTier: "10M-50M", UseCases: []string{"help_center", "deflection"}, Headline: "Zendesk powers help-center deflection for thousands of tenants", URL: "https://www.algolia.com/customers/zendesk/"},
	{Customer: "Decathlon", Vertical: "Commerce", Technologies: []string{"adobe commerce"}, ScaleTier: "10M-50M", UseCases: []string{"site_search", "merchandising"}, Headline: "Decathlon cut time-to-product across 50 country sites", URL: "https://www.algolia.com/customers/decathlon/"},
}

// matchCaseStudies scores the library against the target profile. Weights:
// vertical 40, technology overlap 30, scale bucket 20, use-case base 10.
func matchCaseStudies(vertical string, partnerTechs []string, trafficTier string) []CaseStudyMatch {
	matches := make([]CaseStudyMatch, 0, len(caseStudyLibrary))
	for _, cs := range caseStudyLibrary {
		score := 0
		var reasons []string

		if strings.EqualFold(cs.Vertical, vertical) {
			score += 40
			reasons = append(reasons, "same vertical ("+cs.Vertical+")")
		}
		for _, tech := range cs.Technologies {
			if containsAny(strings.Join(partnerTechs, " "), tech) {
				score += 30
				reasons = append(reasons, "shared platform ("+tech+")")
				break
			}
		}
		if cs.ScaleTier == trafficTier && trafficTier != "" {
			score += 20
			reasons = append(reasons, "comparable traffic scale ("+cs.ScaleTier+")")
		}
		if len(cs.UseCases) > 0 {
			score += 10
			reasons = append(reasons, "relevant use case ("+cs.UseCases[0]+")")
		}

		if score <= 10 {
			continue
		}
		matches = append(matches, CaseStudyMatch{
			CaseStudy: cs,
			Score:     score,
			Reason:    fmt.Sprintf("%s: %s", cs.Customer, strings.Join(reasons, "; ")),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > 5 {
		matches = matches[:5]
	}
	return matches
}

// CaseStudyMatching (M12) ranks the reference library against the target.
// Pure transform over M01, M02, and optionally M03.
type CaseStudyMatching struct {
	base
	deps Deps
}

// NewCaseStudyMatching builds M12.
func NewCaseStudyMatching(deps Deps) *CaseStudyMatching {
	return &CaseStudyMatching{
		base: base{
			id:         enrich.M12CaseStudyMatching,
			name:       "Case Study Matching",
			sourceType: citation.SourceManual,
		},
		deps: deps,
	}
}

// Execute ranks case studies by vertical, technology, scale, and use case.
func (m *CaseStudyMatching) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	company, err := deps.Require(m.id, enrich.M01CompanyContext)
	if err != nil {
		return nil, err
	}
	companyPayload, err := enrich.DecodePayload[CompanyPayload](company.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	tech, err := deps.Require(m.id, enrich.M02TechnologyStack)
	if err != nil {
		return nil, err
	}
	techPayload, err := enrich.DecodePayload[TechStackPayload](tech.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	tier := ""
	if traffic := deps.Get(enrich.M03TrafficAnalysis); traffic.Succeeded() {
		if tp, derr := enrich.DecodePayload[TrafficPayload](traffic.Data); derr == nil {
			tier = tp.TrafficTier
		}
	}

	payload := &CaseStudyPayload{
		Matches: matchCaseStudies(companyPayload.Vertical, techPayload.PartnerTechnologies, tier),
	}
	if payload.Matches == nil {
		payload.Matches = []CaseStudyMatch{}
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, company.PrimaryCitation, tech.PrimaryCitation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M12's schema.
func (m *CaseStudyMatching) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[CaseStudyPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	for _, match := range payload.Matches {
		if match.Reason == "" {
			return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("match reason")}
		}
	}
	return nil
}
