package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// DetectedTechnology is one fingerprinted technology.
type DetectedTechnology struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	FirstSeen  string  `json:"first_seen,omitempty"`
	LastSeen   string  `json:"last_seen,omitempty"`
}

// TechStackPayload is M02's typed output.
type TechStackPayload struct {
	Technologies         []DetectedTechnology `json:"technologies"`
	SearchProvider       string               `json:"search_provider"`
	HasAlgolia           bool                 `json:"has_algolia"`
	PartnerTechnologies  []string             `json:"partner_technologies"`
	DisplacementPriority string               `json:"displacement_priority"`
	TechSpendTier        string               `json:"tech_spend_tier"`
	EstAnnualTechSpend   float64              `json:"est_annual_tech_spend,omitempty"`
}

// Search provider classes.
const (
	ProviderAlgolia    = "algolia"
	ProviderCompetitor = "competitor"
	ProviderNative     = "native"
	ProviderUnknown    = "unknown"
)

// competitorSearchEngines are named enterprise search ISV/OSS products.
var competitorSearchEngines = []string{
	"elasticsearch", "elastic", "coveo", "constructor", "searchspring",
	"bloomreach", "lucidworks", "attraqt", "klevu", "solr",
}

// nativePlatformSearch are search features bundled with commerce platforms.
var nativePlatformSearch = []string{
	"shopify search", "magento search", "salesforce commerce search",
	"bigcommerce search", "woocommerce search",
}

// partnerTechTable are co-sell partner technologies worth flagging.
var partnerTechTable = []string{
	"shopify", "salesforce commerce cloud", "adobe commerce", "magento",
	"commercetools", "bigcommerce", "sap commerce", "contentful", "amplience",
}

// classifySearchProvider maps detected technology names onto the provider
// classes.
func classifySearchProvider(techs []DetectedTechnology) string {
	for _, t := range techs {
		if containsAny(t.Name, "algolia") {
			return ProviderAlgolia
		}
	}
	for _, t := range techs {
		for _, comp := range competitorSearchEngines {
			if containsAny(t.Name, comp) {
				return ProviderCompetitor
			}
		}
	}
	for _, t := range techs {
		for _, native := range nativePlatformSearch {
			if containsAny(t.Name, native) {
				return ProviderNative
			}
		}
	}
	return ProviderUnknown
}

// namedSearchEngine returns the first named competitor search engine among
// the detections, or empty when none is present.
func namedSearchEngine(techs []DetectedTechnology) string {
	for _, t := range techs {
		for _, comp := range competitorSearchEngines {
			if containsAny(t.Name, comp) {
				return comp
			}
		}
	}
	return ""
}

// displacementPriorityFor is the provider -> priority table: already on
// algolia means nothing to displace; a named competitor is the strongest
// target.
func displacementPriorityFor(searchProvider string) string {
	switch searchProvider {
	case ProviderAlgolia:
		return "NONE"
	case ProviderCompetitor:
		return "HIGH"
	case ProviderNative:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// techSpendTier buckets estimated annual tech spend.
func techSpendTier(annualUSD float64) string {
	switch {
	case annualUSD <= 0:
		return "unknown"
	case annualUSD >= 100_000:
		return "100k+"
	case annualUSD >= 50_000:
		return "50-100k"
	case annualUSD >= 25_000:
		return "25-50k"
	case annualUSD >= 10_000:
		return "10-25k"
	default:
		return "<10k"
	}
}

// matchPartnerTechnologies intersects detections with the partner table.
func matchPartnerTechnologies(techs []DetectedTechnology) []string {
	var matches []string
	seen := map[string]bool{}
	for _, t := range techs {
		for _, partner := range partnerTechTable {
			if containsAny(t.Name, partner) && !seen[partner] {
				seen[partner] = true
				matches = append(matches, partner)
			}
		}
	}
	if matches == nil {
		matches = []string{}
	}
	return matches
}

// TechnologyStack (M02) fingerprints the domain's technology stack.
type TechnologyStack struct {
	base
	deps Deps
}

// NewTechnologyStack builds M02.
func NewTechnologyStack(deps Deps) *TechnologyStack {
	return &TechnologyStack{
		base: base{
			id:         enrich.M02TechnologyStack,
			name:       "Technology Stack",
			sourceType: citation.SourceTechFingerprint,
		},
		deps: deps,
	}
}

// Execute fingerprints and derives the search landscape facts.
func (m *TechnologyStack) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	resp, err := m.deps.Clients.TechFingerprint.CallWaiting(ctx, "/technologies", map[string]string{"domain": domain}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	doc := AsDoc(resp.Value)

	var techs []DetectedTechnology
	for _, t := range doc.List("technologies") {
		techs = append(techs, DetectedTechnology{
			Name:       t.Str("name"),
			Category:   t.Str("category"),
			Confidence: clamp01(t.Num("confidence")),
			FirstSeen:  t.Str("first_seen"),
			LastSeen:   t.Str("last_seen"),
		})
	}
	if techs == nil {
		techs = []DetectedTechnology{}
	}

	provider := classifySearchProvider(techs)
	spend := doc.Num("est_annual_spend_usd")
	payload := &TechStackPayload{
		Technologies:         techs,
		SearchProvider:       provider,
		HasAlgolia:           provider == ProviderAlgolia,
		PartnerTechnologies:  matchPartnerTechnologies(techs),
		DisplacementPriority: displacementPriorityFor(provider),
		TechSpendTier:        techSpendTier(spend),
		EstAnnualTechSpend:   spend,
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, resp.Citation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = resp.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M02's schema.
func (m *TechnologyStack) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[TechStackPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	switch payload.SearchProvider {
	case ProviderAlgolia, ProviderCompetitor, ProviderNative, ProviderUnknown:
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("search_provider " + payload.SearchProvider)}
	}
	switch payload.DisplacementPriority {
	case "NONE", "HIGH", "MEDIUM", "LOW":
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("displacement_priority")}
	}
	return nil
}
