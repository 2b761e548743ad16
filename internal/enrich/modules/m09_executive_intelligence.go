package modules

import (
	"context"
	"strings"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// Buyer roles classified from title keywords.
const (
	RoleExecutiveSponsor = "Executive Sponsor"
	RoleEconomicBuyer    = "Economic Buyer"
	RoleTechnicalBuyer   = "Technical Buyer"
	RoleChampion         = "Champion"
	RoleUserBuyer        = "User Buyer"
	RoleUnknown          = "Unknown"
)

// newToRoleMonths is the tenure ceiling for the new-to-role flag.
const newToRoleMonths = 18

// QuoteProductMapping ties a verbatim executive quote to the product line it
// speaks to, keeping the original attribution.
type QuoteProductMapping struct {
	Quote        string `json:"quote"`
	SpeakerName  string `json:"speaker_name"`
	SpeakerTitle string `json:"speaker_title"`
	Product      string `json:"product"`
	SourceURL    string `json:"source_url"`
}

// ExecutiveProfile is one person with their classified buyer role.
type ExecutiveProfile struct {
	Name                  string                `json:"name"`
	Title                 string                `json:"title"`
	BuyerRole             string                `json:"buyer_role"`
	TenureMonths          int                   `json:"tenure_months,omitempty"`
	NewToRole             bool                  `json:"new_to_role"`
	QuoteToProductMapping []QuoteProductMapping `json:"quote_to_product_mapping,omitempty"`
}

// ExecutivePayload is M09's typed output.
type ExecutivePayload struct {
	Executives []ExecutiveProfile `json:"executives"`
}

// classifyBuyerRole maps a title onto the buyer roles. Order matters: the
// specific functional roles win over the generic executive bucket.
func classifyBuyerRole(title string) string {
	switch {
	case containsAny(title, "cfo", "chief financial", "finance"):
		return RoleEconomicBuyer
	case containsAny(title, "cto", "cio", "chief technology", "chief information", "engineering", "architect", "it"):
		return RoleTechnicalBuyer
	case containsAny(title, "ecommerce", "e-commerce", "digital", "search", "product", "merchandising", "cdo", "cpo"):
		if containsAny(title, "vp", "vice president", "director", "head of", "chief") {
			return RoleChampion
		}
		return RoleUserBuyer
	case containsAny(title, "ceo", "chief executive", "president", "founder", "coo", "chief operating"):
		return RoleExecutiveSponsor
	case containsAny(title, "manager", "analyst", "specialist", "merchandiser"):
		return RoleUserBuyer
	default:
		return RoleUnknown
	}
}

// productFor maps quote language to the product line it speaks to. Empty
// means no mapping.
func productFor(quote string) string {
	switch {
	case containsAny(quote, "search", "findability", "product discovery"):
		return "Search"
	case containsAny(quote, "personalization", "recommend", "recommendation", "recommendations"):
		return "Recommend"
	case containsAny(quote, "ai", "machine learning", "artificial intelligence"):
		return "AI Search"
	case containsAny(quote, "analytics", "insight", "insights"):
		return "Analytics"
	default:
		return ""
	}
}

// mapQuotesToExecutives attaches M08 quotes to the matching executive by
// speaker name, translating quote language into product terms.
func mapQuotesToExecutives(executives []ExecutiveProfile, quotes []ExecutiveQuote) {
	for i := range executives {
		for _, q := range quotes {
			if !strings.EqualFold(q.SpeakerName, executives[i].Name) {
				continue
			}
			product := productFor(q.Quote)
			if product == "" {
				continue
			}
			executives[i].QuoteToProductMapping = append(executives[i].QuoteToProductMapping, QuoteProductMapping{
				Quote:        q.Quote,
				SpeakerName:  q.SpeakerName,
				SpeakerTitle: q.SpeakerTitle,
				Product:      product,
				SourceURL:    q.SourceURL,
			})
		}
	}
}

// ExecutiveIntelligence (M09) profiles the people who would buy.
type ExecutiveIntelligence struct {
	base
	deps Deps
}

// NewExecutiveIntelligence builds M09.
func NewExecutiveIntelligence(deps Deps) *ExecutiveIntelligence {
	return &ExecutiveIntelligence{
		base: base{
			id:         enrich.M09ExecutiveIntelligence,
			name:       "Executive Intelligence",
			sourceType: citation.SourcePeopleNetwork,
		},
		deps: deps,
	}
}

// Execute pulls the leadership roster, classifies buyer roles and tenure, and
// inherits product-mapped quotes from M08 when it succeeded.
func (m *ExecutiveIntelligence) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	resp, err := m.deps.Clients.People.CallWaiting(ctx, "/people", map[string]string{"domain": domain}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	var executives []ExecutiveProfile
	for _, person := range AsDoc(resp.Value).List("people") {
		name := person.Str("name")
		title := person.Str("title")
		if name == "" || title == "" {
			continue
		}
		tenure := int(person.Num("tenure_months"))
		executives = append(executives, ExecutiveProfile{
			Name:         name,
			Title:        title,
			BuyerRole:    classifyBuyerRole(title),
			TenureMonths: tenure,
			NewToRole:    tenure > 0 && tenure < newToRoleMonths,
		})
	}
	if executives == nil {
		executives = []ExecutiveProfile{}
	}

	// M08 runs in the same wave; its quotes attach only when the scheduler
	// happened to finish it first.
	if investor := deps.Get(enrich.M08InvestorIntelligence); investor.Succeeded() {
		if ip, derr := enrich.DecodePayload[InvestorPayload](investor.Data); derr == nil {
			mapQuotesToExecutives(executives, ip.Quotes)
		}
	}

	result, err := enrich.NewSuccess(m.id, domain, &ExecutivePayload{Executives: executives}, resp.Citation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = resp.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M09's schema.
func (m *ExecutiveIntelligence) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[ExecutivePayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	for _, exec := range payload.Executives {
		switch exec.BuyerRole {
		case RoleExecutiveSponsor, RoleEconomicBuyer, RoleTechnicalBuyer, RoleChampion, RoleUserBuyer, RoleUnknown:
		default:
			return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("buyer_role")}
		}
		for _, qm := range exec.QuoteToProductMapping {
			if qm.SourceURL == "" {
				return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("quote_to_product_mapping.source_url")}
			}
		}
	}
	return nil
}
