package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// Priority bands shared by M13 and M14.
const (
	PriorityHot  = "hot"
	PriorityWarm = "warm"
	PriorityCool = "cool"
	PriorityCold = "cold"
)

// ICP tiers by vertical.
const (
	TierCommerce = 1
	TierContent  = 2
	TierSupport  = 3
)

// ScoreBreakdown is the four weighted components. Their sum is the lead
// score.
type ScoreBreakdown struct {
	Vertical    int `json:"vertical"`     // max 40
	Traffic     int `json:"traffic"`      // max 30
	TechSpend   int `json:"tech_spend"`   // max 20
	PartnerTech int `json:"partner_tech"` // max 10
}

// Sum adds the components.
func (b ScoreBreakdown) Sum() int {
	return b.Vertical + b.Traffic + b.TechSpend + b.PartnerTech
}

// IcpPayload is M13's typed output.
type IcpPayload struct {
	LeadScore      int            `json:"lead_score"`
	ScoreBreakdown ScoreBreakdown `json:"score_breakdown"`
	IcpTier        int            `json:"icp_tier"`
	PriorityStatus string         `json:"priority_status"`
	MarginZone     string         `json:"margin_zone,omitempty"`
	FirstMover     bool           `json:"first_mover,omitempty"`
}

// icpTierFor maps the vertical onto the three ICP tiers.
func icpTierFor(vertical string) int {
	switch {
	case containsAny(vertical, "commerce", "retail", "marketplace"):
		return TierCommerce
	case containsAny(vertical, "content", "media", "publishing"):
		return TierContent
	default:
		return TierSupport
	}
}

// verticalComponent is the tier's share of the 40-point vertical weight.
func verticalComponent(tier int) int {
	switch tier {
	case TierCommerce:
		return 40
	case TierContent:
		return 28
	default:
		return 16
	}
}

// techSpendComponent maps the spend tier onto the 20-point weight.
func techSpendComponent(spendTier string) int {
	switch spendTier {
	case "100k+":
		return 20
	case "50-100k":
		return 15
	case "25-50k":
		return 10
	case "10-25k":
		return 5
	default:
		return 0
	}
}

// partnerTechComponent is 10 with any partner platform present, 0 otherwise.
func partnerTechComponent(partnerTechs []string) int {
	if len(partnerTechs) > 0 {
		return 10
	}
	return 0
}

// priorityBand applies the shared hot/warm/cool/cold banding.
func priorityBand(score int) string {
	switch {
	case score >= 80:
		return PriorityHot
	case score >= 60:
		return PriorityWarm
	case score >= 40:
		return PriorityCool
	default:
		return PriorityCold
	}
}

// IcpPriorityMapping (M13) computes the composite ICP lead score. Pure
// transform over wave 1-2 outputs.
type IcpPriorityMapping struct {
	base
	deps Deps
}

// NewIcpPriorityMapping builds M13.
func NewIcpPriorityMapping(deps Deps) *IcpPriorityMapping {
	return &IcpPriorityMapping{
		base: base{
			id:         enrich.M13IcpPriorityMapping,
			name:       "ICP Priority Mapping",
			sourceType: citation.SourceManual,
		},
		deps: deps,
	}
}

// Execute combines vertical, traffic, spend, and partner components.
func (m *IcpPriorityMapping) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
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
	traffic, err := deps.Require(m.id, enrich.M03TrafficAnalysis)
	if err != nil {
		return nil, err
	}
	trafficPayload, err := enrich.DecodePayload[TrafficPayload](traffic.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	finance, err := deps.Require(m.id, enrich.M04FinancialProfile)
	if err != nil {
		return nil, err
	}
	financePayload, err := enrich.DecodePayload[FinancePayload](finance.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	competitors, err := deps.Require(m.id, enrich.M05CompetitorIntelligence)
	if err != nil {
		return nil, err
	}
	competitorPayload, err := enrich.DecodePayload[CompetitorPayload](competitors.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	tier := icpTierFor(companyPayload.Vertical)
	breakdown := ScoreBreakdown{
		Vertical:    verticalComponent(tier),
		Traffic:     trafficPayload.ICPScoreContribution,
		TechSpend:   techSpendComponent(techPayload.TechSpendTier),
		PartnerTech: partnerTechComponent(techPayload.PartnerTechnologies),
	}

	payload := &IcpPayload{
		LeadScore:      breakdown.Sum(),
		ScoreBreakdown: breakdown,
		IcpTier:        tier,
		PriorityStatus: priorityBand(breakdown.Sum()),
		MarginZone:     financePayload.MarginZone,
		FirstMover:     competitorPayload.FirstMoverOpportunity,
	}

	result, err := enrich.NewSuccess(m.id, domain, payload,
		company.PrimaryCitation, tech.PrimaryCitation, traffic.PrimaryCitation,
		finance.PrimaryCitation, competitors.PrimaryCitation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M13's schema, including the breakdown-sum
// invariant.
func (m *IcpPriorityMapping) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[IcpPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	if payload.LeadScore < 0 || payload.LeadScore > 100 {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("lead_score out of range")}
	}
	diff := payload.ScoreBreakdown.Sum() - payload.LeadScore
	if diff < -1 || diff > 1 {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("score_breakdown does not sum to lead_score")}
	}
	switch payload.PriorityStatus {
	case PriorityHot, PriorityWarm, PriorityCool, PriorityCold:
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("priority_status")}
	}
	switch payload.IcpTier {
	case TierCommerce, TierContent, TierSupport:
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("icp_tier")}
	}
	return nil
}
