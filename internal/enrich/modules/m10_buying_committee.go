package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// CommitteeSlot is one of the four named committee positions.
type CommitteeSlot struct {
	Role   string            `json:"role"`
	Person *ExecutiveProfile `json:"person,omitempty"`
	Filled bool              `json:"filled"`
}

// CommitteePayload is M10's typed output.
type CommitteePayload struct {
	Slots                      []CommitteeSlot    `json:"slots"`
	UserBuyers                 []ExecutiveProfile `json:"user_buyers"`
	TechnicalEvaluators        []ExecutiveProfile `json:"technical_evaluators"`
	CommitteeCompletenessScore float64            `json:"committee_completeness_score"`
	EngagementReadinessScore   float64            `json:"engagement_readiness_score"`
	EngagementSequence         []string           `json:"engagement_sequence"`
}

// committeeSlotRoles fixes the four slots and their order.
var committeeSlotRoles = []string{RoleChampion, RoleTechnicalBuyer, RoleEconomicBuyer, RoleExecutiveSponsor}

// projectCommittee fills the four slots from the executive roster, first
// match per role wins.
func projectCommittee(executives []ExecutiveProfile) []CommitteeSlot {
	slots := make([]CommitteeSlot, 0, len(committeeSlotRoles))
	for _, role := range committeeSlotRoles {
		slot := CommitteeSlot{Role: role}
		for i := range executives {
			if executives[i].BuyerRole == role {
				person := executives[i]
				slot.Person = &person
				slot.Filled = true
				break
			}
		}
		slots = append(slots, slot)
	}
	return slots
}

// engagementSequence orders the filled slots Champion, Technical Buyer,
// Economic Buyer, Executive Sponsor, skipping empty slots.
func engagementSequence(slots []CommitteeSlot) []string {
	seq := []string{}
	for _, slot := range slots {
		if slot.Filled {
			seq = append(seq, slot.Person.Name)
		}
	}
	return seq
}

// readinessScore is the fixed additive rule over committee composition.
func readinessScore(slots []CommitteeSlot, sequenceLen int) float64 {
	filled := map[string]bool{}
	for _, slot := range slots {
		if slot.Filled {
			filled[slot.Role] = true
		}
	}
	score := 0.0
	if filled[RoleChampion] {
		score += 0.4
	}
	if sequenceLen >= 2 {
		score += 0.3
	}
	if filled[RoleTechnicalBuyer] {
		score += 0.2
	}
	if filled[RoleEconomicBuyer] {
		score += 0.1
	}
	return score
}

// BuyingCommittee (M10) projects the executive roster into a four-slot
// committee with readiness scoring. Pure transform, no upstream calls.
type BuyingCommittee struct {
	base
	deps Deps
}

// NewBuyingCommittee builds M10.
func NewBuyingCommittee(deps Deps) *BuyingCommittee {
	return &BuyingCommittee{
		base: base{
			id:         enrich.M10BuyingCommittee,
			name:       "Buying Committee",
			sourceType: citation.SourcePeopleNetwork,
		},
		deps: deps,
	}
}

// Execute derives the committee from M09's roster.
func (m *BuyingCommittee) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	executive, err := deps.Require(m.id, enrich.M09ExecutiveIntelligence)
	if err != nil {
		return nil, err
	}
	executivePayload, err := enrich.DecodePayload[ExecutivePayload](executive.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	slots := projectCommittee(executivePayload.Executives)
	filled := 0
	for _, slot := range slots {
		if slot.Filled {
			filled++
		}
	}
	sequence := engagementSequence(slots)

	userBuyers := []ExecutiveProfile{}
	technicalEvaluators := []ExecutiveProfile{}
	for _, exec := range executivePayload.Executives {
		switch exec.BuyerRole {
		case RoleUserBuyer:
			userBuyers = append(userBuyers, exec)
		case RoleTechnicalBuyer:
			technicalEvaluators = append(technicalEvaluators, exec)
		}
	}

	payload := &CommitteePayload{
		Slots:                      slots,
		UserBuyers:                 userBuyers,
		TechnicalEvaluators:        technicalEvaluators,
		CommitteeCompletenessScore: float64(filled) / float64(len(committeeSlotRoles)),
		EngagementReadinessScore:   readinessScore(slots, len(sequence)),
		EngagementSequence:         sequence,
	}

	// Derived module: the primary citation is inherited from the roster it
	// projects.
	result, err := enrich.NewSuccess(m.id, domain, payload, executive.PrimaryCitation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M10's schema.
func (m *BuyingCommittee) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[CommitteePayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	if len(payload.Slots) != len(committeeSlotRoles) {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("slots")}
	}
	if payload.CommitteeCompletenessScore < 0 || payload.CommitteeCompletenessScore > 1 {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("committee_completeness_score out of range")}
	}
	if payload.EngagementReadinessScore < 0 || payload.EngagementReadinessScore > 1 {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("engagement_readiness_score out of range")}
	}
	return nil
}
