package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// CompositeScore is the three-stage composite.
type CompositeScore struct {
	Raw      int `json:"raw"`
	Adjusted int `json:"adjusted"`
	Final    int `json:"final"`
}

// SignalQuality summarizes signal coverage.
type SignalQuality struct {
	HasAllThree bool `json:"has_all_three"`
}

// SignalPayload is M14's typed output.
type SignalPayload struct {
	BudgetScore    int            `json:"budget_score"`
	PainScore      int            `json:"pain_score"`
	TimingScore    int            `json:"timing_score"`
	NegativeCount  int            `json:"negative_count"`
	Composite      CompositeScore `json:"composite"`
	SignalQuality  SignalQuality  `json:"signal_quality"`
	PriorityStatus string         `json:"priority_status"`
}

// budgetSignal scores willingness-to-spend evidence: senior digital hires
// and public investment commitments.
func budgetSignal(hiring *HiringPayload, investor *InvestorPayload) int {
	score := 0
	if hiring != nil {
		score += hiring.Tier1Count * 15
		if hiring.AIInvestmentSignal {
			score += 10
		}
	}
	if investor != nil {
		score += len(investor.Commitments) * 10
	}
	return clampInt(score, 0, 40)
}

// painSignal scores acknowledged problems: search-relevant risk factors and
// an explicit search priority.
func painSignal(investor *InvestorPayload, strategic *StrategicPayload) int {
	score := 0
	if investor != nil {
		score += len(investor.RiskFactors) * 10
		switch investor.SearchPriorityLevel {
		case SearchPriorityHigh:
			score += 30
		case SearchPriorityMedium:
			score += 15
		}
	}
	if strategic != nil {
		score += len(strategic.Initiatives) * 5
	}
	return clampInt(score, 0, 40)
}

// timingSignal maps the M07 timing assessment onto the 0-40 axis.
func timingSignal(strategic *StrategicPayload) int {
	if strategic == nil {
		return 0
	}
	return clampInt(strategic.Timing.Score-40, 0, 40)
}

// composite applies the raw -> adjusted -> final pipeline: negatives cost 10
// each, the cap is 100, and the final blends equally with the ICP lead score
// when one exists.
func composite(budget, pain, timing, negatives int, icp *IcpPayload) CompositeScore {
	raw := clampInt(budget+pain+timing, 0, 100)
	adjusted := clampInt(raw-10*negatives, 0, 100)
	final := adjusted
	if icp != nil {
		final = (adjusted + icp.LeadScore) / 2
	}
	return CompositeScore{Raw: raw, Adjusted: adjusted, Final: final}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SignalScoring (M14) aggregates budget, pain, timing, and negative signals
// into the composite score. Pure transform over wave 2-3 outputs.
type SignalScoring struct {
	base
	deps Deps
}

// NewSignalScoring builds M14.
func NewSignalScoring(deps Deps) *SignalScoring {
	return &SignalScoring{
		base: base{
			id:         enrich.M14SignalScoring,
			name:       "Signal Scoring",
			sourceType: citation.SourceManual,
		},
		deps: deps,
	}
}

// Execute aggregates across M06, M07, M08, and M13 when it finished first.
func (m *SignalScoring) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	hiring, err := deps.Require(m.id, enrich.M06HiringSignals)
	if err != nil {
		return nil, err
	}
	hiringPayload, err := enrich.DecodePayload[HiringPayload](hiring.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	strategic, err := deps.Require(m.id, enrich.M07StrategicContext)
	if err != nil {
		return nil, err
	}
	strategicPayload, err := enrich.DecodePayload[StrategicPayload](strategic.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	investor, err := deps.Require(m.id, enrich.M08InvestorIntelligence)
	if err != nil {
		return nil, err
	}
	investorPayload, err := enrich.DecodePayload[InvestorPayload](investor.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	// M13 runs in the same wave; blend it in only when it finished first.
	var icpPayload *IcpPayload
	if icp := deps.Get(enrich.M13IcpPriorityMapping); icp.Succeeded() {
		if ip, derr := enrich.DecodePayload[IcpPayload](icp.Data); derr == nil {
			icpPayload = ip
		}
	}

	budget := budgetSignal(hiringPayload, investorPayload)
	pain := painSignal(investorPayload, strategicPayload)
	timing := timingSignal(strategicPayload)
	negatives := len(strategicPayload.CautionSignals)
	comp := composite(budget, pain, timing, negatives, icpPayload)

	payload := &SignalPayload{
		BudgetScore:    budget,
		PainScore:      pain,
		TimingScore:    timing,
		NegativeCount:  negatives,
		Composite:      comp,
		SignalQuality:  SignalQuality{HasAllThree: budget > 0 && pain > 0 && timing > 0},
		PriorityStatus: priorityBand(comp.Final),
	}

	result, err := enrich.NewSuccess(m.id, domain, payload,
		strategic.PrimaryCitation, hiring.PrimaryCitation, investor.PrimaryCitation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M14's schema.
func (m *SignalScoring) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[SignalPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	for _, v := range []int{payload.Composite.Raw, payload.Composite.Adjusted, payload.Composite.Final} {
		if v < 0 || v > 100 {
			return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("composite out of range")}
		}
	}
	switch payload.PriorityStatus {
	case PriorityHot, PriorityWarm, PriorityCool, PriorityCold:
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("priority_status")}
	}
	return nil
}
