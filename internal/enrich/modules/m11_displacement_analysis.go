package modules

import (
	"context"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// Displacement priorities.
const (
	DisplacementHigh   = "HIGH"
	DisplacementMedium = "MEDIUM"
	DisplacementLow    = "LOW"
	DisplacementNA     = "N/A"
)

// FitScore is the three-axis 0-10 fit assessment.
type FitScore struct {
	Technical float64 `json:"technical"`
	Business  float64 `json:"business"`
	Timing    float64 `json:"timing"`
	Overall   float64 `json:"overall"`
}

// DisplacementPayload is M11's typed output.
type DisplacementPayload struct {
	CurrentProvider        string   `json:"current_provider"`
	DisplacementDifficulty string   `json:"displacement_difficulty"`
	PartnerCoSell          []string `json:"partner_co_sell"`
	AlgoliaFitScore        FitScore `json:"algolia_fit_score"`
	DisplacementPriority   string   `json:"displacement_priority"`
}

// displacementDifficulty is the provider -> difficulty table. A named
// competitor means an incumbent contract to break; native search is the
// softest target.
func displacementDifficulty(provider string) string {
	switch provider {
	case ProviderAlgolia:
		return "N/A"
	case ProviderCompetitor:
		return "HARD"
	case ProviderNative:
		return "EASY"
	default:
		return "MODERATE"
	}
}

// fitScore computes the three 0-10 axes and their mean.
func fitScore(tech TechStackPayload, competitors *CompetitorPayload) FitScore {
	var s FitScore

	// Technical: partner-platform presence plus a displaceable provider.
	s.Technical = 3
	s.Technical += float64(min(len(tech.PartnerTechnologies), 3)) * 2
	if tech.SearchProvider == ProviderCompetitor || tech.SearchProvider == ProviderNative {
		s.Technical++
	}

	// Business: spend tier as a budget proxy.
	switch tech.TechSpendTier {
	case "100k+":
		s.Business = 9
	case "50-100k":
		s.Business = 7
	case "25-50k":
		s.Business = 5
	case "10-25k":
		s.Business = 4
	case "<10k":
		s.Business = 2
	default:
		s.Business = 3
	}

	// Timing: competitive pressure from the landscape.
	s.Timing = 5
	if competitors != nil {
		if competitors.FirstMoverOpportunity {
			s.Timing += 2
		}
		if competitors.Tally.AlgoliaUsers > 0 {
			s.Timing += 1
		}
	}

	s.Technical = clamp10(s.Technical)
	s.Business = clamp10(s.Business)
	s.Timing = clamp10(s.Timing)
	s.Overall = (s.Technical + s.Business + s.Timing) / 3
	return s
}

// displacementPriority folds provider class and fit into the final priority.
func displacementPriority(provider string, fit FitScore) string {
	if provider == ProviderAlgolia {
		return DisplacementNA
	}
	switch {
	case provider == ProviderCompetitor && fit.Overall >= 5:
		return DisplacementHigh
	case provider == ProviderNative || fit.Overall >= 5:
		return DisplacementMedium
	default:
		return DisplacementLow
	}
}

func clamp10(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// DisplacementAnalysis (M11) assesses how displaceable the current search
// provider is. Pure transform over M02 and M05.
type DisplacementAnalysis struct {
	base
	deps Deps
}

// NewDisplacementAnalysis builds M11.
func NewDisplacementAnalysis(deps Deps) *DisplacementAnalysis {
	return &DisplacementAnalysis{
		base: base{
			id:         enrich.M11DisplacementAnalysis,
			name:       "Displacement Analysis",
			sourceType: citation.SourceTechFingerprint,
		},
		deps: deps,
	}
}

// Execute derives the displacement assessment from the fingerprinted stack
// and, when present, the competitive landscape.
func (m *DisplacementAnalysis) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	tech, err := deps.Require(m.id, enrich.M02TechnologyStack)
	if err != nil {
		return nil, err
	}
	techPayload, err := enrich.DecodePayload[TechStackPayload](tech.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	var competitorPayload *CompetitorPayload
	supporting := []*citation.SourceCitation{}
	if competitors := deps.Get(enrich.M05CompetitorIntelligence); competitors.Succeeded() {
		if cp, derr := enrich.DecodePayload[CompetitorPayload](competitors.Data); derr == nil {
			competitorPayload = cp
			supporting = append(supporting, competitors.PrimaryCitation)
		}
	}

	fit := fitScore(*techPayload, competitorPayload)
	payload := &DisplacementPayload{
		CurrentProvider:        techPayload.SearchProvider,
		DisplacementDifficulty: displacementDifficulty(techPayload.SearchProvider),
		PartnerCoSell:          techPayload.PartnerTechnologies,
		AlgoliaFitScore:        fit,
		DisplacementPriority:   displacementPriority(techPayload.SearchProvider, fit),
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, tech.PrimaryCitation, supporting...)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M11's schema.
func (m *DisplacementAnalysis) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[DisplacementPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	switch payload.DisplacementPriority {
	case DisplacementHigh, DisplacementMedium, DisplacementLow, DisplacementNA:
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("displacement_priority")}
	}
	fit := payload.AlgoliaFitScore
	for _, axis := range []float64{fit.Technical, fit.Business, fit.Timing, fit.Overall} {
		if axis < 0 || axis > 10 {
			return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("algolia_fit_score out of range")}
		}
	}
	return nil
}
