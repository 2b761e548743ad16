// Package modules implements the fifteen intelligence modules M01..M15.
// Each module fetches through the shared source adapters, derives its typed
// payload with pure transforms, and emits a fully cited result envelope.
package modules

import (
	"time"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
	"github.com/leadscope/enrich/internal/sources"
)

// Deps are the shared collaborators injected into every module.
type Deps struct {
	Clients *sources.Clients
}

// base carries the declarative module attributes.
type base struct {
	id         string
	name       string
	sourceType citation.SourceType
	timeout    time.Duration
}

func (b base) ID() string                                  { return b.id }
func (b base) Name() string                                { return b.name }
func (b base) Wave() int                                   { return enrich.WaveOf(b.id) }
func (b base) DependsOn() []string                         { return enrich.Dependencies[b.id] }
func (b base) PrimarySourceType() citation.SourceType      { return b.sourceType }
func (b base) Timeout() time.Duration {
	if b.timeout > 0 {
		return b.timeout
	}
	return enrich.DefaultModuleTimeout
}

// requireAll checks every declared dependency before upstream I/O.
func requireAll(id string, deps enrich.Context) error {
	for _, dep := range enrich.Dependencies[id] {
		if _, err := deps.Require(id, dep); err != nil {
			return err
		}
	}
	return nil
}

// validateCommon is the shared portion of every ValidateOutput.
func validateCommon(result *enrich.Result) error {
	return enrich.ValidateResult(result)
}

// RegisterAll installs every module factory on the registry.
func RegisterAll(registry *enrich.Registry, deps Deps) {
	registry.MustRegister(enrich.M01CompanyContext, func() enrich.Module { return NewCompanyContext(deps) })
	registry.MustRegister(enrich.M02TechnologyStack, func() enrich.Module { return NewTechnologyStack(deps) })
	registry.MustRegister(enrich.M03TrafficAnalysis, func() enrich.Module { return NewTrafficAnalysis(deps) })
	registry.MustRegister(enrich.M04FinancialProfile, func() enrich.Module { return NewFinancialProfile(deps) })
	registry.MustRegister(enrich.M05CompetitorIntelligence, func() enrich.Module { return NewCompetitorIntelligence(deps) })
	registry.MustRegister(enrich.M06HiringSignals, func() enrich.Module { return NewHiringSignals(deps) })
	registry.MustRegister(enrich.M07StrategicContext, func() enrich.Module { return NewStrategicContext(deps) })
	registry.MustRegister(enrich.M08InvestorIntelligence, func() enrich.Module { return NewInvestorIntelligence(deps) })
	registry.MustRegister(enrich.M09ExecutiveIntelligence, func() enrich.Module { return NewExecutiveIntelligence(deps) })
	registry.MustRegister(enrich.M10BuyingCommittee, func() enrich.Module { return NewBuyingCommittee(deps) })
	registry.MustRegister(enrich.M11DisplacementAnalysis, func() enrich.Module { return NewDisplacementAnalysis(deps) })
	registry.MustRegister(enrich.M12CaseStudyMatching, func() enrich.Module { return NewCaseStudyMatching(deps) })
	registry.MustRegister(enrich.M13IcpPriorityMapping, func() enrich.Module { return NewIcpPriorityMapping(deps) })
	registry.MustRegister(enrich.M14SignalScoring, func() enrich.Module { return NewSignalScoring(deps) })
	registry.MustRegister(enrich.M15StrategicBrief, func() enrich.Module { return NewStrategicBrief(deps) })
}
