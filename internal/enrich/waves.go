package enrich

import "time"

// Canonical module ids.
const (
	M01CompanyContext         = "m01_company_context"
	M02TechnologyStack        = "m02_technology_stack"
	M03TrafficAnalysis        = "m03_traffic_analysis"
	M04FinancialProfile       = "m04_financial_profile"
	M05CompetitorIntelligence = "m05_competitor_intelligence"
	M06HiringSignals          = "m06_hiring_signals"
	M07StrategicContext       = "m07_strategic_context"
	M08InvestorIntelligence   = "m08_investor_intelligence"
	M09ExecutiveIntelligence  = "m09_executive_intelligence"
	M10BuyingCommittee        = "m10_buying_committee"
	M11DisplacementAnalysis   = "m11_displacement_analysis"
	M12CaseStudyMatching      = "m12_case_study_matching"
	M13IcpPriorityMapping     = "m13_icp_priority_mapping"
	M14SignalScoring          = "m14_signal_scoring"
	M15StrategicBrief         = "m15_strategic_brief"
)

// Waves is the static four-layer execution plan. Dependencies of m15 expand
// to every other module at plan time. A prerequisite may share its
// dependent's wave (m10 needs m09; m15 needs everything); the scheduler
// sub-orders those inside the wave.
var Waves = [][]string{
	{M01CompanyContext, M02TechnologyStack, M03TrafficAnalysis, M04FinancialProfile},
	{M05CompetitorIntelligence, M06HiringSignals, M07StrategicContext},
	{M08InvestorIntelligence, M09ExecutiveIntelligence, M10BuyingCommittee, M11DisplacementAnalysis},
	{M12CaseStudyMatching, M13IcpPriorityMapping, M14SignalScoring, M15StrategicBrief},
}

// Dependencies declares each module's hard prerequisites.
var Dependencies = map[string][]string{
	M01CompanyContext:         {},
	M02TechnologyStack:        {},
	M03TrafficAnalysis:        {},
	M04FinancialProfile:       {},
	M05CompetitorIntelligence: {M01CompanyContext, M02TechnologyStack},
	M06HiringSignals:          {M01CompanyContext},
	M07StrategicContext:       {M01CompanyContext},
	M08InvestorIntelligence:   {M01CompanyContext, M04FinancialProfile},
	M09ExecutiveIntelligence:  {M01CompanyContext, M07StrategicContext},
	M10BuyingCommittee:        {M01CompanyContext, M06HiringSignals, M09ExecutiveIntelligence},
	M11DisplacementAnalysis:   {M02TechnologyStack, M05CompetitorIntelligence},
	M12CaseStudyMatching:      {M01CompanyContext, M02TechnologyStack},
	M13IcpPriorityMapping:     {M01CompanyContext, M02TechnologyStack, M03TrafficAnalysis, M04FinancialProfile, M05CompetitorIntelligence},
	M14SignalScoring:          {M06HiringSignals, M07StrategicContext, M08InvestorIntelligence},
	M15StrategicBrief:         AllModules(),
}

// AllModules lists every module id in wave order.
func AllModules() []string {
	var ids []string
	for _, wave := range Waves {
		for _, id := range wave {
			if id != M15StrategicBrief {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// WaveOf returns the 1-based wave number a module runs in, or 0.
func WaveOf(moduleID string) int {
	for i, wave := range Waves {
		for _, id := range wave {
			if id == moduleID {
				return i + 1
			}
		}
	}
	return 0
}

// AverageSeconds is the static per-module duration table backing the upfront
// job time estimate.
var AverageSeconds = map[string]float64{
	M01CompanyContext:         8,
	M02TechnologyStack:        6,
	M03TrafficAnalysis:        5,
	M04FinancialProfile:       10,
	M05CompetitorIntelligence: 9,
	M06HiringSignals:          7,
	M07StrategicContext:       6,
	M08InvestorIntelligence:   15,
	M09ExecutiveIntelligence:  8,
	M10BuyingCommittee:        4,
	M11DisplacementAnalysis:   4,
	M12CaseStudyMatching:      3,
	M13IcpPriorityMapping:     3,
	M14SignalScoring:          3,
	M15StrategicBrief:         6,
}

// DefaultModuleTimeout bounds a single module execution.
const DefaultModuleTimeout = 120 * time.Second
