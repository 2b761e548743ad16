package modules

import (
	"context"
	"fmt"
	"strings"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// BriefQuote is one in-their-own-words entry with its citation preserved.
type BriefQuote struct {
	Quote        string `json:"quote"`
	SpeakerName  string `json:"speaker_name"`
	SpeakerTitle string `json:"speaker_title"`
	Product      string `json:"product,omitempty"`
	SourceURL    string `json:"source_url"`
}

// BriefSource is one bibliography line.
type BriefSource struct {
	ModuleID   string  `json:"module_id"`
	SourceType string  `json:"source_type"`
	SourceURL  string  `json:"source_url"`
	Confidence float64 `json:"confidence"`
}

// BriefPayload is M15's typed output: the signal-dense brief, one field per
// named section.
type BriefPayload struct {
	SixtySecondStory     string        `json:"sixty_second_story"`
	TimingSignals        []string      `json:"timing_signals"`
	InTheirOwnWords      []BriefQuote  `json:"in_their_own_words"`
	People               []string      `json:"people"`
	Money                []string      `json:"money"`
	Gaps                 []string      `json:"gaps"`
	CompetitiveLandscape string        `json:"competitive_landscape"`
	TheAngle             string        `json:"the_angle"`
	Sources              []BriefSource `json:"sources"`
}

// StrategicBrief (M15) synthesizes everything into the sales-ready brief.
type StrategicBrief struct {
	base
	deps Deps
}

// NewStrategicBrief builds M15.
func NewStrategicBrief(deps Deps) *StrategicBrief {
	return &StrategicBrief{
		base: base{
			id:         enrich.M15StrategicBrief,
			name:       "Strategic Brief",
			sourceType: citation.SourceManual,
		},
		deps: deps,
	}
}

// Execute assembles the brief from all fourteen prior modules. Every section
// claim is backed by the citations carried over into the supporting set.
func (m *StrategicBrief) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
	if err := requireAll(m.id, deps); err != nil {
		return nil, err
	}
	domain = enrich.NormalizeDomain(domain)

	company, err := decodeDep[CompanyPayload](m.id, deps, enrich.M01CompanyContext)
	if err != nil {
		return nil, err
	}
	tech, err := decodeDep[TechStackPayload](m.id, deps, enrich.M02TechnologyStack)
	if err != nil {
		return nil, err
	}
	finance, err := decodeDep[FinancePayload](m.id, deps, enrich.M04FinancialProfile)
	if err != nil {
		return nil, err
	}
	competitors, err := decodeDep[CompetitorPayload](m.id, deps, enrich.M05CompetitorIntelligence)
	if err != nil {
		return nil, err
	}
	hiring, err := decodeDep[HiringPayload](m.id, deps, enrich.M06HiringSignals)
	if err != nil {
		return nil, err
	}
	strategic, err := decodeDep[StrategicPayload](m.id, deps, enrich.M07StrategicContext)
	if err != nil {
		return nil, err
	}
	investor, err := decodeDep[InvestorPayload](m.id, deps, enrich.M08InvestorIntelligence)
	if err != nil {
		return nil, err
	}
	executives, err := decodeDep[ExecutivePayload](m.id, deps, enrich.M09ExecutiveIntelligence)
	if err != nil {
		return nil, err
	}
	committee, err := decodeDep[CommitteePayload](m.id, deps, enrich.M10BuyingCommittee)
	if err != nil {
		return nil, err
	}
	displacement, err := decodeDep[DisplacementPayload](m.id, deps, enrich.M11DisplacementAnalysis)
	if err != nil {
		return nil, err
	}
	caseStudies, err := decodeDep[CaseStudyPayload](m.id, deps, enrich.M12CaseStudyMatching)
	if err != nil {
		return nil, err
	}
	icp, err := decodeDep[IcpPayload](m.id, deps, enrich.M13IcpPriorityMapping)
	if err != nil {
		return nil, err
	}
	signals, err := decodeDep[SignalPayload](m.id, deps, enrich.M14SignalScoring)
	if err != nil {
		return nil, err
	}

	timingSignals := []string{}
	for _, t := range strategic.TriggerEvents {
		timingSignals = append(timingSignals, fmt.Sprintf("[%s] %s", t.Severity, t.Event))
	}
	if hiring.DecisionWindowOpen {
		timingSignals = append(timingSignals, "open senior digital leadership role signals an active decision window")
	}
	if competitors.FirstMoverOpportunity {
		timingSignals = append(timingSignals, "no observed competitor runs Algolia yet")
	}

	quotes := collectBriefQuotes(investor, executives)

	people := []string{}
	for _, slot := range committee.Slots {
		if slot.Filled {
			people = append(people, fmt.Sprintf("%s: %s (%s)", slot.Role, slot.Person.Name, slot.Person.Title))
		} else {
			people = append(people, slot.Role+": unidentified")
		}
	}

	money := []string{}
	if finance.IsPublic {
		money = append(money, fmt.Sprintf("latest revenue $%.0fM, margin zone %s", finance.LatestRevenue/1e6, finance.MarginZone))
		for _, roi := range finance.ROIScenarios {
			money = append(money, fmt.Sprintf("%s scenario (%.0f%% lift): $%.1fM annual impact", roi.Label, roi.Lift*100, roi.AnnualImpact/1e6))
		}
	} else {
		money = append(money, "private company: "+finance.DataLimitationReason)
	}

	gaps := collectGaps(finance, investor, executives, committee)

	angle := theAngle(company, tech, displacement, caseStudies, signals, icp)

	// Bibliography: one line per prior module's primary citation, with the
	// full set carried as supporting citations for traceability.
	sourcesSection := []BriefSource{}
	supporting := []*citation.SourceCitation{}
	for _, id := range enrich.AllModules() {
		dep := deps.Get(id)
		if dep == nil || dep.PrimaryCitation == nil {
			continue
		}
		cit := dep.PrimaryCitation
		sourcesSection = append(sourcesSection, BriefSource{
			ModuleID:   id,
			SourceType: string(cit.SourceType),
			SourceURL:  cit.SourceURL,
			Confidence: cit.ConfidenceScore,
		})
		supporting = append(supporting, dep.Citations()...)
	}

	payload := &BriefPayload{
		SixtySecondStory:     strategic.SixtySecondStory,
		TimingSignals:        timingSignals,
		InTheirOwnWords:      quotes,
		People:               people,
		Money:                money,
		Gaps:                 gaps,
		CompetitiveLandscape: competitors.Positioning,
		TheAngle:             angle,
		Sources:              sourcesSection,
	}

	primary, err := citation.New(citation.SourceManual, "internal://brief/"+domain,
		citation.WithConfidence(1.0), citation.WithNotes("synthesized from module outputs"))
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result, err := enrich.NewSuccess(m.id, domain, payload, primary, supporting...)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	return result, m.ValidateOutput(result)
}

// decodeDep fetches a required dependency and decodes its typed payload.
func decodeDep[T any](moduleID string, deps enrich.Context, depID string) (*T, error) {
	dep, err := deps.Require(moduleID, depID)
	if err != nil {
		return nil, err
	}
	payload, err := enrich.DecodePayload[T](dep.Data)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: moduleID, Cause: err}
	}
	return payload, nil
}

// collectBriefQuotes prefers the product-mapped M09 quotes and falls back to
// the raw M08 set, deduplicating on quote text.
func collectBriefQuotes(investor *InvestorPayload, executives *ExecutivePayload) []BriefQuote {
	quotes := []BriefQuote{}
	seen := map[string]bool{}
	for _, exec := range executives.Executives {
		for _, qm := range exec.QuoteToProductMapping {
			if seen[qm.Quote] {
				continue
			}
			seen[qm.Quote] = true
			quotes = append(quotes, BriefQuote{
				Quote:        qm.Quote,
				SpeakerName:  qm.SpeakerName,
				SpeakerTitle: qm.SpeakerTitle,
				Product:      qm.Product,
				SourceURL:    qm.SourceURL,
			})
		}
	}
	for _, q := range investor.Quotes {
		if seen[q.Quote] {
			continue
		}
		seen[q.Quote] = true
		quotes = append(quotes, BriefQuote{
			Quote:        q.Quote,
			SpeakerName:  q.SpeakerName,
			SpeakerTitle: q.SpeakerTitle,
			SourceURL:    q.SourceURL,
		})
	}
	return quotes
}

// collectGaps lists what the enrichment could not establish.
func collectGaps(finance *FinancePayload, investor *InvestorPayload, executives *ExecutivePayload, committee *CommitteePayload) []string {
	gaps := []string{}
	if !finance.IsPublic {
		gaps = append(gaps, "no public financials: "+finance.DataLimitationReason)
	}
	if investor.SearchPriorityLevel == SearchPriorityUnknown {
		gaps = append(gaps, "no investor-facing signal on search or discovery priorities")
	}
	if len(executives.Executives) == 0 {
		gaps = append(gaps, "no executive roster resolved")
	}
	for _, slot := range committee.Slots {
		if !slot.Filled {
			gaps = append(gaps, "buying committee slot unfilled: "+slot.Role)
		}
	}
	return gaps
}

// theAngle authors the recommended opening from the strongest available
// signals.
func theAngle(company *CompanyPayload, tech *TechStackPayload, displacement *DisplacementPayload, caseStudies *CaseStudyPayload, signals *SignalPayload, icp *IcpPayload) string {
	var parts []string
	switch displacement.DisplacementPriority {
	case DisplacementHigh:
		parts = append(parts, fmt.Sprintf("Lead with displacing %s", displacement.CurrentProvider))
	case DisplacementNA:
		parts = append(parts, "Already on Algolia; lead with expansion")
	default:
		parts = append(parts, "Lead with search modernization")
	}
	if len(displacement.PartnerCoSell) > 0 {
		parts = append(parts, "co-sell via "+displacement.PartnerCoSell[0])
	}
	if len(caseStudies.Matches) > 0 {
		parts = append(parts, "anchor on the "+caseStudies.Matches[0].CaseStudy.Customer+" story")
	}
	parts = append(parts, fmt.Sprintf("%s is a %s %s account (ICP %d, signal %d)",
		company.CompanyName, icp.PriorityStatus, strings.ToLower(company.Vertical), icp.LeadScore, signals.Composite.Final))
	return strings.Join(parts, "; ") + "."
}

// ValidateOutput enforces M15's schema: every quote and source keeps its
// citation line.
func (m *StrategicBrief) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[BriefPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	if payload.SixtySecondStory == "" {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("sixty_second_story")}
	}
	if payload.TheAngle == "" {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("the_angle")}
	}
	if len(payload.Sources) == 0 {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("sources")}
	}
	for _, q := range payload.InTheirOwnWords {
		if q.SourceURL == "" {
			return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("quote without source")}
		}
	}
	return nil
}
