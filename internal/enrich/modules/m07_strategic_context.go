package modules

import (
	"context"
	"fmt"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// TriggerEvent is one observed trigger with a severity.
type TriggerEvent struct {
	Event    string `json:"event"`
	Severity string `json:"severity"` // HIGH | MEDIUM | LOW
}

// TimingInputs are the scored signals feeding the timing assessment.
type TimingInputs struct {
	HighTriggers       int
	FirstMover         bool
	DecisionWindowOpen bool
	AISignal           bool
	InitiativeCount    int
	CautionCount       int
	RedMarginZone      bool
}

// TimingAssessment is the scored outcome.
type TimingAssessment struct {
	Score      int    `json:"score"`
	Overall    string `json:"overall"`    // EXCELLENT | GOOD | NEUTRAL | POOR
	Confidence string `json:"confidence"` // HIGH | MEDIUM | LOW
}

// StrategicPayload is M07's typed output.
type StrategicPayload struct {
	Initiatives      []string         `json:"initiatives"`
	TriggerEvents    []TriggerEvent   `json:"trigger_events"`
	CautionSignals   []string         `json:"caution_signals"`
	Timing           TimingAssessment `json:"timing"`
	SixtySecondStory string           `json:"sixty_second_story"`
}

// assessTiming applies the fixed scoring rule: start at 50, add for
// triggers and openings, subtract for cautions and a red margin zone.
func assessTiming(in TimingInputs) TimingAssessment {
	score := 50
	score += 15 * in.HighTriggers
	if in.FirstMover {
		score += 10
	}
	if in.DecisionWindowOpen {
		score += 15
	}
	if in.AISignal {
		score += 10
	}
	if in.InitiativeCount >= 2 {
		score += 10
	}
	score -= 10 * in.CautionCount
	if in.RedMarginZone {
		score -= 10
	}

	var overall, confidence string
	switch {
	case score >= 80:
		overall, confidence = "EXCELLENT", "HIGH"
	case score >= 60:
		overall, confidence = "GOOD", "HIGH"
	case score >= 40:
		overall, confidence = "NEUTRAL", "MEDIUM"
	default:
		overall, confidence = "POOR", "LOW"
	}
	return TimingAssessment{Score: score, Overall: overall, Confidence: confidence}
}

// StrategicContext (M07) synthesizes initiatives, triggers, and cautions
// into a timing assessment.
type StrategicContext struct {
	base
	deps Deps
}

// NewStrategicContext builds M07.
func NewStrategicContext(deps Deps) *StrategicContext {
	return &StrategicContext{
		base: base{
			id:         enrich.M07StrategicContext,
			name:       "Strategic Context",
			sourceType: citation.SourceNews,
		},
		deps: deps,
	}
}

// Execute searches recent news and press for initiatives and triggers.
func (m *StrategicContext) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
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

	news, err := m.deps.Clients.WebSearch.CallWaiting(ctx, "/news", map[string]string{"q": companyPayload.CompanyName + " digital initiative"}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	doc := AsDoc(news.Value)

	var initiatives, cautions []string
	var triggers []TriggerEvent
	for _, item := range doc.List("results") {
		headline := item.Str("title")
		switch {
		case containsAny(headline, "layoff", "layoffs", "restructuring", "restructure", "bankruptcy", "bankrupt", "lawsuit", "data breach"):
			cautions = append(cautions, headline)
		case containsAny(headline, "replatform", "migration", "new ceo", "new cdo", "acquisition", "funding"):
			triggers = append(triggers, TriggerEvent{Event: headline, Severity: "HIGH"})
		case containsAny(headline, "launch", "partnership", "expansion", "redesign"):
			triggers = append(triggers, TriggerEvent{Event: headline, Severity: "MEDIUM"})
		case containsAny(headline, "digital", "ecommerce", "personalization", "transformation"):
			initiatives = append(initiatives, headline)
		}
	}
	if initiatives == nil {
		initiatives = []string{}
	}
	if cautions == nil {
		cautions = []string{}
	}
	if triggers == nil {
		triggers = []TriggerEvent{}
	}

	highTriggers := 0
	for _, t := range triggers {
		if t.Severity == "HIGH" {
			highTriggers++
		}
	}

	in := TimingInputs{
		HighTriggers:    highTriggers,
		InitiativeCount: len(initiatives),
		CautionCount:    len(cautions),
	}
	// Sibling wave-2 outputs are not prerequisites; fold them in when the
	// scheduler happened to finish them first.
	if hiring := deps.Get(enrich.M06HiringSignals); hiring.Succeeded() {
		if hp, derr := enrich.DecodePayload[HiringPayload](hiring.Data); derr == nil {
			in.DecisionWindowOpen = hp.DecisionWindowOpen
			in.AISignal = hp.AIInvestmentSignal
		}
	}
	if competitors := deps.Get(enrich.M05CompetitorIntelligence); competitors.Succeeded() {
		if cp, derr := enrich.DecodePayload[CompetitorPayload](competitors.Data); derr == nil {
			in.FirstMover = cp.FirstMoverOpportunity
		}
	}
	if finance := deps.Get(enrich.M04FinancialProfile); finance.Succeeded() {
		if fp, derr := enrich.DecodePayload[FinancePayload](finance.Data); derr == nil {
			in.RedMarginZone = fp.MarginZone == MarginRed
		}
	}

	timing := assessTiming(in)
	payload := &StrategicPayload{
		Initiatives:    initiatives,
		TriggerEvents:  triggers,
		CautionSignals: cautions,
		Timing:         timing,
		SixtySecondStory: fmt.Sprintf(
			"%s (%s) shows %d active initiatives, %d trigger events, and %d caution signals; timing is %s (score %d).",
			companyPayload.CompanyName, companyPayload.Vertical,
			len(initiatives), len(triggers), len(cautions), timing.Overall, timing.Score),
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, news.Citation)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = news.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M07's schema.
func (m *StrategicContext) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[StrategicPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	switch payload.Timing.Overall {
	case "EXCELLENT", "GOOD", "NEUTRAL", "POOR":
	default:
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("timing.overall")}
	}
	if payload.SixtySecondStory == "" {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("sixty_second_story")}
	}
	return nil
}
