package modules

import (
	"context"
	"fmt"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

// Competitor is one similar site with its classified search provider and,
// when a named engine was fingerprinted, the engine itself.
type Competitor struct {
	Domain           string `json:"domain"`
	SearchProvider   string `json:"search_provider"`
	SearchTechnology string `json:"search_technology,omitempty"`
}

// ProviderTally counts competitors by search provider.
type ProviderTally struct {
	AlgoliaUsers       int `json:"algolia_users"`
	ConstructorUsers   int `json:"constructor_users"`
	ElasticsearchUsers int `json:"elasticsearch_users"`
	CoveoUsers         int `json:"coveo_users"`
	NativeUsers        int `json:"native_users"`
	OtherUsers         int `json:"other_users"`
	UnknownUsers       int `json:"unknown_users"`
}

// CompetitorPayload is M05's typed output.
type CompetitorPayload struct {
	Competitors          []Competitor  `json:"competitors"`
	Tally                ProviderTally `json:"tally"`
	FirstMoverOpportunity bool         `json:"first_mover_opportunity"`
	Positioning          string        `json:"positioning"`
}

// tallyProviders counts competitor search providers. The three competitors
// tracked individually are keyed on the fingerprinted engine name; the rest
// of a class bucket lands in OtherUsers.
func tallyProviders(competitors []Competitor) ProviderTally {
	var t ProviderTally
	for _, c := range competitors {
		switch c.SearchProvider {
		case ProviderAlgolia:
			t.AlgoliaUsers++
		case ProviderCompetitor:
			switch {
			case containsAny(c.SearchTechnology, "constructor"):
				t.ConstructorUsers++
			case containsAny(c.SearchTechnology, "elasticsearch", "elastic"):
				t.ElasticsearchUsers++
			case containsAny(c.SearchTechnology, "coveo"):
				t.CoveoUsers++
			default:
				t.OtherUsers++
			}
		case ProviderNative:
			t.NativeUsers++
		case ProviderUnknown, "":
			t.UnknownUsers++
		default:
			t.OtherUsers++
		}
	}
	return t
}

// positioningStatement authors the one-sentence competitive framing from
// fixed templates keyed by vertical and landscape composition.
func positioningStatement(vertical string, tally ProviderTally, total int) string {
	switch {
	case total == 0:
		return fmt.Sprintf("No comparable %s competitors observed; search landscape is unmapped.", vertical)
	case tally.AlgoliaUsers == 0:
		return fmt.Sprintf("None of the observed %s competitors run Algolia, a first-mover opening in this vertical.", vertical)
	case tally.AlgoliaUsers >= total/2:
		return fmt.Sprintf("Algolia is the de facto standard among %s competitors (%d of %d); staying off it is a competitive liability.", vertical, tally.AlgoliaUsers, total)
	default:
		return fmt.Sprintf("%d of %d observed %s competitors already run Algolia; the vertical is actively modernizing search.", tally.AlgoliaUsers, total, vertical)
	}
}

// CompetitorIntelligence (M05) maps the competitive search landscape.
type CompetitorIntelligence struct {
	base
	deps Deps
}

// NewCompetitorIntelligence builds M05.
func NewCompetitorIntelligence(deps Deps) *CompetitorIntelligence {
	return &CompetitorIntelligence{
		base: base{
			id:         enrich.M05CompetitorIntelligence,
			name:       "Competitor Intelligence",
			sourceType: citation.SourceTraffic,
		},
		deps: deps,
	}
}

// Execute pulls similar sites and classifies each one's search provider.
func (m *CompetitorIntelligence) Execute(ctx context.Context, domain string, deps enrich.Context) (*enrich.Result, error) {
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

	similar, err := m.deps.Clients.Traffic.CallWaiting(ctx, "/similar", map[string]string{"domain": domain, "limit": "10"}, adapter.CallOptions{})
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}

	var competitors []Competitor
	supporting := []*citation.SourceCitation{}
	for _, site := range AsDoc(similar.Value).List("sites") {
		compDomain := enrich.NormalizeDomain(site.Str("domain"))
		if compDomain == "" || compDomain == domain {
			continue
		}
		competitor := Competitor{Domain: compDomain, SearchProvider: ProviderUnknown}
		// Fingerprint each competitor; failures degrade to unknown.
		fp, ferr := m.deps.Clients.TechFingerprint.CallWaiting(ctx, "/technologies", map[string]string{"domain": compDomain}, adapter.CallOptions{})
		if ferr == nil {
			var techs []DetectedTechnology
			for _, t := range AsDoc(fp.Value).List("technologies") {
				techs = append(techs, DetectedTechnology{Name: t.Str("name")})
			}
			competitor.SearchProvider = classifySearchProvider(techs)
			competitor.SearchTechnology = namedSearchEngine(techs)
			supporting = append(supporting, fp.Citation)
		}
		competitors = append(competitors, competitor)
		if len(competitors) >= 10 {
			break
		}
	}
	if competitors == nil {
		competitors = []Competitor{}
	}

	tally := tallyProviders(competitors)
	payload := &CompetitorPayload{
		Competitors:           competitors,
		Tally:                 tally,
		FirstMoverOpportunity: tally.AlgoliaUsers == 0,
		Positioning:           positioningStatement(companyPayload.Vertical, tally, len(competitors)),
	}

	result, err := enrich.NewSuccess(m.id, domain, payload, similar.Citation, supporting...)
	if err != nil {
		return nil, &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	result.Cached = similar.Cached
	return result, m.ValidateOutput(result)
}

// ValidateOutput enforces M05's schema.
func (m *CompetitorIntelligence) ValidateOutput(result *enrich.Result) error {
	if err := validateCommon(result); err != nil {
		return err
	}
	if result.Status != enrich.StatusSuccess {
		return nil
	}
	payload, err := enrich.DecodePayload[CompetitorPayload](result.Data)
	if err != nil {
		return &enrich.ModuleError{ModuleID: m.id, Cause: err}
	}
	if payload.Positioning == "" {
		return &enrich.ModuleError{ModuleID: m.id, Cause: errMissingField("positioning")}
	}
	return nil
}
