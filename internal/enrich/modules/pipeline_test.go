package modules

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/enrich"
	"github.com/leadscope/enrich/internal/metrics"
	"github.com/leadscope/enrich/internal/progress"
	"github.com/leadscope/enrich/internal/scheduler"
	"github.com/leadscope/enrich/internal/sources"
)

// fixtureHandler serves canned upstream documents for two personas: a public
// beauty retailer on a competitor search provider, and a private brand with
// no resolvable ticker.
func fixtureHandler() http.HandlerFunc {
	const (
		publicCompany = `{"name":"Sally Beauty","industry":"retail","description":"beauty retail stores and e-commerce",
			"headquarters":"Denton, TX","employee_count":30000,"store_count":5000,
			"brands":["Sally Beauty","CosmoProf"],"founded_year":1964}`
		privateCompany = `{"name":"Glossier","industry":"retail","description":"direct to consumer beauty e-commerce",
			"headquarters":"New York, NY","employee_count":600,"founded_year":2014}`
		statements = `{"revenue_series":[3500000000,3700000000,3800000000],
			"net_income_series":[180000000,190000000,200000000],
			"ebitda_margin":0.12,"gross_margin":0.50,"operating_margin":0.09,"net_margin":0.05,
			"ecommerce_share":0.20}`
		ownTech = `{"technologies":[
			{"name":"Searchspring","category":"search","confidence":0.9,"first_seen":"2022-01-01","last_seen":"2026-08-01"},
			{"name":"Salesforce Commerce Cloud","category":"ecommerce","confidence":0.95,"first_seen":"2020-05-01","last_seen":"2026-08-01"}],
			"est_annual_spend_usd":2000000}`
		overview = `{"monthly_visits":12000000,"bounce_rate":0.45,"pages_per_visit":4.2,"avg_visit_seconds":180,
			"mobile_share":0.62,"trend_mom":0.02,"trend_yoy":0.11,
			"source_mix":{"direct":0.35,"organic":0.40,"paid":0.10,"social":0.08,"referral":0.04,"email":0.02,"display":0.01},
			"top_countries":[{"country":"US","share":0.85},{"country":"CA","share":0.06}],
			"top_keywords":["sally beauty","hair dye","beauty supply"],"global_rank":4100}`
		jobs = `{"jobs":[
			{"title":"VP Digital Commerce","description":"lead the e-commerce roadmap"},
			{"title":"Senior Software Engineer, Search","description":"search relevance and ai ranking"},
			{"title":"Machine Learning Engineer","description":"personalization models"},
			{"title":"Store Manager","description":"retail operations"}]}`
		news = `{"results":[
			{"title":"Sally Beauty announces replatform migration to headless commerce"},
			{"title":"Sally Beauty partnership expands professional brand portfolio"},
			{"title":"Sally Beauty invests in digital personalization experience"}]}`
		filings = `{"quotes":[
			{"quote":"We are investing heavily in site search and product discovery","speaker_name":"Denise Paulonis","speaker_title":"CEO"},
			{"quote":"This one has no attribution","speaker_name":"","speaker_title":""}],
			"commitments":["Improve digital conversion rates"],
			"risk_factors":["Competition from online beauty retailers"]}`
		people = `{"people":[
			{"name":"Denise Paulonis","title":"Chief Executive Officer","tenure_months":30},
			{"name":"Jane Smith","title":"Chief Financial Officer","tenure_months":40},
			{"name":"John Goss","title":"Chief Information Officer","tenure_months":12},
			{"name":"Maria Lopez","title":"VP Digital Experience","tenure_months":8}]}`
	)

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var doc string
		switch r.URL.Path {
		case "/company":
			doc = publicCompany
			if q.Get("domain") == "glossier.com" {
				doc = privateCompany
			}
		case "/lookup":
			doc = `{}`
			if q.Get("domain") == "sallybeauty.com" {
				doc = `{"ticker":"SBH","exchange":"NYSE"}`
			}
		case "/statements":
			doc = statements
		case "/technologies":
			switch q.Get("domain") {
			case "ulta.com":
				doc = `{"technologies":[{"name":"Algolia","category":"search","confidence":0.9}]}`
			case "beautybay.com":
				doc = `{"technologies":[{"name":"Elasticsearch","category":"search","confidence":0.8}]}`
			default:
				doc = ownTech
			}
		case "/overview":
			doc = overview
		case "/similar":
			doc = `{"sites":[{"domain":"ulta.com"},{"domain":"beautybay.com"}]}`
		case "/jobs":
			doc = jobs
		case "/news":
			doc = news
		case "/filings":
			doc = filings
		case "/people":
			doc = people
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, doc)
	}
}

func newPipeline(t *testing.T, baseURL string) *scheduler.Scheduler {
	t.Helper()
	endpoints := sources.Endpoints{}
	for _, name := range []string{
		sources.NameTechFingerprint, sources.NameTraffic, sources.NameFinance,
		sources.NameRegulatory, sources.NameWebSearch, sources.NamePeople,
	} {
		endpoints[name] = sources.Endpoint{BaseURL: baseURL}
	}
	clients := sources.NewClients(endpoints, adapter.NewMemoryCache(), metrics.New())

	registry := enrich.NewRegistry()
	RegisterAll(registry, Deps{Clients: clients})
	return scheduler.New(registry, progress.NewManager(time.Hour, zerolog.Nop()), metrics.New(), zerolog.Nop())
}

func payloadOf[T any](t *testing.T, result *enrich.Result) *T {
	t.Helper()
	require.NotNil(t, result)
	require.Equal(t, enrich.StatusSuccess, result.Status, result.ErrorMessage)
	payload, err := enrich.DecodePayload[T](result.Data)
	require.NoError(t, err)
	return payload
}

func TestPipelinePublicRetailer(t *testing.T) {
	server := httptest.NewServer(fixtureHandler())
	defer server.Close()
	sched := newPipeline(t, server.URL)

	result, err := sched.Enrich(context.Background(), &scheduler.JobSpec{Domain: "sallybeauty.com"})
	require.NoError(t, err)
	require.Equal(t, scheduler.JobCompleted, result.Status, result.Errors)
	assert.Len(t, result.CompletedModules, 15)

	company := payloadOf[CompanyPayload](t, result.Results[enrich.M01CompanyContext])
	assert.Equal(t, "Sally Beauty", company.CompanyName)
	assert.True(t, company.IsPublic)
	assert.Equal(t, "SBH", company.Ticker)
	assert.Equal(t, "Commerce", company.Vertical)
	assert.Greater(t, company.DataQualityScore, 0.7)

	tech := payloadOf[TechStackPayload](t, result.Results[enrich.M02TechnologyStack])
	assert.Equal(t, ProviderCompetitor, tech.SearchProvider)
	assert.False(t, tech.HasAlgolia)

	traffic := payloadOf[TrafficPayload](t, result.Results[enrich.M03TrafficAnalysis])
	assert.Equal(t, "10M-50M", traffic.TrafficTier)
	assert.Equal(t, 25, traffic.ICPScoreContribution)

	fin := payloadOf[FinancePayload](t, result.Results[enrich.M04FinancialProfile])
	assert.True(t, fin.IsPublic)
	assert.Equal(t, MarginYellow, fin.MarginZone)
	assert.InDelta(t, 3_800_000_000*0.20*0.15, fin.AddressableSearchRevenue, 1)
	assert.Len(t, fin.ROIScenarios, 3)

	comp := payloadOf[CompetitorPayload](t, result.Results[enrich.M05CompetitorIntelligence])
	assert.Len(t, comp.Competitors, 2)
	assert.False(t, comp.FirstMoverOpportunity) // ulta runs algolia
	assert.Equal(t, 1, comp.Tally.AlgoliaUsers)
	assert.Equal(t, 1, comp.Tally.ElasticsearchUsers) // beautybay's fingerprinted engine

	investor := payloadOf[InvestorPayload](t, result.Results[enrich.M08InvestorIntelligence])
	assert.Equal(t, SearchPriorityHigh, investor.SearchPriorityLevel)
	require.Len(t, investor.Quotes, 1) // unattributed quote dropped
	assert.Equal(t, "Denise Paulonis", investor.Quotes[0].SpeakerName)

	committee := payloadOf[CommitteePayload](t, result.Results[enrich.M10BuyingCommittee])
	assert.InDelta(t, 1.0, committee.CommitteeCompletenessScore, 1e-9)
	var champion string
	for _, slot := range committee.Slots {
		if slot.Role == RoleChampion && slot.Person != nil {
			champion = slot.Person.Name
		}
	}
	assert.Equal(t, "Maria Lopez", champion)

	icp := payloadOf[IcpPayload](t, result.Results[enrich.M13IcpPriorityMapping])
	assert.GreaterOrEqual(t, icp.LeadScore, 0)
	assert.LessOrEqual(t, icp.LeadScore, 100)
	assert.NotEmpty(t, icp.PriorityStatus)
	assert.InDelta(t, float64(icp.LeadScore), float64(icp.ScoreBreakdown.Sum()), 1)

	brief := payloadOf[BriefPayload](t, result.Results[enrich.M15StrategicBrief])
	assert.NotEmpty(t, brief.SixtySecondStory)
	assert.NotEmpty(t, brief.Sources)
	require.NotEmpty(t, brief.InTheirOwnWords)
	assert.Contains(t, brief.InTheirOwnWords[0].Quote, "search")

	// Every emitted result carries a primary citation.
	for id, res := range result.Results {
		assert.NotNil(t, res.PrimaryCitation, id)
	}
}

func TestPipelinePrivateCompany(t *testing.T) {
	server := httptest.NewServer(fixtureHandler())
	defer server.Close()
	sched := newPipeline(t, server.URL)

	result, err := sched.Enrich(context.Background(), &scheduler.JobSpec{Domain: "glossier.com"})
	require.NoError(t, err)

	// The missing ticker degrades M04 and M08 but never fails the job.
	require.Equal(t, scheduler.JobCompleted, result.Status, result.Errors)

	company := payloadOf[CompanyPayload](t, result.Results[enrich.M01CompanyContext])
	assert.False(t, company.IsPublic)
	assert.Empty(t, company.Ticker)

	fin := payloadOf[FinancePayload](t, result.Results[enrich.M04FinancialProfile])
	assert.False(t, fin.IsPublic)
	assert.NotEmpty(t, fin.DataLimitationReason)
	assert.Equal(t, MarginUnknown, fin.MarginZone)
	// The degraded record cites the lookup at reduced confidence.
	finCit := result.Results[enrich.M04FinancialProfile].PrimaryCitation
	require.NotNil(t, finCit)
	assert.LessOrEqual(t, finCit.ConfidenceScore, 0.5)

	investor := payloadOf[InvestorPayload](t, result.Results[enrich.M08InvestorIntelligence])
	assert.False(t, investor.IsPublic)
	assert.Equal(t, SearchPriorityUnknown, investor.SearchPriorityLevel)
	assert.NotEmpty(t, investor.DataLimitationReason)
	assert.Empty(t, investor.Quotes)
}
