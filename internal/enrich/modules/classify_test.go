package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

func TestContainsAnyWholeWords(t *testing.T) {
	assert.True(t, containsAny("Director of IT", "it"))
	assert.True(t, containsAny("Machine Learning Engineer", "machine learning"))
	assert.True(t, containsAny("Head of E-Commerce", "e-commerce"))
	assert.True(t, containsAny("VP, Digital Experience", "vp"))

	// Never match inside another word.
	assert.False(t, containsAny("Director of Ecommerce", "cto"))
	assert.False(t, containsAny("Retail Operations Lead", "ai"))
	assert.False(t, containsAny("maintain legacy systems", "ai"))
	assert.False(t, containsAny("Elasticsearch", "elastic"))
}

func TestClassifySearchProvider(t *testing.T) {
	tests := []struct {
		name  string
		techs []DetectedTechnology
		want  string
	}{
		{"algolia wins over competitor", []DetectedTechnology{{Name: "Elasticsearch"}, {Name: "Algolia"}}, ProviderAlgolia},
		{"named competitor", []DetectedTechnology{{Name: "Coveo"}}, ProviderCompetitor},
		{"native platform search", []DetectedTechnology{{Name: "Shopify Search"}}, ProviderNative},
		{"nothing detected", []DetectedTechnology{{Name: "Google Analytics"}}, ProviderUnknown},
		{"empty", nil, ProviderUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySearchProvider(tt.techs))
		})
	}
}

func TestDisplacementPriorityFor(t *testing.T) {
	assert.Equal(t, "NONE", displacementPriorityFor(ProviderAlgolia))
	assert.Equal(t, "HIGH", displacementPriorityFor(ProviderCompetitor))
	assert.Equal(t, "MEDIUM", displacementPriorityFor(ProviderNative))
	assert.Equal(t, "LOW", displacementPriorityFor(ProviderUnknown))
}

func TestMatchPartnerTechnologies(t *testing.T) {
	techs := []DetectedTechnology{
		{Name: "Shopify Plus"},
		{Name: "Contentful CMS"},
		{Name: "Shopify Checkout"}, // same partner twice
		{Name: "React"},
	}
	got := matchPartnerTechnologies(techs)
	assert.ElementsMatch(t, []string{"shopify", "contentful"}, got)

	assert.Empty(t, matchPartnerTechnologies(nil))
}

func TestClassifyRoleTier(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"VP of Digital Commerce", TierStrong},
		{"Director, Ecommerce", TierStrong},
		{"Chief Technology Officer", TierStrong},
		{"Senior Software Engineer", TierModerate},
		{"Engineering Manager", TierModerate},
		{"Software Engineer", TierTechnical},
		{"Frontend Developer", TierTechnical},
		{"Accountant", TierNone},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyRoleTier(tt.title))
		})
	}
}

func TestClassifyRoleCategory(t *testing.T) {
	assert.Equal(t, "search", classifyRoleCategory("Search Relevance Engineer"))
	assert.Equal(t, "ai_ml", classifyRoleCategory("Machine Learning Engineer"))
	assert.Equal(t, "ecommerce", classifyRoleCategory("Ecommerce Merchandiser"))
	assert.Equal(t, "infrastructure", classifyRoleCategory("Platform SRE"))
	assert.Equal(t, "infrastructure", classifyRoleCategory("Infrastructure Engineer"))
	assert.Equal(t, "other", classifyRoleCategory("Office Manager"))
	assert.Equal(t, "other", classifyRoleCategory("Retail Associate"))
}

func TestNamedSearchEngine(t *testing.T) {
	assert.Equal(t, "elasticsearch", namedSearchEngine([]DetectedTechnology{{Name: "Elasticsearch"}}))
	assert.Equal(t, "coveo", namedSearchEngine([]DetectedTechnology{{Name: "Coveo Cloud"}}))
	assert.Equal(t, "constructor", namedSearchEngine([]DetectedTechnology{{Name: "Constructor.io"}}))
	assert.Equal(t, "", namedSearchEngine([]DetectedTechnology{{Name: "Google Analytics"}}))
	assert.Equal(t, "", namedSearchEngine(nil))
}

func TestTallyProviders(t *testing.T) {
	tally := tallyProviders([]Competitor{
		{Domain: "a.com", SearchProvider: ProviderAlgolia},
		{Domain: "b.com", SearchProvider: ProviderCompetitor, SearchTechnology: "elasticsearch"},
		{Domain: "c.com", SearchProvider: ProviderCompetitor, SearchTechnology: "constructor"},
		{Domain: "d.com", SearchProvider: ProviderCompetitor, SearchTechnology: "coveo"},
		{Domain: "e.com", SearchProvider: ProviderCompetitor, SearchTechnology: "searchspring"},
		{Domain: "f.com", SearchProvider: ProviderNative},
		{Domain: "g.com", SearchProvider: ProviderUnknown},
		{Domain: "h.com"},
	})
	assert.Equal(t, 1, tally.AlgoliaUsers)
	assert.Equal(t, 1, tally.ElasticsearchUsers)
	assert.Equal(t, 1, tally.ConstructorUsers)
	assert.Equal(t, 1, tally.CoveoUsers)
	assert.Equal(t, 1, tally.OtherUsers) // searchspring has no dedicated counter
	assert.Equal(t, 1, tally.NativeUsers)
	assert.Equal(t, 2, tally.UnknownUsers)
}

func TestTechStackValidateDisplacementPriority(t *testing.T) {
	m := NewTechnologyStack(Deps{})
	mk := func(priority string) *enrich.Result {
		cit := citation.Placeholder(citation.SourceTechFingerprint, "https://fingerprint.example.com/", "")
		payload := &TechStackPayload{SearchProvider: ProviderUnknown, DisplacementPriority: priority}
		result, err := enrich.NewSuccess(enrich.M02TechnologyStack, "example.com", payload, cit)
		require.NoError(t, err)
		return result
	}

	assert.NoError(t, m.ValidateOutput(mk("LOW")))
	assert.NoError(t, m.ValidateOutput(mk("NONE")))
	assert.Error(t, m.ValidateOutput(mk("")))
	// A fragment of the legal set is not a member.
	assert.Error(t, m.ValidateOutput(mk("IGH ME")))
	assert.Error(t, m.ValidateOutput(mk("HIGHEST")))
}

func TestPrivateRecordCitationConfidence(t *testing.T) {
	m := NewFinancialProfile(Deps{})
	lookupCit, err := citation.New(citation.SourceFinance,
		"https://finance.example.com/lookup?domain=glossier.com", citation.WithConfidence(0.95))
	require.NoError(t, err)

	result, err := m.privateResultWithCitation("glossier.com", "no ticker resolvable for domain", lookupCit)
	require.NoError(t, err)
	require.NotNil(t, result.PrimaryCitation)
	assert.LessOrEqual(t, result.PrimaryCitation.ConfidenceScore, privateRecordConfidence)
	// The retrieval time survives the cap; the shared lookup citation does not
	// change underneath other holders.
	assert.Equal(t, lookupCit.RetrievedAt, result.PrimaryCitation.RetrievedAt)
	assert.Equal(t, 0.95, lookupCit.ConfidenceScore)

	// Placeholder-backed records keep their zero confidence.
	direct, err := m.privateResult("glossier.com", "ticker lookup failed: upstream down")
	require.NoError(t, err)
	assert.Zero(t, direct.PrimaryCitation.ConfidenceScore)
}

func TestClassifyBuyerRole(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Chief Financial Officer", RoleEconomicBuyer},
		{"VP Finance", RoleEconomicBuyer},
		{"CTO", RoleTechnicalBuyer},
		{"VP of Engineering", RoleTechnicalBuyer},
		{"VP of Ecommerce", RoleChampion},
		{"Director of Ecommerce", RoleChampion},
		{"Director of Digital Experience", RoleChampion},
		{"Director of IT", RoleTechnicalBuyer},
		{"Search Merchandiser", RoleUserBuyer},
		{"Chief Executive Officer", RoleExecutiveSponsor},
		{"President", RoleExecutiveSponsor},
		{"Regional Sales Lead", RoleUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyBuyerRole(tt.title))
		})
	}
}

func TestClassifySearchPriority(t *testing.T) {
	quote := func(s string) []ExecutiveQuote {
		return []ExecutiveQuote{{Quote: s, SpeakerName: "A", SpeakerTitle: "CEO"}}
	}

	assert.Equal(t, SearchPriorityHigh,
		classifySearchPriority(quote("investing heavily in site search"), nil, nil))
	assert.Equal(t, SearchPriorityMedium,
		classifySearchPriority(quote("AI and personalization are priorities"), nil, nil))
	assert.Equal(t, SearchPriorityMedium,
		classifySearchPriority(nil, nil, []string{"failure to improve product discovery could hurt conversion"}))
	assert.Equal(t, SearchPriorityLow,
		classifySearchPriority(nil, []string{"broad digital transformation program"}, nil))
	assert.Equal(t, SearchPriorityUnknown,
		classifySearchPriority(nil, []string{"opening 40 new stores"}, nil))
}

func TestProductFor(t *testing.T) {
	assert.Equal(t, "Search", productFor("our site search experience"))
	assert.Equal(t, "Recommend", productFor("personalization at scale"))
	assert.Equal(t, "AI Search", productFor("betting on artificial intelligence"))
	assert.Equal(t, "Analytics", productFor("better merchandising insight"))
	assert.Equal(t, "", productFor("opening new stores"))
}

func TestDisplacementDifficulty(t *testing.T) {
	assert.Equal(t, "N/A", displacementDifficulty(ProviderAlgolia))
	assert.Equal(t, "HARD", displacementDifficulty(ProviderCompetitor))
	assert.Equal(t, "EASY", displacementDifficulty(ProviderNative))
	assert.Equal(t, "MODERATE", displacementDifficulty(ProviderUnknown))
}

func TestIcpTierFor(t *testing.T) {
	assert.Equal(t, TierCommerce, icpTierFor("Commerce"))
	assert.Equal(t, TierCommerce, icpTierFor("Retail Marketplace"))
	assert.Equal(t, TierContent, icpTierFor("Media & Publishing"))
	assert.Equal(t, TierSupport, icpTierFor("SaaS"))
}
