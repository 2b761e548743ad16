package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/enrich/internal/citation"
)

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		"example.com":                        "example.com",
		"https://www.Example.com/shop?q=1":   "example.com",
		"HTTP://EXAMPLE.COM:8443/path#frag":  "example.com",
		"  www.sallybeauty.com  ":            "sallybeauty.com",
		"wwwonderful.com":                    "wwwonderful.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}

func TestValidModuleID(t *testing.T) {
	assert.True(t, ValidModuleID("m01_company_context"))
	assert.True(t, ValidModuleID("m15_strategic_brief"))
	assert.False(t, ValidModuleID("m16_out_of_range"))
	assert.False(t, ValidModuleID("m1_missing_zero"))
	assert.False(t, ValidModuleID("m01-dash-name"))
	assert.False(t, ValidModuleID("M01_upper"))
}

func TestWaveTablesConsistent(t *testing.T) {
	seen := map[string]bool{}
	for _, wave := range Waves {
		for _, id := range wave {
			assert.True(t, ValidModuleID(id), id)
			assert.False(t, seen[id], "duplicate %s", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 15)

	// A dependency never lives in a later wave. Same-wave prerequisites are
	// allowed but must stay acyclic so the scheduler can sub-order them.
	var acyclic func(id string, trail map[string]bool) bool
	acyclic = func(id string, trail map[string]bool) bool {
		if trail[id] {
			return false
		}
		trail[id] = true
		defer delete(trail, id)
		for _, dep := range Dependencies[id] {
			if WaveOf(dep) == WaveOf(id) && !acyclic(dep, trail) {
				return false
			}
		}
		return true
	}
	for id, deps := range Dependencies {
		for _, dep := range deps {
			assert.LessOrEqual(t, WaveOf(dep), WaveOf(id), "%s -> %s", id, dep)
		}
		assert.True(t, acyclic(id, map[string]bool{}), "same-wave cycle through %s", id)
	}

	assert.Len(t, AllModules(), 14) // everything except the brief itself
	assert.Equal(t, 0, WaveOf("m99_bogus"))
}

func TestContextRequire(t *testing.T) {
	cit := citation.Placeholder(citation.SourceManual, "https://example.com/", "")
	ok, err := NewSuccess(M01CompanyContext, "example.com", map[string]any{"k": "v"}, cit)
	require.NoError(t, err)

	deps := Context{M01CompanyContext: ok}
	got, err := deps.Require(M05CompetitorIntelligence, M01CompanyContext)
	require.NoError(t, err)
	assert.Same(t, ok, got)

	_, err = deps.Require(M05CompetitorIntelligence, M02TechnologyStack)
	var depErr *DependencyNotMetError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, M02TechnologyStack, depErr.Missing)

	// A failed dependency counts as unmet.
	deps[M02TechnologyStack] = NewFailed(M02TechnologyStack, "example.com", ErrTypeModuleError, nil)
	_, err = deps.Require(M05CompetitorIntelligence, M02TechnologyStack)
	assert.Error(t, err)
}

func TestNewSuccessRequiresCitation(t *testing.T) {
	_, err := NewSuccess(M01CompanyContext, "example.com", nil, nil)
	require.Error(t, err)
}

func TestValidateResultCitationMandate(t *testing.T) {
	uncited := &Result{ModuleID: M01CompanyContext, Status: StatusSuccess}
	var citErr *CitationError
	require.ErrorAs(t, ValidateResult(uncited), &citErr)
	assert.Equal(t, ErrTypeCitationMissing, citErr.Kind)

	expired := citation.Placeholder(citation.SourceTraffic, "https://example.com/", "")
	expired.RetrievedAt = time.Now().Add(-365 * 24 * time.Hour)
	stale := &Result{ModuleID: M03TrafficAnalysis, Status: StatusSuccess, PrimaryCitation: expired}
	require.ErrorAs(t, ValidateResult(stale), &citErr)
	assert.Equal(t, ErrTypeCitationExpired, citErr.Kind)

	// Failed results carry placeholders and pass.
	assert.NoError(t, ValidateResult(NewFailed(M03TrafficAnalysis, "example.com", ErrTypeTimeout, nil)))

	bad := citation.Placeholder(citation.SourceManual, "https://example.com/", "")
	bad.ConfidenceScore = 1.5
	overconfident := &Result{ModuleID: M01CompanyContext, Status: StatusFailed, PrimaryCitation: bad}
	assert.Error(t, ValidateResult(overconfident))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	factory := func() Module { return nil }
	require.NoError(t, registry.Register(M01CompanyContext, factory))
	assert.Error(t, registry.Register(M01CompanyContext, factory))
	assert.Error(t, registry.Register("not_a_module", factory))

	_, ok := registry.Get(M02TechnologyStack)
	assert.False(t, ok)
	assert.Equal(t, []string{M01CompanyContext}, registry.IDs())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPending.Terminal())
}
