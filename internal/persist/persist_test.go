package persist

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/enrich/internal/citation"
	"github.com/leadscope/enrich/internal/enrich"
)

func TestFlatten(t *testing.T) {
	primary := citation.Placeholder(citation.SourceTechFingerprint, "https://api.builtwith.com/v21/technologies?domain=example.com", "")
	supporting := citation.Placeholder(citation.SourceFinance, "https://financialmodelingprep.com/api/v3/lookup?domain=example.com", "")
	result, err := enrich.NewSuccess(enrich.M02TechnologyStack, "example.com",
		map[string]any{"search_provider": "algolia"}, primary, supporting)
	require.NoError(t, err)
	result.DurationMS = 1200

	record, err := Flatten(result)
	require.NoError(t, err)
	assert.Equal(t, enrich.M02TechnologyStack, record.ModuleID)
	assert.Equal(t, "example.com", record.Domain)
	assert.Equal(t, "success", record.Status)
	assert.Equal(t, primary.SourceURL, record.PrimarySourceURL)
	assert.Equal(t, string(citation.SourceTechFingerprint), record.PrimarySourceType)
	assert.Equal(t, int64(1200), record.DurationMS)

	var data map[string]any
	require.NoError(t, json.Unmarshal(record.Data, &data))
	assert.Equal(t, "algolia", data["search_provider"])

	var srcs []SupportingSource
	require.NoError(t, json.Unmarshal(record.SupportingSources, &srcs))
	require.Len(t, srcs, 1)
	assert.Equal(t, supporting.SourceURL, srcs[0].URL)
}

func TestFlattenFailedResultKeepsPlaceholder(t *testing.T) {
	failed := enrich.NewFailed(enrich.M03TrafficAnalysis, "example.com", enrich.ErrTypeTimeout, assert.AnError)
	record, err := Flatten(failed)
	require.NoError(t, err)
	assert.Equal(t, "failed", record.Status)
	assert.NotEmpty(t, record.PrimarySourceURL)
	assert.Equal(t, assert.AnError.Error(), record.ErrorMessage)
}

func TestFlattenRejectsUncited(t *testing.T) {
	_, err := Flatten(nil)
	require.Error(t, err)

	_, err = Flatten(&enrich.Result{ModuleID: enrich.M01CompanyContext, Status: enrich.StatusSuccess})
	require.Error(t, err)
}
