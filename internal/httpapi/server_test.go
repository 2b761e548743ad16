package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/metrics"
	"github.com/leadscope/enrich/internal/progress"
)

func newTestServer(t *testing.T) (*httptest.Server, *progress.Manager) {
	t.Helper()
	mgr := progress.NewManager(time.Hour, zerolog.Nop())
	srv := New(adapter.NewRegistry(), mgr, metrics.New(), zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, mgr
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthEmptyRegistry(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string]any
	status := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["healthy"])
}

func TestJobsListingAndSnapshot(t *testing.T) {
	ts, mgr := newTestServer(t)

	var listing struct {
		Jobs []progress.JobProgress `json:"jobs"`
	}
	status := getJSON(t, ts.URL+"/jobs", &listing)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, listing.Jobs)

	tracker := mgr.Create("job-7", "example.com", []string{"m01_company_context"}, 8)
	tracker.JobStart()

	status = getJSON(t, ts.URL+"/jobs", &listing)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, listing.Jobs, 1)
	assert.Equal(t, "job-7", listing.Jobs[0].JobID)

	var snap progress.JobProgress
	status = getJSON(t, ts.URL+"/jobs/job-7", &snap)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "example.com", snap.Domain)

	var errBody map[string]any
	status = getJSON(t, ts.URL+"/jobs/nope", &errBody)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStreamDeliversEventsUntilTerminal(t *testing.T) {
	ts, mgr := newTestServer(t)
	tracker := mgr.Create("job-ws", "example.com", []string{"m01_company_context"}, 8)
	tracker.JobStart()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/jobs/job-ws/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Snapshot arrives first.
	var snap progress.JobProgress
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "job-ws", snap.JobID)

	tracker.ModuleComplete("m01_company_context", progress.StateSuccess, "", 100)
	tracker.JobComplete(progress.StateCompleted)

	var sawComplete bool
	for {
		var ev progress.Event
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev.Event == progress.EventJobComplete {
			sawComplete = true
			assert.InDelta(t, 100.0, ev.OverallPercent, 1e-9)
			break
		}
	}
	assert.True(t, sawComplete)
}
