// Package httpapi serves the operational surface: adapter health, job
// progress snapshots, a websocket event stream per job, and prometheus
// metrics. The dashboard and CLI consume it; the engine never depends on it.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/metrics"
	"github.com/leadscope/enrich/internal/progress"
)

// Server exposes the HTTP surface.
type Server struct {
	adapters *adapter.Registry
	progress *progress.Manager
	inst     *metrics.Instruments
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// New builds a server over the shared registries.
func New(adapters *adapter.Registry, progressMgr *progress.Manager, inst *metrics.Instruments, log zerolog.Logger) *Server {
	return &Server{
		adapters: adapters,
		progress: progressMgr,
		inst:     inst,
		log:      log.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Router wires the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", s.handleJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/stream", s.handleStream).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.inst.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// handleHealth reports per-adapter health; 503 when any breaker is open.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healths := s.adapters.Healths(r.Context())
	status := http.StatusOK
	for _, h := range healths {
		if !h.Healthy {
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, map[string]any{
		"healthy":  status == http.StatusOK,
		"adapters": healths,
	})
}

// handleJobs lists active jobs.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	active := s.progress.Active()
	if active == nil {
		active = []progress.JobProgress{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": active})
}

// handleJob returns one job's progress snapshot.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.progress.Get(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown job"})
		return
	}
	writeJSON(w, http.StatusOK, tracker.Snapshot())
}

// handleStream upgrades to a websocket and relays events until the job
// completes or the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	tracker, ok := s.progress.Get(jobID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown job"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribe before snapshotting so no event falls between the two.
	events := tracker.Subscribe()
	if err := conn.WriteJSON(tracker.Snapshot()); err != nil {
		return
	}
	for event := range events {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			s.log.Debug().Err(err).Str("job_id", jobID).Msg("stream client dropped")
			return
		}
		if event.Terminal() {
			break
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job complete"),
		time.Now().Add(time.Second))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
