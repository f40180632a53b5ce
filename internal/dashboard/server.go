package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/dbsunset/dbsunset/internal/observability"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

// Server exposes workflow logs over HTTP: a JSON index, per-workflow
// snapshots, rendered dashboards and a live entry stream, next to the
// standard health and metrics endpoints.
type Server struct {
	registry *worklog.Registry
	store    *worklog.Store
	handler  http.Handler
}

// NewServer builds the server. registry carries live workflows and may be
// nil; store carries persisted snapshots and may be nil. tracer wraps the
// mux in request tracing when set.
func NewServer(registry *worklog.Registry, store *worklog.Store, tracer trace.Tracer) (*Server, error) {
	s := &Server{registry: registry, store: store}

	metrics, err := observability.PrometheusHandler()
	if err != nil {
		return nil, fmt.Errorf("metrics handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler())
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /workflows", s.handleIndex)
	mux.HandleFunc("GET /workflows/{id}", s.handleSnapshot)
	mux.HandleFunc("GET /workflows/{id}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /workflows/{id}/events", s.handleEvents)

	s.handler = mux
	if tracer != nil {
		s.handler = observability.HTTPMiddleware(tracer, mux)
	}

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// workflowIDs merges live and persisted workflow ids, deduplicated and
// sorted.
func (s *Server) workflowIDs() ([]string, error) {
	seen := map[string]bool{}

	if s.registry != nil {
		for _, id := range s.registry.WorkflowIDs() {
			seen[id] = true
		}
	}

	if s.store != nil {
		stored, err := s.store.List()
		if err != nil {
			return nil, err
		}

		for _, id := range stored {
			seen[id] = true
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// entries resolves a workflow's entries, preferring the live log.
func (s *Server) entries(id string) ([]worklog.Entry, bool, error) {
	if s.registry != nil {
		if log, found := s.registry.Lookup(id); found {
			return log.Entries(""), true, nil
		}
	}

	if s.store != nil {
		loaded, err := s.store.Load(id)
		if err == nil {
			return loaded, true, nil
		}
	}

	return nil, false, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	ids, err := s.workflowIDs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	writeJSON(w, map[string]any{"workflows": ids})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	entries, found, err := s.entries(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	if !found {
		http.NotFound(w, r)

		return
	}

	writeJSON(w, entries)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	entries, found, err := s.entries(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	if !found {
		http.NotFound(w, r)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	err = RenderWorkflow(w, id, entries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleEvents streams a live workflow's entries as server-sent events. The
// subscription starts with a replay of everything appended so far.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.NotFound(w, r)

		return
	}

	log, found := s.registry.Lookup(r.PathValue("id"))
	if !found {
		http.NotFound(w, r)

		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)

		return
	}

	// Subscribe before snapshotting so nothing appended in between is lost;
	// the id check below drops the overlap.
	live, cancel := log.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var lastID int64

	for _, entry := range log.Entries("") {
		writeEvent(w, flusher, entry)
		lastID = entry.ID
	}

	for {
		select {
		case <-r.Context().Done():
			return

		case entry, open := <-live:
			if !open {
				return
			}

			if entry.ID <= lastID {
				continue
			}

			writeEvent(w, flusher, entry)
			lastID = entry.ID
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, entry worklog.Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
