// Package api exposes alert history, ad-hoc evaluation and reports over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/bizalert/internal/engine"
	"github.com/rewired-gh/bizalert/internal/message"
	"github.com/rewired-gh/bizalert/internal/metrics"
	"github.com/rewired-gh/bizalert/internal/models"
	"github.com/rewired-gh/bizalert/internal/storage"
)

const defaultLimit = 100

type Server struct {
	store    *storage.Storage
	engine   *engine.Engine
	renderer *message.Renderer
	settings models.AlertSettings
	timeout  time.Duration
}

func NewServer(store *storage.Storage, eng *engine.Engine, renderer *message.Renderer, settings models.AlertSettings, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		store:    store,
		engine:   eng,
		renderer: renderer,
		settings: settings,
		timeout:  timeout,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(countPanics)
	router.Use(middleware.Timeout(s.timeout))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "bizalert"})
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/v1", func(r chi.Router) {
		r.Get("/alerts", s.listAlerts)
		r.Patch("/alerts/{id}/ack", s.acknowledge)
		r.Patch("/alerts/{id}/dismiss", s.dismiss)
		r.Post("/evaluate", s.evaluate)
		r.Get("/report", s.report)
	})

	return router
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AlertFilter{Limit: parseLimit(q.Get("limit"), defaultLimit)}

	if raw := q.Get("severity"); raw != "" {
		sev, err := models.ParseSeverity(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.MinSeverity = sev
	}
	if raw := q.Get("include_dismissed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "include_dismissed must be a boolean")
			return
		}
		filter.IncludeDismissed = v
	}

	alerts, err := s.store.ListAlerts(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": alerts})
}

func (s *Server) acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Acknowledge(id); err != nil {
		handleStatusUpdateError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": "acknowledged"})
}

func (s *Server) dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Dismiss(id); err != nil {
		handleStatusUpdateError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": "dismissed"})
}

type evaluateRequest struct {
	Records []models.SalesRecord `json:"records"`
}

// evaluate runs the engine over posted records without persisting anything.
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	for i := range req.Records {
		if err := req.Records[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "record "+strconv.Itoa(i)+": "+err.Error())
			return
		}
	}

	alerts := s.engine.Check(req.Records, s.settings)
	metrics.EvaluationsTotal.WithLabelValues("api").Inc()
	WriteJSON(w, http.StatusOK, map[string]any{"items": alerts})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListAlerts(storage.AlertFilter{Limit: parseLimit(r.URL.Query().Get("limit"), defaultLimit)})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.renderer.Summary(alerts)))
}

func handleStatusUpdateError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
