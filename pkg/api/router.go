// Package api serves the status endpoints of a run over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	verrors "vistara-analytics/pkg/errors"
	"vistara-analytics/pkg/ports"
	"vistara-analytics/pkg/stats"
)

// SnapshotSource provides the statistics served by /api/v1/stats.
type SnapshotSource interface {
	Latest() stats.Snapshot
}

// HealthFunc reports whether the run is healthy.
type HealthFunc func() error

// Deps are the collaborators the router reads from. Nil members disable the
// corresponding endpoints.
type Deps struct {
	Metrics http.Handler
	Stats   SnapshotSource
	Results ports.ResultRepository
	Health  HealthFunc
	Logger  *logrus.Entry
}

type handler struct {
	deps Deps
}

// NewRouter builds the HTTP routes:
//
//	GET /metrics
//	GET /healthz
//	GET /api/v1/stats
//	GET /api/v1/channels
//	GET /api/v1/channels/{channel}/latest
func NewRouter(deps Deps) *chi.Mux {
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if deps.Logger != nil {
		r.Use(RequestLogger(deps.Logger))
	}

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Get("/healthz", h.health)

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Stats != nil {
			r.Get("/stats", h.stats)
		}

		if deps.Results != nil {
			r.Get("/channels", h.channels)
			r.Get("/channels/{channel}/latest", h.latest)
		}
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.deps.Health != nil {
		if err := h.deps.Health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})

			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Stats.Latest())
}

func (h *handler) channels(w http.ResponseWriter, r *http.Request) {
	all, err := h.deps.Results.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)

		return
	}

	writeJSON(w, http.StatusOK, all)
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("channel must be an integer"))

		return
	}

	result, err := h.deps.Results.Get(r.Context(), channel)

	switch {
	case errors.Is(err, verrors.ErrChannelOutOfRange):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	case result == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// RequestLogger returns chi middleware logging every request at debug level
// with its status and duration.
func RequestLogger(logger *logrus.Entry) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"size":        ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("request")
		})
	}
}
