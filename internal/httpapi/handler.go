package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"meshmap/internal/metrics"
	"meshmap/internal/viewer"
)

// Pinger is the readiness probe of an optional backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log     zerolog.Logger
	app     *viewer.App
	metrics *metrics.Metrics
	pool    Pinger
}

// NewHandler serves app. metrics and pool may be nil.
func NewHandler(log zerolog.Logger, app *viewer.App, m *metrics.Metrics, pool Pinger) *Handler {
	return &Handler{log: log, app: app, metrics: m, pool: pool}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/contexts", func(r chi.Router) {
				r.Get("/", h.handleListContexts)
				r.Put("/active", h.handleSetContext)
				r.Post("/active/refresh", h.handleRefresh)
			})

			r.Route("/map", func(r chi.Router) {
				r.Get("/", h.handleRender)
				r.Get("/view", h.handleGetView)
				r.Put("/view", h.handleSetView)
				r.Post("/events", h.handleDispatch)
				r.Get("/infowindow", h.handleInfoWindow)
				r.Delete("/infowindow", h.handleCloseInfoWindow)
			})

			r.Get("/sidebar", h.handleSidebar)
			r.Route("/types", func(r chi.Router) {
				r.Get("/", h.handleListTypes)
				r.Post("/{id}/toggle", h.handleToggleType)
			})
			r.Post("/menu/{id}", h.handleSelectMenuEntry)
			r.Get("/vector", h.handleVector)
			r.Post("/search", h.handleSearch)
			r.Get("/gateways", h.handleGateways)
			r.Get("/alerts", h.handleAlerts)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// do runs fn on the map's event loop and reports loop failures to the
// client. It returns false when a response was already written.
func (h *Handler) do(w http.ResponseWriter, r *http.Request, fn func(a *viewer.App)) bool {
	if err := h.app.Do(r.Context(), fn); err != nil {
		switch {
		case errors.Is(err, viewer.ErrClosed):
			h.writeError(w, http.StatusServiceUnavailable, "map_closed", "map is shutting down", nil)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			h.writeError(w, http.StatusServiceUnavailable, "map_busy", "map did not respond in time", nil)
		default:
			h.log.Error().Err(err).Msg("event loop call failed")
			h.writeError(w, http.StatusInternalServerError, "internal", "map call failed", nil)
		}
		return false
	}
	return true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	select {
	case <-h.app.Ready():
	default:
		h.writeError(w, http.StatusServiceUnavailable, "map_unavailable", "map not ready", nil)
		return
	}

	if h.pool != nil {
		if err := h.pool.Ping(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
