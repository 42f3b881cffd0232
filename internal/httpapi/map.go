package httpapi

import (
	"errors"
	"math"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
	"meshmap/internal/topology"
	"meshmap/internal/viewctx"
	"meshmap/internal/viewer"
)

type contextSwitch struct {
	ID string `json:"id"`
}

type viewUpdate struct {
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
	Zoom *int     `json:"zoom,omitempty"`
}

type mapEvent struct {
	Kind string  `json:"kind"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type sidebar struct {
	Context string           `json:"context"`
	Widgets []viewctx.Widget `json:"widgets"`
}

type gatewayReport struct {
	Gateways    []string              `json:"gateways"`
	Assignments []topology.Assignment `json:"assignments"`
	Stats       topology.Stats        `json:"stats"`
}

func (h *Handler) noActiveContext(w http.ResponseWriter) {
	h.writeError(w, http.StatusConflict, "no_active_context", "no context is active yet", nil)
}

func (h *Handler) handleListContexts(w http.ResponseWriter, r *http.Request) {
	var entries []viewctx.MenuEntry
	var locked bool
	if !h.do(w, r, func(a *viewer.App) {
		entries = a.Manager.Entries()
		locked = a.Manager.Locked()
	}) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"contexts": entries, "locked": locked})
}

func (h *Handler) handleSetContext(w http.ResponseWriter, r *http.Request) {
	var req contextSwitch
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	var (
		switched, locked bool
		active           string
		err              error
	)
	if !h.do(w, r, func(a *viewer.App) {
		locked = a.Manager.Locked()
		switched, err = a.Manager.SetContext(req.ID)
		active = a.Manager.Active()
	}) {
		return
	}

	switch {
	case errors.Is(err, viewctx.ErrUnknownContext):
		h.writeError(w, http.StatusNotFound, "not_found", "context not found", map[string]any{"id": req.ID})
	case err != nil:
		h.log.Error().Err(err).Str("id", req.ID).Msg("context switch failed")
		h.writeError(w, http.StatusInternalServerError, "internal", "context switch failed", nil)
	case locked:
		// Dropped, not queued: the client retries once the fetch is done.
		h.writeError(w, http.StatusConflict, "context_locked", "a context is loading data", map[string]any{"active": active})
	default:
		h.writeJSON(w, http.StatusOK, map[string]any{"active": active, "switched": switched})
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var refreshed, found bool
	if !h.do(w, r, func(a *viewer.App) {
		if b := a.ActiveBase(); b != nil {
			found = true
			refreshed = b.Refresh()
		}
	}) {
		return
	}
	if !found {
		h.noActiveContext(w)
		return
	}
	if !refreshed {
		h.writeError(w, http.StatusConflict, "context_locked", "a context is loading data", nil)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"refreshing": true})
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("settle") == "1" {
		if err := h.app.Settle(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "map_busy", "map did not settle", map[string]any{"error": err.Error()})
			return
		}
	}
	body, contentType, err := h.app.Render(r.Context())
	if err != nil {
		if errors.Is(err, viewer.ErrClosed) {
			h.writeError(w, http.StatusServiceUnavailable, "map_closed", "map is shutting down", nil)
			return
		}
		h.log.Error().Err(err).Msg("render failed")
		h.writeError(w, http.StatusInternalServerError, "render_failed", "failed to render map", nil)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleGetView(w http.ResponseWriter, r *http.Request) {
	var v mapview.ViewState
	if !h.do(w, r, func(a *viewer.App) { v = a.Map.SnapshotState() }) {
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req viewUpdate
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.Lat == nil || req.Lng == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "lat and lng are required", nil)
		return
	}
	if !validLatLng(*req.Lat, *req.Lng) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "position out of range", map[string]any{"lat": *req.Lat, "lng": *req.Lng})
		return
	}
	if req.Zoom != nil && (*req.Zoom < 0 || *req.Zoom > 22) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "zoom out of range", map[string]any{"zoom": *req.Zoom})
		return
	}

	var v mapview.ViewState
	if !h.do(w, r, func(a *viewer.App) {
		zoom := a.Map.SnapshotState().Zoom
		if req.Zoom != nil {
			zoom = *req.Zoom
		}
		a.Map.SetCenter(a.Map.CreatePoint(*req.Lat, *req.Lng), zoom)
		v = a.Map.SnapshotState()
	}) {
		return
	}
	h.writeJSON(w, http.StatusOK, v)
}

func validLatLng(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req mapEvent
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	kind := mapview.EventKind(strings.ToLower(req.Kind))
	if kind != mapview.Click && kind != mapview.DoubleClick {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "kind must be click or dblclick", map[string]any{"kind": req.Kind})
		return
	}
	if !validLatLng(req.Lat, req.Lng) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "position out of range", map[string]any{"lat": req.Lat, "lng": req.Lng})
		return
	}

	var handled bool
	if !h.do(w, r, func(a *viewer.App) {
		handled = a.Map.Dispatch(kind, geomath.LatLng{Lat: req.Lat, Lng: req.Lng})
	}) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"handled": handled})
}

func (h *Handler) handleInfoWindow(w http.ResponseWriter, r *http.Request) {
	var (
		win  mapview.InfoWindow
		open bool
	)
	if !h.do(w, r, func(a *viewer.App) { win, open = a.Map.InfoWindow() }) {
		return
	}
	if !open {
		h.writeError(w, http.StatusNotFound, "not_found", "no info window is open", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, win)
}

func (h *Handler) handleCloseInfoWindow(w http.ResponseWriter, r *http.Request) {
	if !h.do(w, r, func(a *viewer.App) { a.Map.CloseInfoWindow() }) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSidebar(w http.ResponseWriter, r *http.Request) {
	var resp sidebar
	if !h.do(w, r, func(a *viewer.App) {
		resp.Context = a.Manager.Active()
		if b := a.ActiveBase(); b != nil {
			resp.Widgets = b.Widgets.Widgets()
		}
	}) {
		return
	}
	if resp.Widgets == nil {
		resp.Widgets = []viewctx.Widget{}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	var (
		legend []viewctx.LegendEntry
		found  bool
	)
	if !h.do(w, r, func(a *viewer.App) {
		if b := a.ActiveBase(); b != nil {
			found = true
			legend = b.Legend()
		}
	}) {
		return
	}
	if !found {
		h.noActiveContext(w)
		return
	}
	h.writeJSON(w, http.StatusOK, legend)
}

func (h *Handler) handleToggleType(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var visible, known, found bool
	if !h.do(w, r, func(a *viewer.App) {
		b := a.ActiveBase()
		if b == nil {
			return
		}
		found = true
		if _, known = b.Type(id); known {
			visible = b.ToggleType(id)
		}
	}) {
		return
	}
	switch {
	case !found:
		h.noActiveContext(w)
	case !known:
		h.writeError(w, http.StatusNotFound, "not_found", "overlay type not found", map[string]any{"id": id})
	default:
		h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "visible": visible})
	}
}

func (h *Handler) handleSelectMenuEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var selected, found bool
	var win mapview.InfoWindow
	if !h.do(w, r, func(a *viewer.App) {
		b := a.ActiveBase()
		if b == nil {
			return
		}
		found = true
		if !slices.ContainsFunc(b.Menu(), func(m viewctx.MenuItem) bool { return m.ID == id }) {
			return
		}
		selected = b.SelectMenuEntry(id)
		win, _ = a.Map.InfoWindow()
	}) {
		return
	}
	switch {
	case !found:
		h.noActiveContext(w)
	case !selected:
		h.writeError(w, http.StatusNotFound, "not_found", "menu entry not found", map[string]any{"id": id})
	default:
		h.writeJSON(w, http.StatusOK, win)
	}
}

func (h *Handler) handleVector(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "from and to are required", nil)
		return
	}

	var dist, bearing float64
	var ok bool
	if !h.do(w, r, func(a *viewer.App) {
		if b := a.ActiveBase(); b != nil {
			dist, bearing, ok = b.Vector(from, to)
		}
	}) {
		return
	}
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "marker not found", map[string]any{"from": from, "to": to})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"from":        from,
		"to":          to,
		"distance_m":  math.Round(dist),
		"bearing_deg": math.Round(bearing),
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "query is required", nil)
		return
	}

	var active string
	if !h.do(w, r, func(a *viewer.App) {
		active = a.Manager.Active()
		if active == viewer.ContextTopography {
			a.Search(q)
		}
	}) {
		return
	}
	if active != viewer.ContextTopography {
		h.writeError(w, http.StatusConflict, "context_inactive", "address search needs the topography context", map[string]any{"active": active})
		return
	}
	// The result arrives later as a custom point or an alert.
	h.writeJSON(w, http.StatusAccepted, map[string]any{"query": q})
}

func (h *Handler) handleGateways(w http.ResponseWriter, r *http.Request) {
	var res *topology.Resolution
	if !h.do(w, r, func(a *viewer.App) { res = a.Gateways.Resolution() }) {
		return
	}
	if res == nil {
		h.writeError(w, http.StatusNotFound, "not_resolved", "gateway view has not loaded data yet", nil)
		return
	}

	out := gatewayReport{Gateways: res.Gateways, Stats: res.Stats}
	for _, a := range res.Assignments {
		out.Assignments = append(out.Assignments, a)
	}
	slices.SortFunc(out.Assignments, func(x, y topology.Assignment) int {
		return viewctx.NaturalCompare(x.Node, y.Node)
	})
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var alerts []viewer.Alert
	if !h.do(w, r, func(a *viewer.App) { alerts = a.Alerts.Recent() }) {
		return
	}
	if alerts == nil {
		alerts = []viewer.Alert{}
	}
	h.writeJSON(w, http.StatusOK, alerts)
}
