// Package httpapi serves the editor's HTTP surface: the JSON route API, the
// websocket bridge endpoint, health checks, and metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/bridge"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/clip"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/editor"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geom"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/metrics"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/store"
)

// MapConfig is what the map surface needs to bootstrap itself: which
// borough it is editing and where to centre before any routes load.
type MapConfig struct {
	Borough   string
	CentreLat float64
	CentreLon float64
}

type Handler struct {
	log     zerolog.Logger
	session *bridge.Session
	store   *store.Store
	pool    *store.Pool
	metrics *metrics.Metrics
	mapCfg  MapConfig
}

// NewHandler wires the HTTP surface over a running session. store and pool
// may be nil when persistence is not configured.
func NewHandler(log zerolog.Logger, session *bridge.Session, st *store.Store, pool *store.Pool, m *metrics.Metrics, mapCfg MapConfig) *Handler {
	return &Handler{log: log, session: session, store: st, pool: pool, metrics: m, mapCfg: mapCfg}
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
			r.Route("/routes", func(r chi.Router) {
				r.Get("/", h.handleListRoutes)
				r.Post("/save", h.handleSaveRoutes)
				r.Post("/discard", h.handleDiscardRoutes)
				r.Post("/{guid}/commit", h.handleCommitRoute)
			})
			r.Get("/map", h.handleMapConfig)
			r.Put("/style", h.handleSetStyle)
			r.Get("/bridge", h.handleBridge)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
		h.metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not reachable", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.session.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "session_unavailable", err.Error(), nil)
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, route := range routes {
		fc.Append(featureFromRoute(route))
	}
	h.writeJSON(w, http.StatusOK, fc)
}

func (h *Handler) handleCommitRoute(w http.ResponseWriter, r *http.Request) {
	guid := chi.URLParam(r, "guid")
	route, err := h.session.CommitRoute(r.Context(), guid)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, featureFromRoute(route))
	case errors.Is(err, editor.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "route_not_found", err.Error(), nil)
	case errors.Is(err, clip.ErrEmptyClip):
		h.writeError(w, http.StatusUnprocessableEntity, "empty_clip", "route lies entirely outside the borough boundary", map[string]any{"guid": guid})
	default:
		h.writeError(w, http.StatusInternalServerError, "commit_failed", err.Error(), nil)
	}
}

func (h *Handler) handleSaveRoutes(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "no database configured", nil)
		return
	}
	routes, err := h.session.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "session_unavailable", err.Error(), nil)
		return
	}
	if err := h.store.SaveRoutes(r.Context(), h.mapCfg.Borough, routes); err != nil {
		h.writeError(w, http.StatusInternalServerError, "save_failed", err.Error(), nil)
		return
	}
	if err := h.session.MarkSaved(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "save_failed", err.Error(), nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"saved": len(routes)})
}

func (h *Handler) handleMapConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"borough": h.mapCfg.Borough,
		"centre": map[string]float64{
			"lat": h.mapCfg.CentreLat,
			"lon": h.mapCfg.CentreLon,
		},
	})
}

func (h *Handler) handleDiscardRoutes(w http.ResponseWriter, r *http.Request) {
	n, err := h.session.DiscardUnsaved(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "session_unavailable", err.Error(), nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"routes": n})
}

func (h *Handler) handleSetStyle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Scheme string `json:"scheme"`
	}
	if err := decodeJSONStrict(r, &body); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", err.Error(), nil)
		return
	}
	if body.Scheme == "" {
		h.writeError(w, http.StatusBadRequest, "bad_request", "scheme is required", nil)
		return
	}
	h.session.SetStyle(body.Scheme)
	w.WriteHeader(http.StatusNoContent)
}

func featureFromRoute(r *editor.Route) *geojson.Feature {
	f := geojson.NewFeature(r.Geometry)
	f.ID = r.GUID
	f.Properties = geojson.Properties{
		"guid":         r.GUID,
		"id":           r.ID,
		"name":         r.Name,
		"comment":      r.Comment,
		"designation":  r.Designation,
		"ownership":    r.Ownership,
		"one_way":      r.OneWay,
		"flow":         r.Flow,
		"protection":   r.Protection,
		"year_built":   r.YearBuilt,
		"history":      r.History,
		"when_created": r.WhenCreated,
		"last_edited":  r.LastEdited,
		"length_m":     geom.MultiLineLengthM(r.Geometry),
	}
	return f
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
