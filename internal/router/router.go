// Package router exposes the feature provider over a thin items API:
// query parameters are validated and translated into provider calls, and
// provider errors are mapped onto HTTP statuses.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/timtuun/pygeoapi/internal/model"
	"github.com/timtuun/pygeoapi/internal/observability"
	"github.com/timtuun/pygeoapi/internal/provider"
)

const contentTypeGeoJSON = "application/geo+json"

// query parameters with reserved meaning; everything else becomes a
// property equality filter.
var reservedParams = map[string]bool{
	"limit":      true,
	"offset":     true,
	"startindex": true,
	"resulttype": true,
	"bbox":       true,
	"datetime":   true,
	"sortby":     true,
	"f":          true,
}

type Handler struct {
	prov         provider.Provider
	log          *slog.Logger
	defaultLimit int
}

func New(prov provider.Provider, log *slog.Logger, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &Handler{prov: prov, log: log, defaultLimit: defaultLimit}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/items", h.getItems)
	r.Post("/items", h.createItem)
	r.Get("/items/{id}", h.getItem)
	r.Put("/items/{id}", h.updateItem)
	r.Delete("/items/{id}", h.deleteItem)
	r.Get("/fields", h.getFields)
	return r
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseQueryParams validates the items query string and maps it onto the
// provider's abstract parameters. Unreserved parameters become property
// equality filters, sorted by name so the emitted filter is deterministic.
func ParseQueryParams(r *http.Request, defaultLimit int) (model.QueryParams, error) {
	values := r.URL.Query()
	q := model.QueryParams{
		Limit:      int64(defaultLimit),
		ResultType: model.ResultTypeResults,
	}

	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return model.QueryParams{}, fmt.Errorf("invalid limit: %w", err)
		}
		q.Limit = n
	}

	offsetParam := values.Get("offset")
	if offsetParam == "" {
		// the original vocabulary called this startindex
		offsetParam = values.Get("startindex")
	}
	if v := strings.TrimSpace(offsetParam); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return model.QueryParams{}, fmt.Errorf("invalid offset %q", v)
		}
		q.Offset = n
	}

	switch rt := strings.TrimSpace(values.Get("resulttype")); rt {
	case "", model.ResultTypeResults:
	case model.ResultTypeHits:
		q.ResultType = model.ResultTypeHits
	default:
		return model.QueryParams{}, fmt.Errorf("invalid resulttype %q", rt)
	}

	if v := strings.TrimSpace(values.Get("bbox")); v != "" {
		coords, err := parseBBox(v)
		if err != nil {
			return model.QueryParams{}, fmt.Errorf("invalid bbox: %w", err)
		}
		q.BBox = coords
	}

	dr, err := model.ParseDatetimeRange(values.Get("datetime"))
	if err != nil {
		return model.QueryParams{}, fmt.Errorf("invalid datetime: %w", err)
	}
	q.Datetime = dr

	specs, err := model.ParseSortBy(values.Get("sortby"))
	if err != nil {
		return model.QueryParams{}, fmt.Errorf("invalid sortby: %w", err)
	}
	q.SortBy = specs

	var names []string
	for name := range values {
		if !reservedParams[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		q.Properties = append(q.Properties, model.PropertyFilter{
			Name:  name,
			Value: values.Get(name),
		})
	}

	return q, nil
}

// parseBBox splits comma-separated coordinates. The count is not enforced
// here: the provider ignores anything that is not exactly 4 values.
func parseBBox(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	coords := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", p, err)
		}
		coords = append(coords, f)
	}
	return coords, nil
}

func (h *Handler) getItems(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/items", sw.code, time.Since(start).Seconds())
	}()

	q, err := ParseQueryParams(r, h.defaultLimit)
	if err != nil {
		writeError(sw, http.StatusBadRequest, err.Error())
		return
	}

	fc, err := h.prov.Query(r.Context(), q)
	if err != nil {
		h.writeProviderError(sw, r, err)
		return
	}

	writeJSON(sw, http.StatusOK, contentTypeGeoJSON, fc)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/items/{id}", sw.code, time.Since(start).Seconds())
	}()

	feature, err := h.prov.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeProviderError(sw, r, err)
		return
	}

	body, err := json.Marshal(feature)
	if err != nil {
		writeError(sw, http.StatusInternalServerError, "encode feature")
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	if r.Header.Get("If-None-Match") == etag {
		sw.WriteHeader(http.StatusNotModified)
		return
	}

	sw.Header().Set("Content-Type", contentTypeGeoJSON)
	sw.Header().Set("ETag", etag)
	_, _ = sw.Write(body)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/items", sw.code, time.Since(start).Seconds())
	}()

	var feature model.Feature
	if err := json.NewDecoder(r.Body).Decode(&feature); err != nil {
		writeError(sw, http.StatusBadRequest, "invalid feature body: "+err.Error())
		return
	}

	id, err := h.prov.Create(r.Context(), feature)
	if err != nil {
		h.writeProviderError(sw, r, err)
		return
	}

	sw.Header().Set("Location", r.URL.Path+"/"+id)
	writeJSON(sw, http.StatusCreated, "application/json", map[string]string{"id": id})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/items/{id}", sw.code, time.Since(start).Seconds())
	}()

	var feature model.Feature
	if err := json.NewDecoder(r.Body).Decode(&feature); err != nil {
		writeError(sw, http.StatusBadRequest, "invalid feature body: "+err.Error())
		return
	}

	if err := h.prov.Update(r.Context(), chi.URLParam(r, "id"), feature); err != nil {
		h.writeProviderError(sw, r, err)
		return
	}
	sw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/items/{id}", sw.code, time.Since(start).Seconds())
	}()

	if err := h.prov.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeProviderError(sw, r, err)
		return
	}
	sw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getFields(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		observability.ObserveHTTP(r.Method, "/fields", sw.code, time.Since(start).Seconds())
	}()

	fields, err := h.prov.Fields(r.Context())
	if err != nil {
		h.writeProviderError(sw, r, err)
		return
	}
	writeJSON(sw, http.StatusOK, "application/json", fields)
}

func (h *Handler) writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, provider.ErrInvalidRange), errors.Is(err, provider.ErrInvalidIdentifier):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.LogAttrs(r.Context(), slog.LevelError, "provider failure",
			slog.String("path", r.URL.Path),
			slog.String("err", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "store failure")
	}
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, "application/json", map[string]any{
		"code":        status,
		"description": msg,
	})
}
