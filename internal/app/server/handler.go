package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/maprender/tilesource/internal/cache/keys"
	"github.com/maprender/tilesource/internal/logger"
	"github.com/maprender/tilesource/internal/model"
	"github.com/maprender/tilesource/internal/observability"
	"github.com/maprender/tilesource/internal/source"
)

// The proxy normalizes every source's output to PNG, whatever format the
// upstream serves its tiles in.
const servedFormat = "png"

type handler struct {
	deps Deps
	log  zerolog.Logger
}

func (h *handler) getTile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	entry, k, ok := h.parseTilePath(w, r)
	if !ok {
		return
	}

	ctx := logger.WithSource(r.Context(), entry.Name)
	ctx = logger.WithTile(ctx, k.String())
	log := logger.FromContext(ctx, &h.log)

	if !entry.Source.Profile().Contains(k) {
		observability.ObserveTileRequest(entry.Name, "out_of_grid", time.Since(start).Seconds())
		http.NotFound(w, r)
		return
	}

	cacheKey := keys.Tile(entry.Name, entry.URL, k.Level, k.Row, k.Col, servedFormat)
	if body, ok := h.cacheGet(ctx, cacheKey); ok {
		observability.ObserveTileRequest(entry.Name, "cache_hit", time.Since(start).Seconds())
		writeTile(w, body)
		return
	}

	req := model.TileRequest{Key: k, Extent: entry.Source.Profile().TileExtent(k)}
	img, err := entry.Source.CreateImage(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, source.ErrNotAvailable):
		observability.ObserveTileRequest(entry.Name, "not_available", time.Since(start).Seconds())
		http.NotFound(w, r)
		return
	case ctx.Err() != nil:
		// client went away; nothing useful to write
		observability.ObserveTileRequest(entry.Name, "cancelled", time.Since(start).Seconds())
		return
	default:
		log.Error().Err(err).Msg("tile fetch failed")
		observability.ObserveTileRequest(entry.Name, "upstream_error", time.Since(start).Seconds())
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		log.Error().Err(err).Msg("tile encode failed")
		observability.ObserveTileRequest(entry.Name, "encode_error", time.Since(start).Seconds())
		http.Error(w, "tile encode failed", http.StatusInternalServerError)
		return
	}

	h.cacheSet(ctx, cacheKey, buf.Bytes())
	observability.ObserveTileRequest(entry.Name, "ok", time.Since(start).Seconds())
	writeTile(w, buf.Bytes())
}

func (h *handler) getHeightField(w http.ResponseWriter, r *http.Request) {
	entry, k, ok := h.parseTilePath(w, r)
	if !ok {
		return
	}

	req := model.TileRequest{Key: k, Extent: entry.Source.Profile().TileExtent(k)}
	heights, err := entry.Source.CreateHeightField(r.Context(), req)
	if err != nil {
		if errors.Is(err, source.ErrNotAvailable) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "height field fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(heights)
}

func (h *handler) listSources(w http.ResponseWriter, _ *http.Request) {
	type sourceInfo struct {
		Name          string `json:"name"`
		Profile       string `json:"profile"`
		SRS           string `json:"srs"`
		PixelsPerTile int    `json:"pixels_per_tile"`
		Extension     string `json:"extension"`
	}

	out := make([]sourceInfo, 0, len(h.deps.Sources))
	for name, e := range h.deps.Sources {
		p := e.Source.Profile()
		out = append(out, sourceInfo{
			Name:          name,
			Profile:       p.Name,
			SRS:           p.SRS,
			PixelsPerTile: e.Source.PixelsPerTile(),
			Extension:     e.Source.Extension(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// Readiness reports ready when at least one configured source initialized.
// Sources whose metadata discovery failed are listed as degraded.
func (h *handler) Readiness() (bool, []string) {
	type disabler interface{ Disabled() bool }

	var degraded []string
	healthy := 0
	for name, e := range h.deps.Sources {
		if d, ok := e.Source.(disabler); ok && d.Disabled() {
			degraded = append(degraded, name)
			continue
		}
		healthy++
	}
	return healthy > 0, degraded
}

func (h *handler) parseTilePath(w http.ResponseWriter, r *http.Request) (Entry, model.TileKey, bool) {
	entry, ok := h.deps.Sources[chi.URLParam(r, "source")]
	if !ok {
		http.NotFound(w, r)
		return Entry{}, model.TileKey{}, false
	}

	level, err1 := strconv.Atoi(chi.URLParam(r, "level"))
	row, err2 := strconv.Atoi(chi.URLParam(r, "row"))
	col, err3 := strconv.Atoi(chi.URLParam(r, "col"))
	if err1 != nil || err2 != nil || err3 != nil {
		http.Error(w, "level, row and col must be integers", http.StatusBadRequest)
		return Entry{}, model.TileKey{}, false
	}

	k := model.TileKey{Level: level, Col: col, Row: row}
	if !k.Valid() {
		http.Error(w, "level, row and col must be non-negative", http.StatusBadRequest)
		return Entry{}, model.TileKey{}, false
	}
	return entry, k, true
}

func (h *handler) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if h.deps.Cache == nil {
		return nil, false
	}
	opCtx, cancel := context.WithTimeout(ctx, h.deps.CacheOpTimeout)
	defer cancel()
	v, ok, err := h.deps.Cache.Get(opCtx, key)
	if err != nil {
		logger.FromContext(ctx, &h.log).Warn().Err(err).Msg("cache get failed")
		return nil, false
	}
	return v, ok
}

func (h *handler) cacheSet(ctx context.Context, key string, val []byte) {
	if h.deps.Cache == nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, h.deps.CacheOpTimeout)
	defer cancel()
	if err := h.deps.Cache.Set(opCtx, key, val, h.deps.CacheTTL); err != nil {
		logger.FromContext(ctx, &h.log).Warn().Err(err).Msg("cache set failed")
	}
}

func writeTile(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(body)
}
