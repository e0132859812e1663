// Package server wires the HTTP surface of the tile proxy.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maprender/tilesource/internal/cache"
	"github.com/maprender/tilesource/internal/health"
	imw "github.com/maprender/tilesource/internal/middleware"
	"github.com/maprender/tilesource/internal/source"
)

// Entry is one configured tile source.
type Entry struct {
	Name   string
	URL    string
	Source source.TileSource
}

// Deps carries everything the HTTP surface needs; Cache may be nil when
// caching is disabled.
type Deps struct {
	Sources        map[string]Entry
	Cache          cache.Store
	CacheTTL       time.Duration
	CacheOpTimeout time.Duration
}

// New builds the router.
func New(deps Deps, log zerolog.Logger) http.Handler {
	h := &handler{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(imw.Recover(log))
	r.Use(imw.RequestID())
	r.Use(imw.CORS())
	r.Use(imw.Logging(log))

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(h))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/sources", h.listSources)
	r.Get("/tiles/{source}/{level}/{row}/{col}.png", h.getTile)
	r.Get("/heights/{source}/{level}/{row}/{col}", h.getHeightField)

	return r
}

// Run serves until the context is cancelled.
func Run(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
