package arcgis

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maprender/tilesource/internal/fetch"
	"github.com/maprender/tilesource/internal/geo"
	"github.com/maprender/tilesource/internal/model"
	"github.com/maprender/tilesource/internal/source"
)

// Token is the capability token this source registers under.
const Token = "arcgis"

// fusedView is the layer selection meaning "all layers, rendered together".
// It is the only selection the adapter supports.
const fusedView = "_alllayers"

// Config carries the adapter's external collaborators.
type Config struct {
	// Fetcher retrieves and decodes tile images.
	Fetcher fetch.ImageFetcher
	// HTTPClient performs the one-time metadata discovery request.
	HTTPClient *http.Client
}

// Source adapts one ArcGIS REST map service to the TileSource contract.
// All fields are resolved during New and read-only afterwards, so a Source
// is safe for concurrent requests.
type Source struct {
	url      string
	desc     Descriptor
	profile  geo.Profile
	format   string
	tileSize int
	fetcher  fetch.ImageFetcher
	log      zerolog.Logger

	// disabled is set when metadata discovery failed; every request then
	// reports ErrNotAvailable instead of guessing an addressing scheme.
	disabled bool
}

// Factory adapts New to the registry contract, wiring in a shared fetch
// client.
func Factory(client *fetch.Client) source.Factory {
	return func(ctx context.Context, opts source.Options, logger *zerolog.Logger) (source.TileSource, error) {
		return New(ctx, opts, Config{Fetcher: client, HTTPClient: client.HTTPClient()}, logger)
	}
}

// New builds a Source for the map service at opts.URL. Configuration errors
// (missing URL, unknown profile name, unsupported layer selection) fail
// construction. A failed metadata fetch does not: the source is returned in
// a disabled state and logged once, per the host's degraded-source policy.
func New(ctx context.Context, opts source.Options, cfg Config, logger *zerolog.Logger) (*Source, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("arcgis: option %q is required", "url")
	}
	if opts.Layer != "" && opts.Layer != fusedView {
		return nil, fmt.Errorf("arcgis: unsupported layer selection %q: only the fused view (%s) is supported", opts.Layer, fusedView)
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("arcgis: fetcher is required")
	}
	if opts.Profile != "" {
		if _, err := geo.Named(opts.Profile); err != nil {
			return nil, fmt.Errorf("arcgis: %w", err)
		}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("source", Token).Str("url", opts.URL).Logger()
	}

	s := &Source{
		url:      strings.TrimRight(opts.URL, "/"),
		tileSize: defaultTileSize,
		format:   defaultFormat,
		fetcher:  cfg.Fetcher,
		log:      log,
	}

	desc, err := Discover(ctx, cfg.HTTPClient, s.url)
	if err != nil {
		s.log.Warn().Err(err).Msg("map service initialization failed; source disabled")
		s.disabled = true
		s.profile = fallbackProfile(opts.Profile)
		return s, nil
	}

	s.desc = desc
	s.tileSize = desc.TileSize
	s.format = normalizeFormat(desc.Format)

	profile, err := resolveProfile(opts.Profile, desc)
	if err != nil {
		return nil, err
	}
	s.profile = profile

	s.log.Info().
		Bool("tiled", desc.Tiled).
		Str("profile", profile.Name).
		Int("tile_size", s.tileSize).
		Str("format", s.format).
		Msg("map service initialized")
	return s, nil
}

// resolveProfile picks the effective profile: an explicit override wins,
// then whatever the service reports, then the global default.
func resolveProfile(override string, desc Descriptor) (geo.Profile, error) {
	if override != "" {
		p, err := geo.Named(override)
		if err != nil {
			return geo.Profile{}, fmt.Errorf("arcgis: %w", err)
		}
		return p, nil
	}

	if desc.Tiled {
		if p, ok := geo.ForWKID(desc.WKID); ok {
			return p, nil
		}
		if !desc.FullExtent.Empty() {
			return geo.FromExtent(srsName(desc.WKID), desc.FullExtent, 1, 1), nil
		}
		return geo.Default(), nil
	}

	// Export endpoints force the response's pixel aspect ratio to match the
	// request's geometric aspect ratio, so the grid is built over a squared
	// extent: only square requests are guaranteed the exact pixel
	// dimensions asked for.
	if !desc.FullExtent.Empty() {
		p := geo.FromExtent(srsName(desc.WKID), desc.FullExtent, 1, 1)
		return geo.Squared(p), nil
	}
	if p, ok := geo.ForWKID(desc.WKID); ok {
		return p, nil
	}
	return geo.Default(), nil
}

func fallbackProfile(override string) geo.Profile {
	if override != "" {
		if p, err := geo.Named(override); err == nil {
			return p
		}
	}
	return geo.Default()
}

func srsName(wkid int) string {
	if wkid == 0 {
		return "unknown"
	}
	return fmt.Sprintf("EPSG:%d", wkid)
}

// normalizeFormat lowercases the service's declared image format and
// collapses verbose PNG labels (PNG24, png32, ...) to plain "png".
func normalizeFormat(f string) string {
	f = strings.ToLower(f)
	if strings.HasPrefix(f, "png") {
		return "png"
	}
	return f
}

func (s *Source) Profile() geo.Profile { return s.profile }
func (s *Source) PixelsPerTile() int   { return s.tileSize }
func (s *Source) Extension() string    { return s.format }

// Disabled reports whether metadata discovery failed at construction.
func (s *Source) Disabled() bool { return s.disabled }

// TileURL synthesizes the fetch URL for one tile. Tiled services address
// pre-rendered tiles as /tile/{level}/{row}/{col}; the row-before-column
// order is the service's convention. Everything else goes through /export
// with the tile's bounding box.
func (s *Source) TileURL(req model.TileRequest) (string, error) {
	if s.disabled {
		return "", fmt.Errorf("%w: source disabled after failed initialization", source.ErrNotAvailable)
	}

	if s.desc.Tiled {
		return fmt.Sprintf("%s/tile/%d/%d/%d.%s",
			s.url, req.Key.Level, req.Key.Row, req.Key.Col, s.format), nil
	}

	ex := req.Extent
	return fmt.Sprintf("%s/export?bbox=%s,%s,%s,%s&format=%s&size=256,256&transparent=true&f=image",
		s.url,
		formatCoord(ex.XMin), formatCoord(ex.YMin),
		formatCoord(ex.XMax), formatCoord(ex.YMax),
		s.format), nil
}

// formatCoord serializes a bbox coordinate without precision loss; rounding
// here shows up as seams between adjacent export tiles.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CreateImage resolves the tile URL and delegates to the fetch collaborator.
// Failures affect only this request.
func (s *Source) CreateImage(ctx context.Context, req model.TileRequest) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u, err := s.TileURL(req)
	if err != nil {
		return nil, err
	}

	img, err := s.fetcher.FetchImage(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Debug().Err(err).Str("tile", req.Key.String()).Msg("tile fetch failed")
		return nil, fmt.Errorf("%w: %v", source.ErrNotAvailable, err)
	}
	return img, nil
}

// CreateHeightField always reports ErrNotAvailable: elevation retrieval is
// not implemented for map services.
func (s *Source) CreateHeightField(ctx context.Context, req model.TileRequest) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: height fields are not supported", source.ErrNotAvailable)
}
