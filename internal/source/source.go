// Package source defines the tile source contract and the registry that maps
// capability tokens to source factories.
package source

import (
	"context"
	"errors"
	"image"

	"github.com/maprender/tilesource/internal/geo"
	"github.com/maprender/tilesource/internal/model"
)

var (
	// ErrNotHandled means no registered factory accepts the token.
	ErrNotHandled = errors.New("source: token not handled")
	// ErrNotAvailable means the source cannot produce the requested tile:
	// fetch or decode failed, the operation is unsupported, or the source
	// was constructed in a disabled state.
	ErrNotAvailable = errors.New("source: tile not available")
)

// Options carries construction options for a tile source.
type Options struct {
	// URL is the remote service endpoint. Required.
	URL string
	// Profile optionally forces a named spatial profile, overriding
	// whatever the service reports.
	Profile string
	// Layer optionally selects a single layer. Only the fused view is
	// supported; anything else is an unsupported configuration.
	Layer string
}

// TileSource produces raster tiles from one remote service. Implementations
// must be safe for concurrent use once constructed: construction resolves
// all mutable state, requests only read it.
type TileSource interface {
	// Profile returns the effective spatial profile of the source.
	Profile() geo.Profile
	// PixelsPerTile returns the edge length of produced tiles in pixels.
	PixelsPerTile() int
	// CreateImage fetches and decodes one tile. It returns ErrNotAvailable
	// when the tile cannot be produced; other tiles are unaffected.
	CreateImage(ctx context.Context, req model.TileRequest) (image.Image, error)
	// CreateHeightField fetches one elevation tile, if the source supports
	// elevation data.
	CreateHeightField(ctx context.Context, req model.TileRequest) ([]float32, error)
	// Extension returns the file extension of the images the source produces.
	Extension() string
}
