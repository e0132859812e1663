package source

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/rs/zerolog"

	"github.com/maprender/tilesource/internal/geo"
	"github.com/maprender/tilesource/internal/model"
)

type stubSource struct{}

func (stubSource) Profile() geo.Profile { return geo.Default() }
func (stubSource) PixelsPerTile() int   { return 256 }
func (stubSource) Extension() string    { return "png" }
func (stubSource) CreateImage(context.Context, model.TileRequest) (image.Image, error) {
	return nil, ErrNotAvailable
}
func (stubSource) CreateHeightField(context.Context, model.TileRequest) ([]float32, error) {
	return nil, ErrNotAvailable
}

func TestRegistry_UnknownTokenNotHandled(t *testing.T) {
	_, err := New(context.Background(), "wms", Options{URL: "http://example.com"}, nil)
	if !errors.Is(err, ErrNotHandled) {
		t.Fatalf("got %v, want ErrNotHandled", err)
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	var gotOpts Options
	Register("stub", func(_ context.Context, opts Options, _ *zerolog.Logger) (TileSource, error) {
		gotOpts = opts
		return stubSource{}, nil
	})

	s, err := New(context.Background(), "stub", Options{URL: "http://example.com", Profile: geo.GlobalGeodetic}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.PixelsPerTile() != 256 {
		t.Fatal("wrong source constructed")
	}
	if gotOpts.URL != "http://example.com" || gotOpts.Profile != geo.GlobalGeodetic {
		t.Fatalf("options not forwarded: %+v", gotOpts)
	}

	found := false
	for _, tok := range Tokens() {
		if tok == "stub" {
			found = true
		}
	}
	if !found {
		t.Fatal("registered token missing from Tokens()")
	}
}
