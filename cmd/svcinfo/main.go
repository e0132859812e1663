// svcinfo discovers and prints what the adapter resolves for a map service:
// addressing mode, tile size and format, and the effective profile.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/maprender/tilesource/internal/fetch"
	"github.com/maprender/tilesource/internal/logger"
	"github.com/maprender/tilesource/internal/model"
	"github.com/maprender/tilesource/internal/source"
	"github.com/maprender/tilesource/internal/source/arcgis"
)

func main() {
	url := flag.String("url", "", "ArcGIS REST map service URL (ends in /MapServer)")
	profile := flag.String("profile", "", "optional profile override (global-geodetic or spherical-mercator)")
	sample := flag.Bool("sample", false, "also print the fetch URL for tile 0/0/0")
	timeout := flag.Duration("timeout", 15*time.Second, "discovery timeout")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "svcinfo: --url is required")
		os.Exit(2)
	}

	log := logger.Build(logger.Config{Level: "warn", Console: true, Component: "svcinfo"}, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := fetch.New(*timeout, log)
	src, err := arcgis.New(ctx, source.Options{URL: *url, Profile: *profile},
		arcgis.Config{Fetcher: client, HTTPClient: client.HTTPClient()}, &log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "svcinfo: %v\n", err)
		os.Exit(1)
	}

	p := src.Profile()
	out := map[string]any{
		"url":             *url,
		"disabled":        src.Disabled(),
		"profile":         p.Name,
		"srs":             p.SRS,
		"extent":          p.Extent,
		"pixels_per_tile": src.PixelsPerTile(),
		"extension":       src.Extension(),
	}
	if *sample && !src.Disabled() {
		k := model.TileKey{Level: 0, Col: 0, Row: 0}
		if u, err := src.TileURL(model.TileRequest{Key: k, Extent: p.TileExtent(k)}); err == nil {
			out["sample_tile_url"] = u
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
