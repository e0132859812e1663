// Package arcgis implements a tile source backed by an ArcGIS REST map
// service. The service either exposes a pre-rendered tile cache or renders
// arbitrary bounding boxes through its export endpoint; which of the two is
// resolved once, from the service metadata, at construction.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/maprender/tilesource/internal/model"
)

type spatialReferenceJSON struct {
	WKID       int `json:"wkid"`
	LatestWKID int `json:"latestWkid"`
}

type extentJSON struct {
	XMin             float64              `json:"xmin"`
	YMin             float64              `json:"ymin"`
	XMax             float64              `json:"xmax"`
	YMax             float64              `json:"ymax"`
	SpatialReference spatialReferenceJSON `json:"spatialReference"`
}

type lodJSON struct {
	Level      int     `json:"level"`
	Resolution float64 `json:"resolution"`
	Scale      float64 `json:"scale"`
}

type tileInfoJSON struct {
	Rows             int                  `json:"rows"`
	Cols             int                  `json:"cols"`
	Format           string               `json:"format"`
	SpatialReference spatialReferenceJSON `json:"spatialReference"`
	LODs             []lodJSON            `json:"lods"`
}

type serviceErrorJSON struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// serviceJSON is the subset of the MapServer ?f=json document the adapter
// reads. Everything else in the document is ignored.
type serviceJSON struct {
	SingleFusedMapCache bool                 `json:"singleFusedMapCache"`
	TileInfo            *tileInfoJSON        `json:"tileInfo"`
	FullExtent          extentJSON           `json:"fullExtent"`
	SpatialReference    spatialReferenceJSON `json:"spatialReference"`
	Error               *serviceErrorJSON    `json:"error"`
}

// Descriptor is the resolved remote-service metadata. Built once by
// Discover and read-only afterwards.
type Descriptor struct {
	URL        string
	Tiled      bool
	TileSize   int
	Format     string
	WKID       int
	FullExtent model.Extent
}

const (
	defaultTileSize = 256
	defaultFormat   = "png"
)

// Discover queries the service metadata endpoint and maps the response into
// a Descriptor. The wire schema belongs to the remote service; only the
// fields the adapter needs are decoded.
func Discover(ctx context.Context, client *http.Client, baseURL string) (Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?f=json", nil)
	if err != nil {
		return Descriptor{}, fmt.Errorf("build metadata request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Descriptor{}, fmt.Errorf("fetch service metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Descriptor{}, fmt.Errorf("fetch service metadata: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Descriptor{}, fmt.Errorf("read service metadata: %w", err)
	}

	var svc serviceJSON
	if err := json.Unmarshal(body, &svc); err != nil {
		return Descriptor{}, fmt.Errorf("decode service metadata: %w", err)
	}
	// ArcGIS reports request-level failures as a 200 with an error object.
	if svc.Error != nil {
		return Descriptor{}, fmt.Errorf("service error %d: %s", svc.Error.Code, svc.Error.Message)
	}

	d := Descriptor{
		URL:      strings.TrimRight(baseURL, "/"),
		TileSize: defaultTileSize,
		Format:   defaultFormat,
		WKID:     normalizeWKID(svc.SpatialReference),
		FullExtent: model.Extent{
			XMin: svc.FullExtent.XMin,
			YMin: svc.FullExtent.YMin,
			XMax: svc.FullExtent.XMax,
			YMax: svc.FullExtent.YMax,
		},
	}

	if svc.SingleFusedMapCache && svc.TileInfo != nil {
		d.Tiled = true
		if svc.TileInfo.Rows > 0 {
			d.TileSize = svc.TileInfo.Rows
		}
		if svc.TileInfo.Format != "" {
			d.Format = svc.TileInfo.Format
		}
		if w := normalizeWKID(svc.TileInfo.SpatialReference); w != 0 {
			d.WKID = w
		}
	}

	if d.WKID == 0 {
		d.WKID = normalizeWKID(svc.FullExtent.SpatialReference)
	}

	return d, nil
}

func normalizeWKID(sr spatialReferenceJSON) int {
	if sr.LatestWKID != 0 {
		return sr.LatestWKID
	}
	return sr.WKID
}
