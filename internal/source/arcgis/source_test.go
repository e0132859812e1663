package arcgis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/maprender/tilesource/internal/geo"
	"github.com/maprender/tilesource/internal/model"
	"github.com/maprender/tilesource/internal/source"
)

// fakeFetcher returns a fixed image, records the URLs it was asked for, and
// honors context cancellation.
type fakeFetcher struct {
	urls []string
	err  error
}

func (f *fakeFetcher) FetchImage(ctx context.Context, url string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

const tiledServiceJSON = `{
	"singleFusedMapCache": true,
	"spatialReference": {"wkid": 102100, "latestWkid": 3857},
	"fullExtent": {
		"xmin": -20037507.0, "ymin": -19971868.8, "xmax": 20037507.0, "ymax": 19971868.8,
		"spatialReference": {"wkid": 102100}
	},
	"tileInfo": {
		"rows": 512, "cols": 512, "format": "PNG24",
		"spatialReference": {"wkid": 102100, "latestWkid": 3857},
		"lods": [
			{"level": 0, "resolution": 156543.03392800014, "scale": 591657527.591555},
			{"level": 1, "resolution": 78271.52696399994, "scale": 295828763.795777}
		]
	}
}`

const exportServiceJSON = `{
	"singleFusedMapCache": false,
	"spatialReference": {"wkid": 4326},
	"fullExtent": {
		"xmin": -10, "ymin": -5, "xmax": 10, "ymax": 5,
		"spatialReference": {"wkid": 4326}
	}
}`

func metadataServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("f") != "json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSource(t *testing.T, metadata string, opts source.Options, f *fakeFetcher) *Source {
	t.Helper()
	srv := metadataServer(t, metadata)
	if opts.URL == "" {
		opts.URL = srv.URL
	}
	s, err := New(context.Background(), opts, Config{Fetcher: f, HTTPClient: srv.Client()}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestTiledService_TileURLRowBeforeColumn(t *testing.T) {
	s := newSource(t, tiledServiceJSON, source.Options{}, &fakeFetcher{})

	u, err := s.TileURL(model.TileRequest{Key: model.TileKey{Level: 3, Col: 2, Row: 5}})
	if err != nil {
		t.Fatalf("TileURL: %v", err)
	}
	if !strings.HasSuffix(u, "/tile/3/5/2.png") {
		t.Fatalf("got %q, want suffix /tile/3/5/2.png", u)
	}
}

func TestTiledService_DescriptorResolved(t *testing.T) {
	s := newSource(t, tiledServiceJSON, source.Options{}, &fakeFetcher{})

	if s.Disabled() {
		t.Fatal("source disabled")
	}
	if got := s.PixelsPerTile(); got != 512 {
		t.Fatalf("PixelsPerTile = %d, want 512", got)
	}
	if got := s.Extension(); got != "png" {
		t.Fatalf("Extension = %q, want png (normalized from PNG24)", got)
	}
	if got := s.Profile().Name; got != geo.SphericalMercator {
		t.Fatalf("profile = %q, want %q", got, geo.SphericalMercator)
	}
}

func TestExportService_URLShape(t *testing.T) {
	s := newSource(t, exportServiceJSON, source.Options{}, &fakeFetcher{})

	ext := model.Extent{XMin: -10, YMin: -5, XMax: 10, YMax: 5}
	u, err := s.TileURL(model.TileRequest{Key: model.TileKey{}, Extent: ext})
	if err != nil {
		t.Fatalf("TileURL: %v", err)
	}
	for _, want := range []string{
		"/export?bbox=-10,-5,10,5",
		"&format=png",
		"&size=256,256",
		"&transparent=true",
		"&f=image",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q missing %q", u, want)
		}
	}
}

func TestExportService_BBoxPreservesPrecision(t *testing.T) {
	s := newSource(t, exportServiceJSON, source.Options{}, &fakeFetcher{})

	ext := model.Extent{
		XMin: -20037508.342789244,
		YMin: 1.0 / 3.0,
		XMax: 20037508.342789244,
		YMax: 2.0 / 3.0,
	}
	u, err := s.TileURL(model.TileRequest{Extent: ext})
	if err != nil {
		t.Fatalf("TileURL: %v", err)
	}

	bbox := u[strings.Index(u, "bbox=")+len("bbox="):]
	bbox = bbox[:strings.Index(bbox, "&")]
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		t.Fatalf("bbox %q: want 4 coordinates", bbox)
	}
	for i, want := range []float64{ext.XMin, ext.YMin, ext.XMax, ext.YMax} {
		got, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			t.Fatalf("coordinate %d %q: %v", i, parts[i], err)
		}
		if got != want {
			t.Errorf("coordinate %d round-trips to %v, want %v", i, got, want)
		}
		if strings.ContainsAny(parts[i], "eE") {
			t.Errorf("coordinate %d %q uses exponent notation", i, parts[i])
		}
	}
}

func TestExportService_ProfileSquaredFromExtent(t *testing.T) {
	s := newSource(t, exportServiceJSON, source.Options{}, &fakeFetcher{})

	p := s.Profile()
	if p.Extent.Width() != p.Extent.Height() {
		t.Fatalf("profile extent not squared: %+v", p.Extent)
	}
	cx, cy := p.Extent.Center()
	if cx != 0 || cy != 0 {
		t.Fatalf("center moved to (%v,%v)", cx, cy)
	}
	if p.TilesX != 1 || p.TilesY != 1 {
		t.Fatalf("tile grid changed: %dx%d", p.TilesX, p.TilesY)
	}
}

func TestProfileOverrideBeatsService(t *testing.T) {
	s := newSource(t, tiledServiceJSON, source.Options{Profile: geo.GlobalGeodetic}, &fakeFetcher{})
	if got := s.Profile().Name; got != geo.GlobalGeodetic {
		t.Fatalf("profile = %q, want override %q", got, geo.GlobalGeodetic)
	}
}

func TestUnknownProfileOverrideFailsConstruction(t *testing.T) {
	srv := metadataServer(t, tiledServiceJSON)
	_, err := New(context.Background(), source.Options{URL: srv.URL, Profile: "mars-polar"},
		Config{Fetcher: &fakeFetcher{}, HTTPClient: srv.Client()}, nil)
	if err == nil {
		t.Fatal("expected error for unknown profile override")
	}
}

func TestLayerSelectionUnsupported(t *testing.T) {
	srv := metadataServer(t, tiledServiceJSON)

	// the fused view is the default and the only accepted selection
	if _, err := New(context.Background(), source.Options{URL: srv.URL, Layer: "_alllayers"},
		Config{Fetcher: &fakeFetcher{}, HTTPClient: srv.Client()}, nil); err != nil {
		t.Fatalf("fused view rejected: %v", err)
	}
	_, err := New(context.Background(), source.Options{URL: srv.URL, Layer: "roads"},
		Config{Fetcher: &fakeFetcher{}, HTTPClient: srv.Client()}, nil)
	if err == nil {
		t.Fatal("expected error for single-layer selection")
	}
}

func TestMissingURLFailsConstruction(t *testing.T) {
	_, err := New(context.Background(), source.Options{}, Config{Fetcher: &fakeFetcher{}}, nil)
	if err == nil {
		t.Fatal("expected error for missing url option")
	}
}

func TestFailedDiscovery_SourceDisabledNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := New(context.Background(), source.Options{URL: srv.URL},
		Config{Fetcher: &fakeFetcher{}, HTTPClient: srv.Client()}, nil)
	if err != nil {
		t.Fatalf("construction must not fail on discovery errors: %v", err)
	}
	if !s.Disabled() {
		t.Fatal("source should be disabled")
	}

	_, err = s.CreateImage(context.Background(), model.TileRequest{Key: model.TileKey{Level: 0}})
	if !errors.Is(err, source.ErrNotAvailable) {
		t.Fatalf("CreateImage after failed init: got %v, want ErrNotAvailable", err)
	}
	_, err = s.TileURL(model.TileRequest{})
	if !errors.Is(err, source.ErrNotAvailable) {
		t.Fatalf("TileURL after failed init: got %v, want ErrNotAvailable", err)
	}
}

func TestServiceErrorPayloadDisablesSource(t *testing.T) {
	s := newSource(t, `{"error": {"code": 499, "message": "token required"}}`,
		source.Options{}, &fakeFetcher{})
	if !s.Disabled() {
		t.Fatal("source should be disabled on an error payload")
	}
}

func TestCreateImage_FetchesSynthesizedURL(t *testing.T) {
	f := &fakeFetcher{}
	s := newSource(t, tiledServiceJSON, source.Options{}, f)

	k := model.TileKey{Level: 2, Col: 1, Row: 3}
	img, err := s.CreateImage(context.Background(), model.TileRequest{Key: k, Extent: s.Profile().TileExtent(k)})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if img == nil {
		t.Fatal("nil image")
	}
	if len(f.urls) != 1 || !strings.HasSuffix(f.urls[0], "/tile/2/3/1.png") {
		t.Fatalf("fetched %v, want one URL ending /tile/2/3/1.png", f.urls)
	}
}

func TestCreateImage_FetchFailureIsNotAvailable(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("connection reset")}
	s := newSource(t, tiledServiceJSON, source.Options{}, f)

	_, err := s.CreateImage(context.Background(), model.TileRequest{Key: model.TileKey{Level: 1}})
	if !errors.Is(err, source.ErrNotAvailable) {
		t.Fatalf("got %v, want ErrNotAvailable", err)
	}
}

func TestCreateImage_PropagatesCancellation(t *testing.T) {
	s := newSource(t, tiledServiceJSON, source.Options{}, &fakeFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CreateImage(ctx, model.TileRequest{Key: model.TileKey{Level: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestCreateHeightField_AlwaysNotAvailable(t *testing.T) {
	s := newSource(t, tiledServiceJSON, source.Options{}, &fakeFetcher{})

	for _, k := range []model.TileKey{{}, {Level: 5, Col: 9, Row: 4}} {
		_, err := s.CreateHeightField(context.Background(), model.TileRequest{Key: k})
		if !errors.Is(err, source.ErrNotAvailable) {
			t.Fatalf("key %v: got %v, want ErrNotAvailable", k, err)
		}
	}
}

func TestNormalizeFormat(t *testing.T) {
	cases := []struct{ in, want string }{
		{"PNG24", "png"},
		{"PNG32", "png"},
		{"png8", "png"},
		{"PNG", "png"},
		{"png", "png"},
		{"JPEG", "jpeg"},
		{"jpg", "jpg"},
		{"MIXED", "mixed"},
	}
	for _, c := range cases {
		if got := normalizeFormat(c.in); got != c.want {
			t.Errorf("normalizeFormat(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
