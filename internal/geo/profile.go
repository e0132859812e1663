// Package geo defines spatial profiles: a spatial reference plus the tiling
// grid used to address tiles within it.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"

	"github.com/maprender/tilesource/internal/model"
)

// Well-known profile names accepted in configuration.
const (
	GlobalGeodetic    = "global-geodetic"
	SphericalMercator = "spherical-mercator"
)

const mercatorHalfWorld = 20037508.342789244

// Profile couples a spatial reference system with a level-0 tile grid.
// The grid doubles in both dimensions at each level.
type Profile struct {
	Name   string
	SRS    string
	Extent model.Extent
	// tile counts at level 0
	TilesX int
	TilesY int
}

// Named resolves a well-known profile identifier.
func Named(name string) (Profile, error) {
	switch name {
	case GlobalGeodetic:
		return Profile{
			Name:   GlobalGeodetic,
			SRS:    "EPSG:4326",
			Extent: model.Extent{XMin: -180, YMin: -90, XMax: 180, YMax: 90},
			TilesX: 2,
			TilesY: 1,
		}, nil
	case SphericalMercator:
		return Profile{
			Name: SphericalMercator,
			SRS:  "EPSG:3857",
			Extent: model.Extent{
				XMin: -mercatorHalfWorld, YMin: -mercatorHalfWorld,
				XMax: mercatorHalfWorld, YMax: mercatorHalfWorld,
			},
			TilesX: 1,
			TilesY: 1,
		}, nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q", name)
}

// Default is the profile assumed when neither configuration nor the remote
// service declares one.
func Default() Profile {
	p, _ := Named(GlobalGeodetic)
	return p
}

// ForWKID maps a spatial reference well-known ID to a named profile.
// 102100 and 102113 are the legacy ESRI codes for web mercator.
func ForWKID(wkid int) (Profile, bool) {
	switch wkid {
	case 4326:
		p, _ := Named(GlobalGeodetic)
		return p, true
	case 3857, 900913, 102100, 102113:
		p, _ := Named(SphericalMercator)
		return p, true
	}
	return Profile{}, false
}

// FromExtent builds an ad-hoc profile over an arbitrary extent, used for
// services that declare only a spatial reference and a full extent.
func FromExtent(srs string, ext model.Extent, tilesX, tilesY int) Profile {
	return Profile{Name: "custom", SRS: srs, Extent: ext, TilesX: tilesX, TilesY: tilesY}
}

// NumTiles returns the grid dimensions at the given level.
func (p Profile) NumTiles(level int) (x, y int) {
	f := 1 << uint(level)
	return p.TilesX * f, p.TilesY * f
}

// TileExtent computes the extent of one tile. Rows count down from the top
// edge of the profile extent.
func (p Profile) TileExtent(k model.TileKey) model.Extent {
	nx, ny := p.NumTiles(k.Level)
	w := p.Extent.Width() / float64(nx)
	h := p.Extent.Height() / float64(ny)
	return model.Extent{
		XMin: p.Extent.XMin + float64(k.Col)*w,
		YMin: p.Extent.YMax - float64(k.Row+1)*h,
		XMax: p.Extent.XMin + float64(k.Col+1)*w,
		YMax: p.Extent.YMax - float64(k.Row)*h,
	}
}

// Contains reports whether the key addresses a tile inside the grid.
func (p Profile) Contains(k model.TileKey) bool {
	if !k.Valid() {
		return false
	}
	nx, ny := p.NumTiles(k.Level)
	return k.Col < nx && k.Row < ny
}

// Squared returns a profile whose extent has been expanded symmetrically
// about its center on the shorter axis so that width equals height. The
// center and the level-0 tile counts are unchanged; a square extent is
// returned as is.
func Squared(p Profile) Profile {
	w, h := p.Extent.Width(), p.Extent.Height()
	switch {
	case w > h:
		d := (w - h) / 2
		p.Extent.YMin -= d
		p.Extent.YMax += d
	case h > w:
		d := (h - w) / 2
		p.Extent.XMin -= d
		p.Extent.XMax += d
	}
	return p
}

// CoverWGS84 returns the keys of every tile at the given level whose extent
// intersects a lon/lat bounding box. For the mercator profile the box is
// mapped through the standard XYZ scheme; for grids in their own units the
// box is assumed to already be in profile units.
func (p Profile) CoverWGS84(ext model.Extent, level int) []model.TileKey {
	if p.Name == SphericalMercator {
		b := orb.Bound{
			Min: orb.Point{ext.XMin, ext.YMin},
			Max: orb.Point{ext.XMax, ext.YMax},
		}
		set := tilecover.Bound(b, maptile.Zoom(level))
		keys := make([]model.TileKey, 0, len(set))
		for t := range set {
			keys = append(keys, model.TileKey{Level: int(t.Z), Col: int(t.X), Row: int(t.Y)})
		}
		return keys
	}
	return p.cover(ext, level)
}

func (p Profile) cover(ext model.Extent, level int) []model.TileKey {
	nx, ny := p.NumTiles(level)
	w := p.Extent.Width() / float64(nx)
	h := p.Extent.Height() / float64(ny)

	c0 := clampIdx(int(math.Floor((ext.XMin-p.Extent.XMin)/w)), nx)
	c1 := clampIdx(int(math.Ceil((ext.XMax-p.Extent.XMin)/w))-1, nx)
	r0 := clampIdx(int(math.Floor((p.Extent.YMax-ext.YMax)/h)), ny)
	r1 := clampIdx(int(math.Ceil((p.Extent.YMax-ext.YMin)/h))-1, ny)

	var keys []model.TileKey
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			keys = append(keys, model.TileKey{Level: level, Col: c, Row: r})
		}
	}
	return keys
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
