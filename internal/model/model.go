package model

import "fmt"

// TileKey addresses one tile in a pyramid: level 0 is the coarsest,
// rows count from the top (north) edge down.
type TileKey struct {
	Level int
	Col   int
	Row   int
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.Row, k.Col)
}

func (k TileKey) Valid() bool {
	return k.Level >= 0 && k.Col >= 0 && k.Row >= 0
}

// Extent is an axis-aligned bounding box in the units of some spatial
// reference system.
type Extent struct {
	XMin, YMin float64
	XMax, YMax float64
}

func (e Extent) Width() float64  { return e.XMax - e.XMin }
func (e Extent) Height() float64 { return e.YMax - e.YMin }

func (e Extent) Center() (x, y float64) {
	return (e.XMin + e.XMax) / 2, (e.YMin + e.YMax) / 2
}

func (e Extent) Empty() bool {
	return e.Width() <= 0 || e.Height() <= 0
}

func (e Extent) Intersects(o Extent) bool {
	return e.XMin < o.XMax && o.XMin < e.XMax && e.YMin < o.YMax && o.YMin < e.YMax
}

// TileRequest is a TileKey plus the geographic extent the caller resolved
// for it. Sources that address tiles by bounding box need the extent;
// pre-tiled sources only need the key.
type TileRequest struct {
	Key    TileKey
	Extent Extent
}
