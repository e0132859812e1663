// Package invalidation defines tile-cache purge events.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

// Event asks the proxy to drop cached tiles of one source. An event without
// an extent purges the whole source; with an extent, only tiles overlapping
// it. Extents are interpreted in the source profile's spatial reference
// (lon/lat for the spherical-mercator profile, per the XYZ convention).
type Event struct {
	Version int       `json:"version"`
	Source  string    `json:"source"`
	TS      time.Time `json:"ts"`
	Extent  *Extent   `json:"extent,omitempty"`
	// MaxLevel optionally caps the purged levels; 0 means the consumer's
	// configured default.
	MaxLevel int `json:"max_level,omitempty"`
}

type Extent struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("source is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.Extent != nil {
		if !(e.Extent.XMax > e.Extent.XMin && e.Extent.YMax > e.Extent.YMin) {
			return fmt.Errorf("extent must satisfy xmax>xmin and ymax>ymin")
		}
	}
	if e.MaxLevel < 0 {
		return fmt.Errorf("max_level must be non-negative")
	}
	return nil
}
