package geo

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/siteselect/internal/model"
)

// BBox is an inclusive lon/lat bounding box.
type BBox struct {
	b *geom.Bounds
}

// NewBBox builds a box from map bounds. Unset sides default to the full
// globe (south -90, north 90, west -180, east 180).
func NewBBox(mb *model.MapBounds) BBox {
	south, north, west, east := -90.0, 90.0, -180.0, 180.0
	if mb != nil {
		if mb.South != nil {
			south = *mb.South
		}
		if mb.North != nil {
			north = *mb.North
		}
		if mb.West != nil {
			west = *mb.West
		}
		if mb.East != nil {
			east = *mb.East
		}
	}
	return BBox{b: geom.NewBounds(geom.XY).Set(west, south, east, north)}
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lat, lon float64) bool {
	if !ValidCoord(lat, lon) {
		return false
	}
	return b.b.OverlapsPoint(geom.XY, geom.Coord{lon, lat})
}
