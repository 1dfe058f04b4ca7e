package geo

import (
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/model"
)

// Nearest is the result of a nearest-neighbour lookup.
type Nearest struct {
	Index      int
	DistanceKm float64
}

// NearestArea returns the area closest to (lat, lon). The scan is linear and
// the first area seen wins a tie, so the result depends on input order.
// Areas with invalid coordinates are skipped. ok is false when no area has
// valid coordinates or the query point itself is invalid.
func NearestArea(lat, lon float64, areas []model.AreaWithMetric) (model.AreaWithMetric, float64, bool) {
	n, ok := nearest(lat, lon, len(areas), func(i int) (float64, float64) {
		return areas[i].Area.Latitude, areas[i].Area.Longitude
	})
	if !ok {
		return model.AreaWithMetric{}, 0, false
	}
	return areas[n.Index], n.DistanceKm, true
}

// NearestPOI returns the point of interest closest to (lat, lon) with the
// same tie-break and skip rules as NearestArea.
func NearestPOI(lat, lon float64, pois []model.PointOfInterest) (model.PointOfInterest, float64, bool) {
	n, ok := nearest(lat, lon, len(pois), func(i int) (float64, float64) {
		return pois[i].Latitude, pois[i].Longitude
	})
	if !ok {
		return model.PointOfInterest{}, 0, false
	}
	return pois[n.Index], n.DistanceKm, true
}

func nearest(lat, lon float64, n int, at func(int) (float64, float64)) (Nearest, bool) {
	if !ValidCoord(lat, lon) {
		return Nearest{}, false
	}

	best := Nearest{Index: -1}
	for i := 0; i < n; i++ {
		plat, plon := at(i)
		if !ValidCoord(plat, plon) {
			zap.L().Debug("geo: skipping record with invalid coordinates",
				zap.Int("index", i),
				zap.Float64("lat", plat),
				zap.Float64("lon", plon),
			)
			continue
		}
		d := DistanceKm(lat, lon, plat, plon)
		// Strict less-than keeps the first-seen record on ties.
		if best.Index < 0 || d < best.DistanceKm {
			best = Nearest{Index: i, DistanceKm: d}
		}
	}
	return best, best.Index >= 0
}

// radiusToleranceKm absorbs floating-point error in the haversine distance,
// so a venue placed exactly on a bound counts as inside it.
const radiusToleranceKm = 1e-6

// WithinRadiusRange tests the distance from (lat, lon) to the single nearest
// point of interest against a mile range.
//
//   - both bounds: min <= d <= max
//   - max only: d <= max
//   - min only: d >= min
//   - neither bound, or no points of interest: true
//
// When points exist but none yields a valid distance, a min-only range
// fails and every other combination passes.
func WithinRadiusRange(lat, lon float64, minMiles, maxMiles *float64, pois []model.PointOfInterest) bool {
	if minMiles == nil && maxMiles == nil {
		return true
	}
	if len(pois) == 0 {
		return true
	}

	_, d, ok := NearestPOI(lat, lon, pois)
	if !ok {
		return minMiles == nil || maxMiles != nil
	}

	above := func(mi float64) bool { return d >= MilesToKm(mi)-radiusToleranceKm }
	below := func(mi float64) bool { return d <= MilesToKm(mi)+radiusToleranceKm }
	switch {
	case minMiles != nil && maxMiles != nil:
		return above(*minMiles) && below(*maxMiles)
	case maxMiles != nil:
		return below(*maxMiles)
	default:
		return above(*minMiles)
	}
}
