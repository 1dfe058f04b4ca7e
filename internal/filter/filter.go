// Package filter applies the advanced search predicates to area records.
package filter

import (
	"slices"

	"github.com/sells-group/siteselect/internal/geo"
	"github.com/sells-group/siteselect/internal/model"
)

// CountyLookup maps an area name to its county. ok is false for unmapped names.
type CountyLookup func(areaName string) (county string, ok bool)

// Passes reports whether an area and its metric satisfy every filter. The
// first failing predicate ends evaluation. A missing apartment count passes
// the apartment range regardless of bounds.
func Passes(area model.ReferenceArea, m model.AreaMetric, f model.Filters, counties CountyLookup) bool {
	if len(f.Counties) > 0 {
		if counties == nil {
			return false
		}
		county, ok := counties(area.Name)
		if !ok || !slices.Contains(f.Counties, county) {
			return false
		}
	}

	if !inRange(float64(m.PopulationDensity), f.PopulationDensityMin, f.PopulationDensityMax) {
		return false
	}
	if !inRange(float64(m.BusinessDensity), f.BusinessDensityMin, f.BusinessDensityMax) {
		return false
	}
	if !inRange(m.TransportScore, f.TransportScoreMin, f.TransportScoreMax) {
		return false
	}
	if m.ApartmentCount != nil && !inRange(float64(*m.ApartmentCount), f.ApartmentCountMin, f.ApartmentCountMax) {
		return false
	}

	if f.MapBounds != nil && !geo.NewBBox(f.MapBounds).Contains(area.Latitude, area.Longitude) {
		return false
	}

	return true
}

func inRange(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}
