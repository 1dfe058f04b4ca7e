package reference

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/geo"
	"github.com/sells-group/siteselect/internal/model"
)

// LoadVenuesShapefile reads point venues from a shapefile. Attribute
// columns NAME, CATEGORY (or SPORT) and VENUE are matched case-insensitively.
// Records without a point geometry or with invalid coordinates are skipped.
func LoadVenuesShapefile(shpPath string) ([]model.PointOfInterest, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "reference: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	if _, ok := fieldIdx["name"]; !ok {
		return nil, eris.Errorf("reference: shapefile %s has no NAME field", shpPath)
	}

	attr := func(cols ...string) string {
		for _, c := range cols {
			if idx, ok := fieldIdx[c]; ok {
				return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
			}
		}
		return ""
	}

	var venues []model.PointOfInterest
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok || !geo.ValidCoord(pt.Y, pt.X) {
			skipped++
			continue
		}
		name := attr("name")
		if name == "" {
			skipped++
			continue
		}
		venues = append(venues, model.PointOfInterest{
			Name:      name,
			Category:  attr("category", "sport"),
			Venue:     attr("venue"),
			Latitude:  pt.Y,
			Longitude: pt.X,
		})
	}

	if skipped > 0 {
		zap.L().Warn("reference: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return venues, nil
}
