// Package reference provides the static Southern California tables: areas
// with seed metrics, county membership, transit infrastructure, apartment
// counts and LA28 venues.
package reference

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/siteselect/internal/model"
)

//go:embed data/socal.yaml
var embedded []byte

// SeedMetrics are the metric values loaded by the seed command.
type SeedMetrics struct {
	PopulationDensity int     `yaml:"population_density"`
	BusinessDensity   int     `yaml:"business_density"`
	TransportScore    float64 `yaml:"transport_score"`
}

// Area is one reference area record.
type Area struct {
	Name       string      `yaml:"name"`
	City       string      `yaml:"city"`
	County     string      `yaml:"county"`
	PlaceFIPS  string      `yaml:"place_fips"`
	Latitude   float64     `yaml:"latitude"`
	Longitude  float64     `yaml:"longitude"`
	Population int         `yaml:"population"`
	AreaSqMi   float64     `yaml:"area_sq_mi"`
	Metrics    SeedMetrics `yaml:"metrics"`
}

// TransitInfo counts the transit infrastructure serving an area.
type TransitInfo struct {
	RailLines     int     `yaml:"rail_lines"`
	BusRoutes     int     `yaml:"bus_routes"`
	MajorStations int     `yaml:"major_stations"`
	Connectivity  float64 `yaml:"connectivity"`
}

// Tables holds every reference table.
type Tables struct {
	Areas      []Area                  `yaml:"areas"`
	Transit    map[string]TransitInfo  `yaml:"transit"`
	Apartments map[string]int          `yaml:"apartments"`
	Venues     []model.PointOfInterest `yaml:"venues"`

	counties map[string]string
}

// Load parses the embedded tables.
func Load() (*Tables, error) {
	return parse(embedded)
}

// LoadFile parses tables from a YAML file with the same layout as the
// embedded data. An empty path loads the embedded tables.
func LoadFile(path string) (*Tables, error) {
	if path == "" {
		return Load()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reference: read %s", path)
	}
	return parse(b)
}

func parse(b []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, eris.Wrap(err, "reference: parse tables")
	}
	if len(t.Areas) == 0 {
		return nil, eris.New("reference: no areas defined")
	}

	t.counties = make(map[string]string, len(t.Areas))
	seen := make(map[string]bool, len(t.Areas))
	for _, a := range t.Areas {
		if seen[a.Name] {
			return nil, eris.Errorf("reference: duplicate area %q", a.Name)
		}
		seen[a.Name] = true
		if a.County != "" {
			t.counties[a.Name] = a.County
		}
	}
	return &t, nil
}

// County returns the county for an area name. It satisfies filter.CountyLookup.
func (t *Tables) County(areaName string) (string, bool) {
	c, ok := t.counties[areaName]
	return c, ok
}

// PlaceFIPS returns the census place code for an area, if known.
func (t *Tables) PlaceFIPS(areaName string) (string, bool) {
	for _, a := range t.Areas {
		if a.Name == areaName && a.PlaceFIPS != "" {
			return a.PlaceFIPS, true
		}
	}
	return "", false
}

// CountyNames returns the distinct county names, sorted.
func (t *Tables) CountyNames() []string {
	set := make(map[string]struct{})
	for _, c := range t.counties {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ReferenceAreas converts the area table to model records in table order.
func (t *Tables) ReferenceAreas() []model.ReferenceArea {
	out := make([]model.ReferenceArea, 0, len(t.Areas))
	for _, a := range t.Areas {
		out = append(out, model.ReferenceArea{
			Name:      a.Name,
			City:      a.City,
			County:    a.County,
			Latitude:  a.Latitude,
			Longitude: a.Longitude,
		})
	}
	return out
}

// SeedMetrics returns the seed metric row for every area, including the
// known apartment count.
func (t *Tables) SeedMetrics() []model.AreaMetric {
	out := make([]model.AreaMetric, 0, len(t.Areas))
	for _, a := range t.Areas {
		m := model.AreaMetric{
			AreaName:          a.Name,
			PopulationDensity: a.Metrics.PopulationDensity,
			BusinessDensity:   a.Metrics.BusinessDensity,
			TransportScore:    a.Metrics.TransportScore,
		}
		if n, ok := t.Apartments[a.Name]; ok {
			m.ApartmentCount = model.IntPtr(n)
		}
		out = append(out, m)
	}
	return out
}

// VenuesByCategory returns venues whose category contains the given text,
// case-insensitively. An empty category returns every venue.
func (t *Tables) VenuesByCategory(category string) []model.PointOfInterest {
	if category == "" {
		return t.Venues
	}
	category = strings.ToLower(category)
	var out []model.PointOfInterest
	for _, v := range t.Venues {
		if strings.Contains(strings.ToLower(v.Category), category) {
			out = append(out, v)
		}
	}
	return out
}

// Save writes the tables as YAML in the layout LoadFile reads.
func (t *Tables) Save(path string) error {
	b, err := yaml.Marshal(t)
	if err != nil {
		return eris.Wrap(err, "reference: marshal tables")
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "reference: write %s", path)
	}
	return nil
}
