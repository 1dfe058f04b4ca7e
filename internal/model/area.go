package model

import "time"

// Default metric values substituted when an area has no metric row.
const (
	DefaultPopulationDensity = 5000
	DefaultBusinessDensity   = 50
	DefaultTransportScore    = 7.0
)

// ReferenceArea is a fixed city or region with known coordinates.
type ReferenceArea struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	City      string  `json:"city"`
	County    string  `json:"county"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Coordinates returns the area location as [lon, lat].
func (a ReferenceArea) Coordinates() [2]float64 {
	return [2]float64{a.Longitude, a.Latitude}
}

// AreaMetric holds the per-area scoring inputs. ApartmentCount is nil when
// the count is unknown.
type AreaMetric struct {
	ID                int64     `json:"id,omitempty"`
	AreaName          string    `json:"area_name"`
	PopulationDensity int       `json:"population_density"`
	BusinessDensity   int       `json:"business_density"`
	TransportScore    float64   `json:"transport_score"`
	ApartmentCount    *int      `json:"apartment_count"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// DefaultMetric returns the record used for areas without a metric row.
func DefaultMetric() AreaMetric {
	return AreaMetric{
		PopulationDensity: DefaultPopulationDensity,
		BusinessDensity:   DefaultBusinessDensity,
		TransportScore:    DefaultTransportScore,
	}
}

// AreaWithMetric pairs an area with its latest metric row. Metric is nil
// when the store holds no row for the area.
type AreaWithMetric struct {
	Area   ReferenceArea `json:"area"`
	Metric *AreaMetric   `json:"metric,omitempty"`
}

// MetricOrDefault returns the area metric, substituting DefaultMetric when absent.
func (a AreaWithMetric) MetricOrDefault() AreaMetric {
	if a.Metric == nil {
		m := DefaultMetric()
		m.AreaName = a.Area.Name
		return m
	}
	return *a.Metric
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
