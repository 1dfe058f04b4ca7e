package reference

import "github.com/sells-group/siteselect/internal/model"

// DiscoveredTransportScore is the placeholder transit score written by
// city discovery until the transport ETL runs.
const DiscoveredTransportScore = 7.5

// DiscoverMetrics derives a metric row per area from census population
// and land area. Business density scales with population density and is
// bounded to [20, 100]. Areas without land area are skipped.
func (t *Tables) DiscoverMetrics() []model.AreaMetric {
	out := make([]model.AreaMetric, 0, len(t.Areas))
	for _, a := range t.Areas {
		if a.AreaSqMi <= 0 {
			continue
		}
		pd := int(float64(a.Population) / a.AreaSqMi)
		bd := pd / 100
		if bd < 20 {
			bd = 20
		}
		if bd > 100 {
			bd = 100
		}
		out = append(out, model.AreaMetric{
			AreaName:          a.Name,
			PopulationDensity: pd,
			BusinessDensity:   bd,
			TransportScore:    DiscoveredTransportScore,
		})
	}
	return out
}
