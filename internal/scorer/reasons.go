package scorer

import (
	"fmt"
	"strings"

	"github.com/sells-group/siteselect/internal/model"
)

// Reason strings.
const (
	ReasonPopulationHigh   = "High population density - great for foot traffic"
	ReasonPopulationGood   = "Good population density for business"
	ReasonBusinessHigh     = "High business density - established commercial area"
	ReasonBusinessModerate = "Moderate business density - growing commercial area"
	ReasonTransitExcellent = "Excellent public transportation access"
	ReasonTransitGood      = "Good public transportation connectivity"
	ReasonDiningTraffic    = "High foot traffic ideal for restaurants"
	ReasonDiningScene      = "Established dining scene with competition"
	ReasonFallback         = "Good business potential based on local metrics"
)

// Reasons explains a candidate with the default policy.
func Reasons(query, name string, m model.AreaMetric) []string {
	return defaultEngine.Reasons(query, name, m)
}

// Reasons returns justification strings in a fixed order: direct match,
// population tier, business tier, transit tier, dining notes. An empty
// result is replaced by a single generic reason.
func (p ReasonPolicy) Reasons(query, name string, m model.AreaMetric) []string {
	var out []string

	if strings.Contains(strings.ToLower(name), query) {
		out = append(out, fmt.Sprintf("Direct match for '%s'", query))
	}

	out = append(out, p.MetricReasons(m)...)

	if containsAny(query, p.DiningTerms...) {
		if m.PopulationDensity > p.DiningPopulation {
			out = append(out, ReasonDiningTraffic)
		}
		if m.BusinessDensity > p.DiningBusiness {
			out = append(out, ReasonDiningScene)
		}
	}

	if len(out) == 0 {
		out = append(out, ReasonFallback)
	}
	return out
}

// MetricReasons returns only the population, business and transit tier
// notes, with no fallback.
func (p ReasonPolicy) MetricReasons(m model.AreaMetric) []string {
	var out []string

	switch {
	case m.PopulationDensity > p.PopulationHigh:
		out = append(out, ReasonPopulationHigh)
	case m.PopulationDensity > p.PopulationGood:
		out = append(out, ReasonPopulationGood)
	}

	switch {
	case m.BusinessDensity > p.BusinessHigh:
		out = append(out, ReasonBusinessHigh)
	case m.BusinessDensity > p.BusinessModerate:
		out = append(out, ReasonBusinessModerate)
	}

	switch {
	case m.TransportScore > p.TransitExcellent:
		out = append(out, ReasonTransitExcellent)
	case m.TransportScore > p.TransitGood:
		out = append(out, ReasonTransitGood)
	}

	return out
}

// FallbackReasons returns the metric tier notes, or the generic reason when
// no tier applies. It explains a candidate without reference to a query.
func (p ReasonPolicy) FallbackReasons(m model.AreaMetric) []string {
	out := p.MetricReasons(m)
	if len(out) == 0 {
		out = append(out, ReasonFallback)
	}
	return out
}
