package scorer

import (
	"math"
	"strconv"

	"github.com/sells-group/siteselect/internal/model"
)

// BaseScore maps a metric row to [0,10] using the default weights.
func BaseScore(m model.AreaMetric) float64 {
	return DefaultNormalizerPolicy().BaseScore(m)
}

// BaseScore maps a metric row to [0,10]:
// weight_pop*clamp(pd/divisor) + weight_transport*clamp(ts), rounded to 1 dp.
func (p NormalizerPolicy) BaseScore(m model.AreaMetric) float64 {
	popNorm := clamp(float64(m.PopulationDensity)/p.PopulationDivisor, 0, 10)
	transportNorm := clamp(m.TransportScore, 0, 10)
	return round1(p.PopulationWeight*popNorm + p.TransportWeight*transportNorm)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// round1 rounds the exact binary value to one decimal place, ties to even.
// 0.25 becomes 0.2 and 2.675 stays below the halfway point.
func round1(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return r
}
