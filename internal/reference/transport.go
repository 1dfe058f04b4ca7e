package reference

import "math"

// DefaultTransportScore is returned for areas with no transit record.
const DefaultTransportScore = 7.5

// TransportScore rates an area's transit access on a 0-10 scale:
// rail lines (up to 4), bus routes (up to 3), major stations (up to 2) and
// a connectivity bonus (up to 1).
func (t *Tables) TransportScore(areaName string) float64 {
	info, ok := t.Transit[areaName]
	if !ok {
		return DefaultTransportScore
	}
	return info.Score()
}

// Score computes the transport score for one transit record.
func (ti TransitInfo) Score() float64 {
	rail := math.Min(4, float64(ti.RailLines))
	bus := math.Min(3, float64(ti.BusRoutes)*0.15)
	stations := math.Min(2, float64(ti.MajorStations)*0.25)
	bonus := math.Min(1, ti.Connectivity*0.1)
	return math.Min(10, rail+bus+stations+bonus)
}
