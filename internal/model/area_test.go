package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMetric(t *testing.T) {
	m := DefaultMetric()
	assert.Equal(t, 5000, m.PopulationDensity)
	assert.Equal(t, 50, m.BusinessDensity)
	assert.InDelta(t, 7.0, m.TransportScore, 0.0001)
	assert.Nil(t, m.ApartmentCount)
}

func TestAreaWithMetric_MetricOrDefault(t *testing.T) {
	missing := AreaWithMetric{Area: ReferenceArea{Name: "Irvine"}}
	m := missing.MetricOrDefault()
	assert.Equal(t, "Irvine", m.AreaName)
	assert.Equal(t, DefaultPopulationDensity, m.PopulationDensity)

	present := AreaWithMetric{
		Area:   ReferenceArea{Name: "Irvine"},
		Metric: &AreaMetric{AreaName: "Irvine", PopulationDensity: 4700, ApartmentCount: IntPtr(55000)},
	}
	m = present.MetricOrDefault()
	assert.Equal(t, 4700, m.PopulationDensity)
	require.NotNil(t, m.ApartmentCount)
	assert.Equal(t, 55000, *m.ApartmentCount)
}

func TestReferenceArea_Coordinates(t *testing.T) {
	a := ReferenceArea{Latitude: 34.0522, Longitude: -118.2437}
	assert.Equal(t, [2]float64{-118.2437, 34.0522}, a.Coordinates())
}

func TestRecommendation_NullApartmentCount(t *testing.T) {
	b, err := json.Marshal(Recommendation{Area: "Brea", Reasons: []string{"x"}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"apartment_count":null`)
	assert.NotContains(t, string(b), "nearest_area")
}
