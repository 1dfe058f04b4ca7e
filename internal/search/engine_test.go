package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/scorer"
)

type fakeAreas struct {
	areas []model.AreaWithMetric
	err   error
	calls int
}

func (f *fakeAreas) ListAreas(context.Context) ([]model.AreaWithMetric, error) {
	f.calls++
	return f.areas, f.err
}

type fakeRef struct {
	counties map[string]string
	venues   []model.PointOfInterest
}

func (f *fakeRef) County(name string) (string, bool) {
	c, ok := f.counties[name]
	return c, ok
}

func (f *fakeRef) VenuesByCategory(category string) []model.PointOfInterest {
	var out []model.PointOfInterest
	for _, v := range f.venues {
		if strings.Contains(strings.ToLower(v.Category), strings.ToLower(category)) {
			out = append(out, v)
		}
	}
	return out
}

func area(name string, lat, lon float64, m *model.AreaMetric) model.AreaWithMetric {
	if m != nil {
		m.AreaName = name
	}
	return model.AreaWithMetric{
		Area:   model.ReferenceArea{Name: name, City: name, Latitude: lat, Longitude: lon},
		Metric: m,
	}
}

// Base scores: Santa Monica 7.8, Irvine 4.5, Brea 4.8 (default metric),
// Manhattan Beach 5.6.
func testAreas() *fakeAreas {
	return &fakeAreas{areas: []model.AreaWithMetric{
		area("Santa Monica", 34.0195, -118.4912, &model.AreaMetric{PopulationDensity: 11000, BusinessDensity: 95, TransportScore: 8.5, ApartmentCount: model.IntPtr(5000)}),
		area("Irvine", 33.6846, -117.8265, &model.AreaMetric{PopulationDensity: 4700, BusinessDensity: 70, TransportScore: 6.5, ApartmentCount: model.IntPtr(55000)}),
		area("Brea", 33.9167, -117.9001, nil),
		area("Manhattan Beach", 33.8847, -118.4109, &model.AreaMetric{PopulationDensity: 9000, BusinessDensity: 60, TransportScore: 5.0}),
	}}
}

func testRef() *fakeRef {
	return &fakeRef{
		counties: map[string]string{
			"Santa Monica":    "Los Angeles County",
			"Manhattan Beach": "Los Angeles County",
			"Irvine":          "Orange County",
			"Brea":            "Orange County",
		},
		venues: []model.PointOfInterest{
			{Name: "Santa Monica Beach Volleyball", Category: "Beach Volleyball", Venue: "Santa Monica Beach", Latitude: 34.0100, Longitude: -118.4960},
			{Name: "Anaheim Arena", Category: "Handball", Venue: "Honda Center", Latitude: 33.8078, Longitude: -117.8765},
			{Name: "Broken Venue", Category: "Handball", Latitude: 200, Longitude: 0},
		},
	}
}

func names(recs []model.Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Area
	}
	return out
}

func TestSearch_RanksAndScores(t *testing.T) {
	e := New(testAreas(), testRef())

	recs, err := e.Search(context.Background(), model.Query{Query: "", BusinessType: "retail"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Santa Monica", "Manhattan Beach", "Brea", "Irvine"}, names(recs))
	assert.InDelta(t, 10.0, recs[0].Score, 0.0001)
	assert.InDelta(t, 8.4, recs[1].Score, 0.0001)
	assert.InDelta(t, 7.2, recs[2].Score, 0.0001)
	assert.InDelta(t, 6.8, recs[3].Score, 0.0001)

	brea := recs[2]
	assert.Equal(t, model.DefaultPopulationDensity, brea.PopulationDensity)
	assert.Nil(t, brea.ApartmentCount)
	assert.Equal(t, [2]float64{-117.9001, 33.9167}, brea.Coordinates)
	assert.Contains(t, brea.Reasons, "Direct match for ''")
}

func TestSearch_NoMatchIsEmptyNotError(t *testing.T) {
	e := New(testAreas(), testRef())

	recs, err := e.Search(context.Background(), model.Query{Query: "xyzxyz123", BusinessType: "unknown_type"})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestSearch_QueryIsLowercased(t *testing.T) {
	e := New(testAreas(), testRef())

	recs, err := e.Search(context.Background(), model.Query{Query: "IRVINE", BusinessType: "retail"})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "Irvine", recs[0].Area)
	assert.InDelta(t, 6.8, recs[0].Score, 0.0001)
}

func TestSearch_DefaultBusinessTypeIsRestaurant(t *testing.T) {
	e := New(testAreas(), testRef())

	recs, err := e.Search(context.Background(), model.Query{Query: "shop"})
	require.NoError(t, err)

	var irvine *model.Recommendation
	for i := range recs {
		if recs[i].Area == "Irvine" {
			irvine = &recs[i]
		}
	}
	require.NotNil(t, irvine)
	// dining tier for population 4700 is x0.8, not the retail tier.
	assert.InDelta(t, 3.6, irvine.Score, 0.0001)
}

func TestSearch_TiesKeepStoreOrder(t *testing.T) {
	m := func() *model.AreaMetric {
		return &model.AreaMetric{PopulationDensity: 6000, BusinessDensity: 50, TransportScore: 5}
	}
	src := &fakeAreas{areas: []model.AreaWithMetric{
		area("Zeta", 34, -118, m()),
		area("Alpha", 34, -118, m()),
		area("Mu", 34, -118, m()),
	}}

	recs, err := New(src, testRef()).Search(context.Background(), model.Query{Query: "all", BusinessType: "retail"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta", "Alpha", "Mu"}, names(recs))
}

func TestSearch_Cap(t *testing.T) {
	src := &fakeAreas{}
	for i := range 25 {
		src.areas = append(src.areas, area(fmt.Sprintf("Area %02d", i), 34, -118, nil))
	}

	recs, err := New(src, testRef()).Search(context.Background(), model.Query{Query: "area", BusinessType: "retail"})
	require.NoError(t, err)
	assert.Len(t, recs, 20)

	recs, err = New(src, testRef(), WithConfig(Config{MaxResults: 3})).Search(context.Background(), model.Query{Query: "area", BusinessType: "retail"})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestSearch_SkipsInvalidCoordinates(t *testing.T) {
	src := testAreas()
	src.areas = append(src.areas, area("Nowhere", 95, 0, nil))

	recs, err := New(src, testRef()).Search(context.Background(), model.Query{BusinessType: "retail"})
	require.NoError(t, err)
	assert.NotContains(t, names(recs), "Nowhere")
}

func TestSearch_StoreError(t *testing.T) {
	e := New(&fakeAreas{err: errors.New("db down")}, testRef())

	_, err := e.Search(context.Background(), model.Query{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search: list areas")
}

func TestSearch_CustomScorer(t *testing.T) {
	passAll := []scorer.Rule{{
		Name:       "flat",
		Applies:    func(scorer.Candidate) bool { return true },
		Multiplier: func(scorer.Candidate) float64 { return 1 },
	}}
	e := New(testAreas(), testRef(), WithScorer(scorer.New(scorer.WithRules(passAll))))

	recs, err := e.Search(context.Background(), model.Query{Query: "xyzxyz123"})
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	assert.Equal(t, "Santa Monica", recs[0].Area)
}

func TestAdvancedSearch(t *testing.T) {
	ctx := context.Background()
	e := New(testAreas(), testRef())
	q := model.Query{Query: "", BusinessType: "retail"}

	tests := []struct {
		name    string
		filters model.Filters
		want    []string
	}{
		{
			name:    "no filters",
			filters: model.Filters{},
			want:    []string{"Santa Monica", "Manhattan Beach", "Brea", "Irvine"},
		},
		{
			name:    "county",
			filters: model.Filters{Counties: []string{"Orange County"}},
			want:    []string{"Brea", "Irvine"},
		},
		{
			name:    "unknown county",
			filters: model.Filters{Counties: []string{"San Diego County"}},
			want:    []string{},
		},
		{
			name:    "missing apartment count passes",
			filters: model.Filters{ApartmentCountMin: model.FloatPtr(10000)},
			want:    []string{"Manhattan Beach", "Brea", "Irvine"},
		},
		{
			name:    "population range",
			filters: model.Filters{PopulationDensityMin: model.FloatPtr(4800), PopulationDensityMax: model.FloatPtr(10000)},
			want:    []string{"Manhattan Beach", "Brea"},
		},
		{
			name:    "map bounds",
			filters: model.Filters{MapBounds: &model.MapBounds{West: model.FloatPtr(-118.0)}},
			want:    []string{"Brea", "Irvine"},
		},
		{
			name:    "radius max",
			filters: model.Filters{RadiusMaxMiles: model.FloatPtr(1)},
			want:    []string{"Santa Monica"},
		},
		{
			name:    "radius min",
			filters: model.Filters{RadiusMinMiles: model.FloatPtr(1)},
			want:    []string{"Manhattan Beach", "Brea", "Irvine"},
		},
		{
			name:    "conjunction",
			filters: model.Filters{Counties: []string{"Los Angeles County"}, TransportScoreMin: model.FloatPtr(6)},
			want:    []string{"Santa Monica"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := e.AdvancedSearch(ctx, q, tt.filters)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(recs))
		})
	}
}

func TestAdvancedSearch_RadiusWithNoVenuesFailsOpen(t *testing.T) {
	e := New(testAreas(), &fakeRef{})

	recs, err := e.AdvancedSearch(context.Background(), model.Query{BusinessType: "retail"}, model.Filters{RadiusMaxMiles: model.FloatPtr(1)})
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}

func TestVenueSearch(t *testing.T) {
	e := New(testAreas(), testRef())

	recs, err := e.VenueSearch(context.Background(), model.Query{Query: "", BusinessType: "retail"}, VenueFilters{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	sm := recs[0]
	assert.Equal(t, "Santa Monica Beach Volleyball", sm.Area)
	assert.Equal(t, "Santa Monica", sm.NearestArea)
	assert.Equal(t, "Beach Volleyball", sm.Category)
	assert.InDelta(t, 10.0, sm.Score, 0.0001)
	assert.Equal(t, [2]float64{-118.4960, 34.0100}, sm.Coordinates)
	require.NotNil(t, sm.DistanceKm)
	assert.Less(t, *sm.DistanceKm, 2.0)

	arena := recs[1]
	assert.Equal(t, "Brea", arena.NearestArea)
	assert.Equal(t, model.DefaultPopulationDensity, arena.PopulationDensity)
	assert.InDelta(t, 7.2, arena.Score, 0.0001)
}

func TestVenueSearch_NearestAreaNameMatchesAsCity(t *testing.T) {
	e := New(testAreas(), testRef())

	recs, err := e.VenueSearch(context.Background(), model.Query{Query: "brea", BusinessType: "retail"}, VenueFilters{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Anaheim Arena", recs[0].Area)
}

func TestVenueSearch_CategoryFilter(t *testing.T) {
	e := New(testAreas(), testRef())

	recs, err := e.VenueSearch(context.Background(), model.Query{Query: "", BusinessType: "retail"}, VenueFilters{Category: "VOLLEYBALL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Santa Monica Beach Volleyball"}, names(recs))
}

func TestNew_NilReference(t *testing.T) {
	e := New(testAreas(), nil)
	ctx := context.Background()
	q := model.Query{BusinessType: "retail"}

	recs, err := e.AdvancedSearch(ctx, q, model.Filters{Counties: []string{"Orange County"}})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = e.AdvancedSearch(ctx, q, model.Filters{RadiusMaxMiles: model.FloatPtr(1)})
	require.NoError(t, err)
	assert.Len(t, recs, 4)

	recs, err = e.VenueSearch(ctx, q, VenueFilters{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRoundTo(t *testing.T) {
	assert.InDelta(t, 1.23, roundTo(1.234, 2), 1e-12)
	assert.InDelta(t, 0.12, roundTo(0.125, 2), 1e-12)
	assert.InDelta(t, 2.67, roundTo(2.675, 2), 1e-12)
}

func TestNormalize(t *testing.T) {
	q := Normalize(model.Query{Query: "Downtown LA"})
	assert.Equal(t, "downtown la", q.Query)
	assert.Equal(t, DefaultBusinessType, q.BusinessType)

	q = Normalize(model.Query{Query: "x", BusinessType: "Cafe"})
	assert.Equal(t, "Cafe", q.BusinessType)
}
