package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/siteselect/internal/model"
)

var (
	downtownLA     = model.AreaMetric{PopulationDensity: 12000, BusinessDensity: 120, TransportScore: 9.0}
	manhattanBeach = model.AreaMetric{PopulationDensity: 9000, BusinessDensity: 60, TransportScore: 6.5}
	irvine         = model.AreaMetric{PopulationDensity: 4700, BusinessDensity: 85, TransportScore: 7.0}
)

func score(query, name, city, bt string, m model.AreaMetric) (float64, string) {
	return New().Score(Candidate{
		Query:        query,
		Name:         name,
		City:         city,
		BusinessType: bt,
		Base:         BaseScore(m),
		Metric:       m,
	})
}

func TestScore_DirectMatchClamped(t *testing.T) {
	got, rule := score("downtown", "Downtown LA", "Los Angeles", "restaurant", downtownLA)
	assert.Equal(t, "direct_match", rule)
	assert.InDelta(t, 10.0, got, 1e-9)
}

func TestScore_DirectMatchOnCity(t *testing.T) {
	got, rule := score("los angeles", "Downtown LA", "Los Angeles", "retail", downtownLA)
	assert.Equal(t, "direct_match", rule)
	assert.InDelta(t, 10.0, got, 1e-9)
}

func TestScore_BeachNameMatch(t *testing.T) {
	// "coastal" is not a substring of the name, so the beach rule decides.
	got, rule := score("coastal", "Manhattan Beach", "Manhattan Beach", "retail", manhattanBeach)
	assert.Equal(t, "beach", rule)
	assert.InDelta(t, 8.7, got, 1e-9) // 6.2 * 1.4
}

func TestScore_BeachQueryMatchingNameIsDirect(t *testing.T) {
	got, rule := score("beach", "Manhattan Beach", "Manhattan Beach", "retail", manhattanBeach)
	assert.Equal(t, "direct_match", rule)
	assert.InDelta(t, 9.3, got, 1e-9) // 6.2 * 1.5
}

func TestScore_FirstMatchWins(t *testing.T) {
	got, rule := score("beach transit", "Downtown LA", "Los Angeles", "retail", downtownLA)
	assert.Equal(t, "beach", rule)
	assert.InDelta(t, 2.5, got, 1e-9) // 8.4 * 0.3
}

func TestScore_DiningBusinessTypeBeatsQueryTerms(t *testing.T) {
	got, rule := score("transit", "Irvine", "Irvine", "Restaurant", irvine)
	assert.Equal(t, "dining_business", rule)
	assert.InDelta(t, 3.8, got, 1e-9) // 4.7 * 0.8
}

func TestScore_NoMatchIsZero(t *testing.T) {
	got, rule := score("xyzxyz123", "Irvine", "Irvine", "unknown_type", irvine)
	assert.Equal(t, "", rule)
	assert.Zero(t, got)
}

func TestScore_EmptyQueryMatchesEveryName(t *testing.T) {
	got, rule := score("", "Irvine", "Irvine", "retail", irvine)
	assert.Equal(t, "direct_match", rule)
	assert.InDelta(t, 7.1, got, 1e-9) // 4.7 * 1.5 = 7.05
}

func TestScore_Cascade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		area     string
		m        model.AreaMetric
		wantRule string
		want     float64
	}{
		{"urban name match", "urban core", "Culver City", model.AreaMetric{PopulationDensity: 7900, BusinessDensity: 85, TransportScore: 7.5}, "urban", 8.1},
		{"urban dense", "downtown vibe", "Santa Ana", model.AreaMetric{PopulationDensity: 12200, BusinessDensity: 100, TransportScore: 7.0}, "urban", 9.2},
		{"urban sparse", "urban", "Brea", model.AreaMetric{PopulationDensity: 3200, BusinessDensity: 55, TransportScore: 6.0}, "urban", 2.6},
		{"hills name match", "hillside", "Beverly Hills", model.AreaMetric{PopulationDensity: 6000, BusinessDensity: 80, TransportScore: 7.0}, "hills", 6.8},
		{"hills no match", "mountain", "Irvine", irvine, "hills", 2.4},
		{"density high", "busy streets", "West Hollywood", model.AreaMetric{PopulationDensity: 18500, BusinessDensity: 110, TransportScore: 8.5}, "density", 10.0},
		{"density mid", "crowded", "Culver City", model.AreaMetric{PopulationDensity: 7900, BusinessDensity: 85, TransportScore: 7.5}, "density", 7.4},
		{"density low", "dense", "Irvine", irvine, "density", 2.8},
		{"transit excellent", "metro", "Santa Monica", model.AreaMetric{PopulationDensity: 11000, BusinessDensity: 95, TransportScore: 8.5}, "transit", 10.0},
		{"transit good", "rail access", "Irvine", irvine, "transit", 6.1},
		{"transit fair", "bus", "Brea", model.AreaMetric{PopulationDensity: 3200, BusinessDensity: 55, TransportScore: 4.5}, "transit", 3.4},
		{"transit poor", "subway", "Nowhere", model.AreaMetric{PopulationDensity: 3000, BusinessDensity: 20, TransportScore: 3.0}, "transit", 1.2},
		{"quality high base", "best spot", "Santa Ana", model.AreaMetric{PopulationDensity: 12200, BusinessDensity: 100, TransportScore: 7.0}, "quality", 9.2},
		{"quality mid base", "top", "Culver City", model.AreaMetric{PopulationDensity: 7900, BusinessDensity: 85, TransportScore: 7.5}, "quality", 6.2},
		{"quality low base", "great", "Irvine", irvine, "quality", 3.8},
		{"commercial high", "retail", "Irvine", irvine, "commercial", 6.1},
		{"commercial mid", "office", "Orange", model.AreaMetric{PopulationDensity: 5500, BusinessDensity: 65, TransportScore: 6.5}, "commercial", 5.3},
		{"commercial low", "shop", "Laguna Beach", model.AreaMetric{PopulationDensity: 1800, BusinessDensity: 40, TransportScore: 5.5}, "commercial", 2.6},
		{"pass through", "all", "Irvine", irvine, "pass_through", 4.7},
		{"pass through list", "list", "Irvine", irvine, "pass_through", 4.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, rule := score(tt.query, tt.area, tt.area, "retail", tt.m)
			assert.Equal(t, tt.wantRule, rule)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScore_DiningTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bt   string
		pd   int
		want float64
	}{
		{"pizza", 9000, 8.1}, // 6.2 * 1.3
		{"cafe", 6000, 5.5},  // 5.0 * 1.1
		{"food", 3000, 3.0},  // 3.8 * 0.8
	}
	for _, tt := range tests {
		t.Run(tt.bt, func(t *testing.T) {
			t.Parallel()
			m := model.AreaMetric{PopulationDensity: tt.pd, TransportScore: 6.5}
			got, rule := score("tacos", "Torrance", "Torrance", tt.bt, m)
			assert.Equal(t, "dining_business", rule)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSearchScore_ExampleEndToEnd(t *testing.T) {
	base := BaseScore(downtownLA)
	assert.InDelta(t, 8.4, base, 1e-9) // 0.6*8 + 0.4*9
	assert.InDelta(t, 10.0, SearchScore("downtown", "Downtown LA", "Los Angeles", "restaurant", base, downtownLA), 1e-9)
}

func TestScore_CustomRules(t *testing.T) {
	e := New(WithRules([]Rule{{
		Name:       "always",
		Applies:    func(Candidate) bool { return true },
		Multiplier: fixed(2),
	}}))
	got, rule := e.Score(Candidate{Query: "anything", Base: 3})
	assert.Equal(t, "always", rule)
	assert.InDelta(t, 6.0, got, 1e-9)
}

func TestScore_ZeroBaseExcluded(t *testing.T) {
	got, rule := New().Score(Candidate{Query: "all", Base: 0})
	assert.Equal(t, "pass_through", rule)
	assert.Zero(t, got)
}

func TestScore_HalfwayProductsRoundToEven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    Candidate
		rule string
		want float64
	}{
		{"transit 2.5 * 1.3", Candidate{Query: "rail", Name: "Irvine", City: "Irvine", Base: 2.5, Metric: irvine}, "transit", 3.2},
		{"direct 1.5 * 1.5", Candidate{Query: "", Name: "Irvine", City: "Irvine", Base: 1.5, Metric: irvine}, "direct_match", 2.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, rule := New().Score(tt.c)
			assert.Equal(t, tt.rule, rule)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
