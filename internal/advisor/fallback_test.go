package advisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/scorer"
)

func TestFallbackIntent(t *testing.T) {
	tests := []struct {
		name  string
		query string
		prefs []string
		reqs  []string
	}{
		{"beach", "Waterfront cafe", []string{"beach", "coastal"}, []string{}},
		{"first location bucket wins", "beach near downtown", []string{"beach", "coastal"}, []string{}},
		{"urban", "city center gym", []string{"urban", "downtown"}, []string{}},
		{"suburban", "quiet family bakery", []string{"suburban", "family-friendly"}, []string{}},
		{"requirements accumulate", "busy spot near metro with competition", []string{}, []string{"high foot traffic", "good accessibility", "established commercial area"}},
		{"nothing", "pizza", []string{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackIntent(tt.query, "restaurant")
			assert.Equal(t, "Looking for restaurant location", got.UserIntent)
			assert.Equal(t, tt.prefs, got.LocationPreferences)
			assert.Equal(t, tt.reqs, got.BusinessRequirements)
		})
	}
}

func TestFallbackPicks(t *testing.T) {
	cands := []Candidate{
		{Area: "A", Score: 12},
		{Area: "B", Score: 9.5, PopulationDensity: 10001},
		{Area: "C", Score: 8},
		{Area: "D", Score: 7},
		{Area: "E", Score: 6},
		{Area: "F", Score: 5},
	}

	picks := FallbackPicks(cands, "retail")
	require.Len(t, picks, FallbackPickCount)
	assert.Equal(t, "A", picks[0].AreaName)
	assert.InDelta(t, 10, picks[0].ConfidenceScore, 0.0001)
	assert.Equal(t, "Good business potential", picks[0].Reasoning)
	assert.Equal(t, "High population density for customer base", picks[1].Reasoning)
	assert.Equal(t, DefaultKeyFactors, picks[2].KeyFactors)
	assert.Equal(t, "Suitable for retail based on local metrics", picks[4].BusinessInsights)
	assert.Equal(t, "E", picks[4].AreaName)

	assert.Empty(t, FallbackPicks(nil, "retail"))
}

func TestFallbackPicks_KeyFactorsNotShared(t *testing.T) {
	picks := FallbackPicks([]Candidate{{Area: "A"}}, "retail")
	picks[0].KeyFactors[0] = "changed"
	assert.Equal(t, "Population density", DefaultKeyFactors[0])
}

func TestFallbackReasoning_Boundaries(t *testing.T) {
	c := Candidate{PopulationDensity: 10000, TransportScore: 6, BusinessDensity: 80}
	assert.Equal(t, "Good business potential", FallbackReasoning(c))

	c = Candidate{TransportScore: 6.1, BusinessDensity: 81}
	assert.Equal(t, "Good public transportation access; Established commercial area", FallbackReasoning(c))
}

func TestDeterministic(t *testing.T) {
	d := NewDeterministic()
	ctx := context.Background()
	assert.False(t, d.Available())

	intent, err := d.AnalyzeIntent(ctx, "beach", "cafe")
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "coastal"}, intent.LocationPreferences)

	picks, err := d.Recommend(ctx, testCandidates, intent, "cafe")
	require.NoError(t, err)
	assert.Len(t, picks, 3)

	reasons, err := d.EnhanceReasons(ctx, testCandidates[0], intent, "cafe")
	require.NoError(t, err)
	assert.Equal(t, []string{scorer.ReasonPopulationHigh, scorer.ReasonBusinessHigh, scorer.ReasonTransitExcellent}, reasons)

	reasons, err = d.EnhanceReasons(ctx, testCandidates[2], intent, "cafe")
	require.NoError(t, err)
	assert.Equal(t, []string{scorer.ReasonFallback}, reasons)
}

func TestCandidate_Metric(t *testing.T) {
	c := Candidate{Area: "Irvine", PopulationDensity: 4700, BusinessDensity: 70, TransportScore: 6.5}
	assert.Equal(t, model.AreaMetric{AreaName: "Irvine", PopulationDensity: 4700, BusinessDensity: 70, TransportScore: 6.5}, c.Metric())
}

var _ Advisor = (*Claude)(nil)
var _ Advisor = (*Deterministic)(nil)
