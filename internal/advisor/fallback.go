package advisor

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/scorer"
)

// FallbackPickCount is the number of candidates the deterministic advisor
// recommends.
const FallbackPickCount = 5

// DefaultKeyFactors are attached to recommendations without AI key factors.
var DefaultKeyFactors = []string{"Population density", "Transportation", "Business environment"}

// Fallback reasoning fragments.
const (
	reasoningPopulation = "High population density for customer base"
	reasoningTransit    = "Good public transportation access"
	reasoningCommercial = "Established commercial area"
	reasoningDefault    = "Good business potential"
)

type keywordBucket struct {
	words  []string
	values []string
}

var locationBuckets = []keywordBucket{
	{words: []string{"beach", "coastal", "waterfront"}, values: []string{"beach", "coastal"}},
	{words: []string{"downtown", "urban", "city", "center"}, values: []string{"urban", "downtown"}},
	{words: []string{"suburban", "family", "quiet"}, values: []string{"suburban", "family-friendly"}},
}

var requirementBuckets = []keywordBucket{
	{words: []string{"foot traffic", "busy", "crowded"}, values: []string{"high foot traffic"}},
	{words: []string{"accessible", "metro", "transit"}, values: []string{"good accessibility"}},
	{words: []string{"competition", "established"}, values: []string{"established commercial area"}},
}

// Deterministic answers every advisor operation from keyword tables and
// metric thresholds. It never fails.
type Deterministic struct {
	Policy scorer.ReasonPolicy
}

// NewDeterministic returns a Deterministic advisor with the default reason
// thresholds.
func NewDeterministic() *Deterministic {
	return &Deterministic{Policy: scorer.DefaultReasonPolicy()}
}

func (d *Deterministic) Available() bool { return false }

func (d *Deterministic) AnalyzeIntent(_ context.Context, query, businessType string) (model.Intent, error) {
	return FallbackIntent(query, businessType), nil
}

func (d *Deterministic) Recommend(_ context.Context, candidates []Candidate, _ model.Intent, businessType string) ([]model.AdvisorPick, error) {
	return FallbackPicks(candidates, businessType), nil
}

func (d *Deterministic) EnhanceReasons(_ context.Context, c Candidate, _ model.Intent, _ string) ([]string, error) {
	return d.Policy.FallbackReasons(c.Metric()), nil
}

// FallbackIntent reads location preferences and business requirements from
// keyword buckets. Only the first matching location bucket applies; every
// matching requirement bucket applies.
func FallbackIntent(query, businessType string) model.Intent {
	q := strings.ToLower(query)

	intent := model.Intent{
		UserIntent:           fmt.Sprintf("Looking for %s location", businessType),
		LocationPreferences:  []string{},
		BusinessRequirements: []string{},
	}
	for _, b := range locationBuckets {
		if containsAny(q, b.words) {
			intent.LocationPreferences = append(intent.LocationPreferences, b.values...)
			break
		}
	}
	for _, b := range requirementBuckets {
		if containsAny(q, b.words) {
			intent.BusinessRequirements = append(intent.BusinessRequirements, b.values...)
		}
	}
	return intent
}

// FallbackPicks recommends the first FallbackPickCount candidates in the
// order given, with confidence equal to the capped deterministic score.
func FallbackPicks(candidates []Candidate, businessType string) []model.AdvisorPick {
	n := min(len(candidates), FallbackPickCount)
	out := make([]model.AdvisorPick, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, model.AdvisorPick{
			AreaName:         c.Area,
			ConfidenceScore:  math.Min(10, c.Score),
			Reasoning:        FallbackReasoning(c),
			KeyFactors:       append([]string(nil), DefaultKeyFactors...),
			BusinessInsights: FallbackInsight(businessType),
		})
	}
	return out
}

// FallbackReasoning summarizes a candidate's strengths in one line.
func FallbackReasoning(c Candidate) string {
	var parts []string
	if c.PopulationDensity > 10000 {
		parts = append(parts, reasoningPopulation)
	}
	if c.TransportScore > 6 {
		parts = append(parts, reasoningTransit)
	}
	if c.BusinessDensity > 80 {
		parts = append(parts, reasoningCommercial)
	}
	if len(parts) == 0 {
		return reasoningDefault
	}
	return strings.Join(parts, "; ")
}

// FallbackInsight is the business insight used without AI output.
func FallbackInsight(businessType string) string {
	return fmt.Sprintf("Suitable for %s based on local metrics", businessType)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
