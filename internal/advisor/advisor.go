// Package advisor re-ranks and explains search candidates. Claude asks the
// Anthropic API; Deterministic answers from local metrics and is also the
// fallback for every Claude operation.
package advisor

import (
	"context"

	"github.com/sells-group/siteselect/internal/model"
)

// Candidate is one deterministically scored area offered to the advisor.
type Candidate struct {
	Area              string     `json:"name"`
	Score             float64    `json:"score"`
	PopulationDensity int        `json:"population_density"`
	BusinessDensity   int        `json:"business_density"`
	TransportScore    float64    `json:"transport_score"`
	Coordinates       [2]float64 `json:"coordinates"`
}

// Metric returns the candidate's metric values.
func (c Candidate) Metric() model.AreaMetric {
	return model.AreaMetric{
		AreaName:          c.Area,
		PopulationDensity: c.PopulationDensity,
		BusinessDensity:   c.BusinessDensity,
		TransportScore:    c.TransportScore,
	}
}

// Advisor is the AI re-ranking collaborator. Any error means the caller
// should use the deterministic answer for that operation.
type Advisor interface {
	// Available reports whether the advisor talks to a live AI service.
	Available() bool
	AnalyzeIntent(ctx context.Context, query, businessType string) (model.Intent, error)
	Recommend(ctx context.Context, candidates []Candidate, intent model.Intent, businessType string) ([]model.AdvisorPick, error)
	EnhanceReasons(ctx context.Context, c Candidate, intent model.Intent, businessType string) ([]string, error)
}
