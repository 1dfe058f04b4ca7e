package scorer

import (
	"strings"

	"github.com/sells-group/siteselect/internal/model"
)

// Candidate is the scoring input for one area or venue. Query must already
// be lowercased.
type Candidate struct {
	Query        string
	Name         string
	City         string
	BusinessType string
	Base         float64
	Metric       model.AreaMetric
}

// Rule is one entry of the scoring cascade.
type Rule struct {
	Name       string
	Applies    func(c Candidate) bool
	Multiplier func(c Candidate) float64
}

// tier is a strict lower bound and the multiplier applied above it.
type tier struct {
	above float64
	mult  float64
}

// tiered returns the multiplier of the first tier v exceeds, else otherwise.
func tiered(v float64, otherwise float64, tiers ...tier) float64 {
	for _, t := range tiers {
		if v > t.above {
			return t.mult
		}
	}
	return otherwise
}

func fixed(m float64) func(Candidate) float64 {
	return func(Candidate) float64 { return m }
}

func queryHas(terms ...string) func(Candidate) bool {
	return func(c Candidate) bool { return containsAny(c.Query, terms...) }
}

func nameHas(c Candidate, terms ...string) bool {
	return containsAny(strings.ToLower(c.Name), terms...)
}

// Term sets used by the default rules.
var (
	diningBusinessTypes = []string{"restaurant", "food", "dining", "pizza", "cafe"}
	beachTerms          = []string{"beach", "coastal", "waterfront"}
	urbanTerms          = []string{"downtown", "urban", "city", "center"}
	hillsTerms          = []string{"hills", "hillside", "mountain"}
	densityTerms        = []string{"high", "dense", "busy", "crowded"}
	transitTerms        = []string{"transit", "transport", "metro", "bus", "rail", "subway", "accessible", "connectivity"}
	qualityTerms        = []string{"best", "top", "excellent", "great"}
	commercialTerms     = []string{"business", "commercial", "retail", "office", "store", "shop"}
	passThroughQueries  = []string{"all", "show", "list", "find", "search", ""}
)

// DefaultRules returns the scoring cascade in precedence order. The first
// rule whose Applies returns true decides the multiplier.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "direct_match",
			Applies: func(c Candidate) bool {
				return strings.Contains(strings.ToLower(c.Name), c.Query) ||
					strings.Contains(strings.ToLower(c.City), c.Query)
			},
			Multiplier: fixed(1.5),
		},
		{
			Name: "dining_business",
			Applies: func(c Candidate) bool {
				bt := strings.ToLower(c.BusinessType)
				for _, t := range diningBusinessTypes {
					if bt == t {
						return true
					}
				}
				return false
			},
			Multiplier: func(c Candidate) float64 {
				return tiered(float64(c.Metric.PopulationDensity), 0.8, tier{8000, 1.3}, tier{5000, 1.1})
			},
		},
		{
			Name:    "beach",
			Applies: queryHas(beachTerms...),
			Multiplier: func(c Candidate) float64 {
				if nameHas(c, "beach", "coast", "marina") {
					return 1.4
				}
				return 0.3
			},
		},
		{
			Name:    "urban",
			Applies: queryHas(urbanTerms...),
			Multiplier: func(c Candidate) float64 {
				if nameHas(c, "downtown", "center", "city") {
					return 1.3
				}
				return tiered(float64(c.Metric.PopulationDensity), 0.7, tier{10000, 1.2})
			},
		},
		{
			Name:    "hills",
			Applies: queryHas(hillsTerms...),
			Multiplier: func(c Candidate) float64 {
				if nameHas(c, "hills", "heights", "ridge") {
					return 1.3
				}
				return 0.5
			},
		},
		{
			Name:    "density",
			Applies: queryHas(densityTerms...),
			Multiplier: func(c Candidate) float64 {
				return tiered(float64(c.Metric.PopulationDensity), 0.6, tier{10000, 1.4}, tier{7000, 1.2})
			},
		},
		{
			Name:    "transit",
			Applies: queryHas(transitTerms...),
			Multiplier: func(c Candidate) float64 {
				return tiered(c.Metric.TransportScore, 0.5, tier{8, 1.5}, tier{6, 1.3}, tier{4, 1.1})
			},
		},
		{
			Name:    "quality",
			Applies: queryHas(qualityTerms...),
			Multiplier: func(c Candidate) float64 {
				return tiered(c.Base, 0.8, tier{7, 1.2}, tier{5, 1.0})
			},
		},
		{
			Name:    "commercial",
			Applies: queryHas(commercialTerms...),
			Multiplier: func(c Candidate) float64 {
				return tiered(float64(c.Metric.BusinessDensity), 0.9, tier{80, 1.3}, tier{60, 1.1})
			},
		},
		{
			Name: "pass_through",
			Applies: func(c Candidate) bool {
				for _, q := range passThroughQueries {
					if c.Query == q {
						return true
					}
				}
				return false
			},
			Multiplier: fixed(1.0),
		},
	}
}

// Engine scores candidates with a rule cascade and explains them with a
// reason policy.
type Engine struct {
	rules      []Rule
	normalizer NormalizerPolicy
	reasons    ReasonPolicy
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the scoring cascade.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithNormalizer replaces the base score weights.
func WithNormalizer(p NormalizerPolicy) Option {
	return func(e *Engine) { e.normalizer = p }
}

// WithReasonPolicy replaces the reason thresholds.
func WithReasonPolicy(p ReasonPolicy) Option {
	return func(e *Engine) { e.reasons = p }
}

// New creates an Engine with the default rules and policies.
func New(opts ...Option) *Engine {
	e := &Engine{
		rules:      DefaultRules(),
		normalizer: DefaultNormalizerPolicy(),
		reasons:    DefaultReasonPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BaseScore maps a metric row to [0,10].
func (e *Engine) BaseScore(m model.AreaMetric) float64 {
	return e.normalizer.BaseScore(m)
}

// Score returns the search score and the name of the rule that decided it.
// A zero score means no rule matched and the candidate must be excluded.
func (e *Engine) Score(c Candidate) (float64, string) {
	for _, r := range e.rules {
		if !r.Applies(c) {
			continue
		}
		score := c.Base * r.Multiplier(c)
		if score > 0 {
			score = round1(clamp(score, 0, 10))
		} else {
			score = 0
		}
		return score, r.Name
	}
	return 0, ""
}

// Reasons explains a candidate's metrics.
func (e *Engine) Reasons(query, name string, m model.AreaMetric) []string {
	return e.reasons.Reasons(query, name, m)
}

var defaultEngine = New()

// SearchScore scores one candidate with the default cascade.
func SearchScore(query, name, city, businessType string, base float64, m model.AreaMetric) float64 {
	s, _ := defaultEngine.Score(Candidate{
		Query:        query,
		Name:         name,
		City:         city,
		BusinessType: businessType,
		Base:         base,
		Metric:       m,
	})
	return s
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
