// Package search ranks reference areas and venues against a query. It wires
// the scorer, filter and proximity join over a store snapshot and layers the
// optional AI advisor on top.
package search

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/siteselect/internal/advisor"
	"github.com/sells-group/siteselect/internal/filter"
	"github.com/sells-group/siteselect/internal/geo"
	"github.com/sells-group/siteselect/internal/metrics"
	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/scorer"
)

// DefaultBusinessType is used when a query names no business type.
const DefaultBusinessType = "restaurant"

// Search modes, used as metric labels.
const (
	ModeBasic    = "basic"
	ModeAdvanced = "advanced"
	ModeAI       = "ai"
	ModeVenue    = "venue"
)

// AreaSource supplies every reference area with its latest metric row.
type AreaSource interface {
	ListAreas(ctx context.Context) ([]model.AreaWithMetric, error)
}

// Reference supplies the static county and venue tables.
type Reference interface {
	County(areaName string) (string, bool)
	VenuesByCategory(category string) []model.PointOfInterest
}

// noReference is used when New gets a nil Reference: no area has a county
// and there are no venues.
type noReference struct{}

func (noReference) County(string) (string, bool) { return "", false }

func (noReference) VenuesByCategory(string) []model.PointOfInterest { return nil }

// Config caps result lists.
type Config struct {
	MaxResults        int
	MaxAIResults      int
	AICandidates      int
	ReasonConcurrency int
}

// DefaultConfig returns the standard result caps.
func DefaultConfig() Config {
	return Config{
		MaxResults:        20,
		MaxAIResults:      15,
		AICandidates:      10,
		ReasonConcurrency: 4,
	}
}

// VenueFilters narrows a venue search.
type VenueFilters struct {
	// Category keeps venues whose category contains the text, case-insensitively.
	Category string `json:"category,omitempty"`
}

// Engine answers search requests. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	areas    AreaSource
	ref      Reference
	scorer   *scorer.Engine
	advisor  advisor.Advisor
	fallback *advisor.Deterministic
	metrics  *metrics.Metrics
	cfg      Config
	log      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer replaces the default scoring engine.
func WithScorer(s *scorer.Engine) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithAdvisor sets the AI advisor. Without one every AI search uses the
// deterministic advisor.
func WithAdvisor(a advisor.Advisor) Option {
	return func(e *Engine) { e.advisor = a }
}

// WithMetrics records search metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithConfig overrides the result caps. Zero fields keep the defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.MaxResults > 0 {
			e.cfg.MaxResults = cfg.MaxResults
		}
		if cfg.MaxAIResults > 0 {
			e.cfg.MaxAIResults = cfg.MaxAIResults
		}
		if cfg.AICandidates > 0 {
			e.cfg.AICandidates = cfg.AICandidates
		}
		if cfg.ReasonConcurrency > 0 {
			e.cfg.ReasonConcurrency = cfg.ReasonConcurrency
		}
	}
}

// New creates an Engine over an area source and the reference tables.
func New(areas AreaSource, ref Reference, opts ...Option) *Engine {
	e := &Engine{
		areas:    areas,
		ref:      ref,
		scorer:   scorer.New(),
		fallback: advisor.NewDeterministic(),
		cfg:      DefaultConfig(),
		log:      zap.L().With(zap.String("component", "search")),
	}
	for _, o := range opts {
		o(e)
	}
	if e.advisor == nil {
		e.advisor = e.fallback
	}
	if e.ref == nil {
		e.ref = noReference{}
	}
	return e
}

// AIAvailable reports whether AI searches reach a live advisor.
func (e *Engine) AIAvailable() bool {
	return e.advisor.Available()
}

// Search scores every area against the query and returns the matches,
// best first, capped at MaxResults. Areas without a metric row use the
// default metric. Ties keep store order.
func (e *Engine) Search(ctx context.Context, q model.Query) ([]model.Recommendation, error) {
	start := time.Now()
	q = Normalize(q)

	areas, err := e.areas.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "search: list areas")
	}

	recs := capList(e.rank(q, areas, nil), e.cfg.MaxResults)
	e.metrics.ObserveSearch(ModeBasic, len(recs), time.Since(start))
	return recs, nil
}

// AdvancedSearch applies the filter engine and the venue radius range before
// scoring. The radius is measured to the single nearest venue.
func (e *Engine) AdvancedSearch(ctx context.Context, q model.Query, f model.Filters) ([]model.Recommendation, error) {
	start := time.Now()
	q = Normalize(q)

	areas, err := e.areas.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "search: list areas")
	}

	var venues []model.PointOfInterest
	if f.RadiusMinMiles != nil || f.RadiusMaxMiles != nil {
		venues = e.ref.VenuesByCategory("")
	}

	keep := func(a model.ReferenceArea, m model.AreaMetric) bool {
		return filter.Passes(a, m, f, e.ref.County) &&
			geo.WithinRadiusRange(a.Latitude, a.Longitude, f.RadiusMinMiles, f.RadiusMaxMiles, venues)
	}

	recs := capList(e.rank(q, areas, keep), e.cfg.MaxResults)
	e.metrics.ObserveSearch(ModeAdvanced, len(recs), time.Since(start))
	return recs, nil
}

// VenueSearch scores each venue with the metric of its nearest area. The
// venue name is matched as the candidate name and the nearest area name as
// its city.
func (e *Engine) VenueSearch(ctx context.Context, q model.Query, vf VenueFilters) ([]model.Recommendation, error) {
	start := time.Now()
	q = Normalize(q)

	areas, err := e.areas.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "search: list areas")
	}

	var recs []model.Recommendation
	for _, poi := range e.ref.VenuesByCategory(vf.Category) {
		nearest, distKm, ok := geo.NearestArea(poi.Latitude, poi.Longitude, areas)
		if !ok {
			e.log.Debug("search: venue has no nearest area", zap.String("venue", poi.Name))
			continue
		}

		m := nearest.MetricOrDefault()
		score, _ := e.scorer.Score(scorer.Candidate{
			Query:        q.Query,
			Name:         poi.Name,
			City:         nearest.Area.Name,
			BusinessType: q.BusinessType,
			Base:         e.scorer.BaseScore(m),
			Metric:       m,
		})
		if score <= 0 {
			continue
		}

		d := roundTo(distKm, 2)
		recs = append(recs, model.Recommendation{
			Area:              poi.Name,
			Score:             score,
			Reasons:           e.scorer.Reasons(q.Query, poi.Name, m),
			Coordinates:       [2]float64{poi.Longitude, poi.Latitude},
			BusinessDensity:   m.BusinessDensity,
			PopulationDensity: m.PopulationDensity,
			TransportScore:    m.TransportScore,
			ApartmentCount:    m.ApartmentCount,
			NearestArea:       nearest.Area.Name,
			DistanceKm:        &d,
			Category:          poi.Category,
		})
	}

	sortByScore(recs)
	recs = capList(recs, e.cfg.MaxResults)
	e.metrics.ObserveSearch(ModeVenue, len(recs), time.Since(start))
	return recs, nil
}

// rank scores areas that pass keep (nil keeps all), drops zero scores and
// sorts best first.
func (e *Engine) rank(q model.Query, areas []model.AreaWithMetric, keep func(model.ReferenceArea, model.AreaMetric) bool) []model.Recommendation {
	var recs []model.Recommendation
	for _, a := range areas {
		if !geo.ValidCoord(a.Area.Latitude, a.Area.Longitude) {
			e.log.Debug("search: skipping area with invalid coordinates", zap.String("area", a.Area.Name))
			continue
		}

		m := a.MetricOrDefault()
		if keep != nil && !keep(a.Area, m) {
			continue
		}

		score, _ := e.scorer.Score(scorer.Candidate{
			Query:        q.Query,
			Name:         a.Area.Name,
			City:         a.Area.City,
			BusinessType: q.BusinessType,
			Base:         e.scorer.BaseScore(m),
			Metric:       m,
		})
		if score <= 0 {
			continue
		}

		recs = append(recs, model.Recommendation{
			Area:              a.Area.Name,
			Score:             score,
			Reasons:           e.scorer.Reasons(q.Query, a.Area.Name, m),
			Coordinates:       a.Area.Coordinates(),
			BusinessDensity:   m.BusinessDensity,
			PopulationDensity: m.PopulationDensity,
			TransportScore:    m.TransportScore,
			ApartmentCount:    m.ApartmentCount,
		})
	}
	sortByScore(recs)
	return recs
}

// Normalize lowercases the query text and fills in the default business
// type.
func Normalize(q model.Query) model.Query {
	q.Query = cases.Lower(language.Und).String(q.Query)
	if strings.TrimSpace(q.BusinessType) == "" {
		q.BusinessType = DefaultBusinessType
	}
	return q
}

func sortByScore(recs []model.Recommendation) {
	slices.SortStableFunc(recs, func(a, b model.Recommendation) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

func capList[T any](in []T, n int) []T {
	if n > 0 && len(in) > n {
		return in[:n]
	}
	if in == nil {
		return []T{}
	}
	return in
}

// roundTo rounds the exact binary value to places decimals, ties to even.
func roundTo(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
