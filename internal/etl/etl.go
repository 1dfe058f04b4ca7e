// Package etl loads and refreshes the reference areas and their metrics:
// seeding, city discovery, transit scores and apartment counts.
package etl

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/reference"
	"github.com/sells-group/siteselect/internal/resilience"
	"github.com/sells-group/siteselect/internal/store"
	"github.com/sells-group/siteselect/pkg/census"
)

// Store is the subset of store.Store the jobs write through.
type Store interface {
	ListAreas(ctx context.Context) ([]model.AreaWithMetric, error)
	UpsertAreas(ctx context.Context, areas []model.ReferenceArea) (int64, error)
	UpsertMetric(ctx context.Context, m *model.AreaMetric) error
	AppendMetrics(ctx context.Context, metrics []model.AreaMetric) (int64, error)
	ResetAreas(ctx context.Context) error
}

var _ Store = (store.Store)(nil)

// SeedResult reports a seed run.
type SeedResult struct {
	Areas   int64 `json:"areas"`
	Metrics int64 `json:"metrics"`
}

// DiscoverResult reports a city discovery run.
type DiscoverResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// TransportResult reports a transit score refresh.
type TransportResult struct {
	Updated    int `json:"updated"`
	TotalAreas int `json:"total_areas"`
}

// ApartmentResult reports an apartment count refresh. Live counts came from
// the ACS API; Fallback counts from the reference table or its default.
type ApartmentResult struct {
	Updated    int `json:"updated"`
	TotalAreas int `json:"total_areas"`
	Live       int `json:"live"`
	Fallback   int `json:"fallback"`
}

// Runner executes the jobs against a store.
type Runner struct {
	store   Store
	ref     *reference.Tables
	census  census.Client
	breaker *resilience.Breaker
	retry   resilience.RetryPolicy
	log     *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithCensus enables live ACS apartment lookups for areas with a place code.
func WithCensus(c census.Client) Option {
	return func(r *Runner) { r.census = c }
}

// WithResilience guards census calls with a breaker and retry policy.
func WithResilience(b *resilience.Breaker, p resilience.RetryPolicy) Option {
	return func(r *Runner) {
		r.breaker = b
		r.retry = p
	}
}

// NewRunner creates a Runner.
func NewRunner(st Store, ref *reference.Tables, opts ...Option) *Runner {
	r := &Runner{
		store: st,
		ref:   ref,
		retry: resilience.DefaultRetryPolicy(),
		log:   zap.L().With(zap.String("component", "etl")),
	}
	for _, o := range opts {
		o(r)
	}
	if r.breaker == nil {
		r.breaker = resilience.NewBreaker("census", resilience.DefaultBreakerConfig())
	}
	return r
}

// Seed replaces every area and metric row with the reference tables.
func (r *Runner) Seed(ctx context.Context) (*SeedResult, error) {
	if err := r.store.ResetAreas(ctx); err != nil {
		return nil, eris.Wrap(err, "etl: seed: reset")
	}
	areas, err := r.store.UpsertAreas(ctx, r.ref.ReferenceAreas())
	if err != nil {
		return nil, eris.Wrap(err, "etl: seed: areas")
	}
	metrics, err := r.store.AppendMetrics(ctx, r.ref.SeedMetrics())
	if err != nil {
		return nil, eris.Wrap(err, "etl: seed: metrics")
	}

	r.log.Info("seeded reference data", zap.Int64("areas", areas), zap.Int64("metrics", metrics))
	return &SeedResult{Areas: areas, Metrics: metrics}, nil
}

// DiscoverCities upserts every reference area and overwrites the density
// fields of its latest metric with census-derived values. Known apartment
// counts are kept.
func (r *Runner) DiscoverCities(ctx context.Context) (*DiscoverResult, error) {
	existing, err := r.store.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "etl: discover: list areas")
	}
	byName := make(map[string]model.AreaWithMetric, len(existing))
	for _, a := range existing {
		byName[a.Area.Name] = a
	}

	areas := r.ref.ReferenceAreas()
	if _, err := r.store.UpsertAreas(ctx, areas); err != nil {
		return nil, eris.Wrap(err, "etl: discover: upsert areas")
	}

	res := &DiscoverResult{Total: len(areas)}
	for _, a := range areas {
		if _, ok := byName[a.Name]; ok {
			res.Updated++
		} else {
			res.Created++
		}
	}

	for _, m := range r.ref.DiscoverMetrics() {
		if prev, ok := byName[m.AreaName]; ok && prev.Metric != nil {
			m.ApartmentCount = prev.Metric.ApartmentCount
		}
		if err := r.store.UpsertMetric(ctx, &m); err != nil {
			r.log.Warn("etl: discover: skipping area", zap.String("area", m.AreaName), zap.Error(err))
			continue
		}
		r.log.Debug("discovered area",
			zap.String("area", m.AreaName),
			zap.Int("population_density", m.PopulationDensity),
		)
	}

	r.log.Info("city discovery complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("total", res.Total),
	)
	return res, nil
}

// UpdateTransport recomputes the transit score of every area. Areas without
// a metric row get one with the default densities.
func (r *Runner) UpdateTransport(ctx context.Context) (*TransportResult, error) {
	areas, err := r.store.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "etl: transport: list areas")
	}

	res := &TransportResult{TotalAreas: len(areas)}
	for _, a := range areas {
		m := a.MetricOrDefault()
		m.TransportScore = r.ref.TransportScore(a.Area.Name)
		if err := r.store.UpsertMetric(ctx, &m); err != nil {
			return res, eris.Wrapf(err, "etl: transport: %s", a.Area.Name)
		}
		res.Updated++
	}

	r.log.Info("transport scores updated", zap.Int("updated", res.Updated))
	return res, nil
}

// UpdateApartments refreshes apartment counts. Areas with a census place code
// are looked up live when a census client is configured; any failure, or an
// area without a code, uses the reference table.
func (r *Runner) UpdateApartments(ctx context.Context) (*ApartmentResult, error) {
	areas, err := r.store.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "etl: apartments: list areas")
	}

	res := &ApartmentResult{TotalAreas: len(areas)}
	for _, a := range areas {
		count, live := r.apartmentCount(ctx, a.Area.Name)
		if live {
			res.Live++
		} else {
			res.Fallback++
		}

		m := a.MetricOrDefault()
		m.ApartmentCount = model.IntPtr(count)
		if err := r.store.UpsertMetric(ctx, &m); err != nil {
			return res, eris.Wrapf(err, "etl: apartments: %s", a.Area.Name)
		}
		res.Updated++
	}

	r.log.Info("apartment counts updated",
		zap.Int("updated", res.Updated),
		zap.Int("live", res.Live),
		zap.Int("fallback", res.Fallback),
	)
	return res, nil
}

func (r *Runner) apartmentCount(ctx context.Context, area string) (int, bool) {
	if r.census != nil {
		if place, ok := r.ref.PlaceFIPS(area); ok {
			p := r.retry
			p.OnRetry = resilience.LogRetries("census", "apartment_count")
			p.Retryable = retryableCensus
			n, err := resilience.RunVal(ctx, r.breaker, func(ctx context.Context) (int, error) {
				return resilience.DoVal(ctx, p, func(ctx context.Context) (int, error) {
					return r.census.ApartmentCount(ctx, place)
				})
			})
			if err == nil {
				return n, true
			}
			r.log.Warn("etl: census lookup failed, using reference count",
				zap.String("area", area),
				zap.String("place", place),
				zap.Error(err),
			)
		}
	}

	n, ok := r.ref.ApartmentCount(area)
	if !ok {
		r.log.Debug("etl: no apartment data, using default", zap.String("area", area), zap.Int("count", n))
	}
	return n, false
}

func retryableCensus(err error) bool {
	var se *census.StatusError
	if errors.As(err, &se) {
		return resilience.IsTransientStatus(se.StatusCode)
	}
	return resilience.IsTransient(err)
}
