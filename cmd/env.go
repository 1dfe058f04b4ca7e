package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/advisor"
	"github.com/sells-group/siteselect/internal/auth"
	"github.com/sells-group/siteselect/internal/etl"
	"github.com/sells-group/siteselect/internal/metrics"
	"github.com/sells-group/siteselect/internal/reference"
	"github.com/sells-group/siteselect/internal/resilience"
	"github.com/sells-group/siteselect/internal/search"
	"github.com/sells-group/siteselect/internal/store"
	anthropicpkg "github.com/sells-group/siteselect/pkg/anthropic"
	"github.com/sells-group/siteselect/pkg/census"
)

// appEnv holds the store, reference tables and services shared by the
// commands.
type appEnv struct {
	Store    store.Store
	Ref      *reference.Tables
	Search   *search.Engine
	ETL      *etl.Runner
	Auth     *auth.Service // serve only
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	Breakers *resilience.Breakers
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// loadReference reads the reference tables, replacing the venue list with
// the configured shapefile when one is set.
func loadReference() (*reference.Tables, error) {
	ref, err := reference.LoadFile(cfg.Reference.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Reference.VenueShapefile != "" {
		venues, err := reference.LoadVenuesShapefile(cfg.Reference.VenueShapefile)
		if err != nil {
			return nil, err
		}
		ref.Venues = venues
		zap.L().Info("loaded venues from shapefile",
			zap.String("path", cfg.Reference.VenueShapefile),
			zap.Int("venues", len(venues)),
		)
	}
	return ref, nil
}

// initEnv validates the config for mode and wires every service. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	ref, err := loadReference()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	bc, retry := resilience.FromConfig(cfg.Resilience)
	bc.OnTransition = m.BreakerTransition
	breakers := resilience.NewBreakers(bc)

	searchOpts := []search.Option{
		search.WithMetrics(m),
		search.WithConfig(search.Config{
			MaxResults:   cfg.Search.MaxResults,
			MaxAIResults: cfg.Search.MaxAIResults,
			AICandidates: cfg.Search.AICandidates,
		}),
	}
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key,
			anthropicpkg.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second),
		)
		searchOpts = append(searchOpts, search.WithAdvisor(advisor.NewClaude(client,
			advisor.WithModel(cfg.Anthropic.Model),
			advisor.WithMaxTokens(cfg.Anthropic.MaxTokens),
			advisor.WithBreaker(breakers.Get("anthropic")),
		)))
	} else {
		zap.L().Info("anthropic key not set, AI search uses deterministic fallback")
	}

	etlOpts := []etl.Option{etl.WithResilience(breakers.Get("census"), retry)}
	if cfg.Census.UseLiveAPI {
		etlOpts = append(etlOpts, etl.WithCensus(census.NewClient(cfg.Census.Key,
			census.WithBaseURL(cfg.Census.BaseURL),
			census.WithRateLimit(cfg.Census.RateLimit),
		)))
	}

	env := &appEnv{
		Store:    st,
		Ref:      ref,
		Search:   search.New(st, ref, searchOpts...),
		ETL:      etl.NewRunner(st, ref, etlOpts...),
		Metrics:  m,
		Registry: reg,
		Breakers: breakers,
	}

	if mode == "serve" {
		var authOpts []auth.Option
		if mailer := auth.NewSMTPMailer(cfg.SMTP); mailer.Configured() {
			authOpts = append(authOpts, auth.WithMailer(mailer))
		}
		if cfg.GoogleEnabled() {
			authOpts = append(authOpts, auth.WithGoogle(auth.NewGoogle(cfg.Google)))
		}
		env.Auth = auth.NewService(st, auth.SettingsFromConfig(cfg.Auth), authOpts...)
	}

	return env, nil
}
