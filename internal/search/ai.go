package search

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteselect/internal/advisor"
	"github.com/sells-group/siteselect/internal/model"
)

// AISearch ranks areas deterministically, hands the top AICandidates to the
// advisor for re-ranking and explanation, and returns the advisor's picks
// sorted by confidence, capped at MaxAIResults. Picks naming an area outside
// the scored set are dropped. Each advisor operation falls back to the
// deterministic advisor on its own; any other failure returns the basic
// search result.
func (e *Engine) AISearch(ctx context.Context, q model.Query) (*model.AIResult, error) {
	start := time.Now()
	q = Normalize(q)

	res, err := e.aiSearch(ctx, q)
	if err != nil {
		e.log.Warn("search: ai search failed, using basic search", zap.Error(err))
		recs, berr := e.Search(ctx, q)
		if berr != nil {
			return nil, berr
		}
		intent := advisor.FallbackIntent(q.Query, q.BusinessType)
		res = &model.AIResult{
			Recommendations: recs,
			Insights:        insights(intent, e.advisor.Available(), model.ProvenanceFallback),
		}
	}

	e.metrics.ObserveSearch(ModeAI, len(res.Recommendations), time.Since(start))
	return res, nil
}

func (e *Engine) aiSearch(ctx context.Context, q model.Query) (*model.AIResult, error) {
	intent := e.analyzeIntent(ctx, q)

	areas, err := e.areas.ListAreas(ctx)
	if err != nil {
		return nil, err
	}

	scored := e.rank(q, areas, nil)
	byName := make(map[string]model.Recommendation, len(scored))
	for _, r := range scored {
		if _, dup := byName[r.Area]; !dup {
			byName[r.Area] = r
		}
	}

	top := capList(scored, e.cfg.AICandidates)
	candidates := make([]advisor.Candidate, 0, len(top))
	for _, r := range top {
		candidates = append(candidates, toCandidate(r))
	}

	picks, provenance := e.recommend(ctx, candidates, intent, q.BusinessType)
	recs := e.mapPicks(picks, byName)
	if len(recs) == 0 && len(candidates) > 0 && provenance == model.ProvenanceAI {
		e.log.Warn("search: no advisor pick matched a candidate, using fallback",
			zap.Int("picks", len(picks)))
		picks, _ = e.fallback.Recommend(ctx, candidates, intent, q.BusinessType)
		provenance = model.ProvenanceFallback
		recs = e.mapPicks(picks, byName)
	}

	if err := e.enhanceReasons(ctx, recs, intent, q.BusinessType); err != nil {
		return nil, err
	}

	sortByScore(recs)
	recs = capList(recs, e.cfg.MaxAIResults)

	return &model.AIResult{
		Recommendations: recs,
		Insights:        insights(intent, e.advisor.Available(), provenance),
	}, nil
}

// mapPicks joins advisor picks onto scored areas. Unknown and repeated
// names are dropped.
func (e *Engine) mapPicks(picks []model.AdvisorPick, byName map[string]model.Recommendation) []model.Recommendation {
	recs := make([]model.Recommendation, 0, len(picks))
	seen := make(map[string]bool, len(picks))
	for _, p := range picks {
		base, ok := byName[p.AreaName]
		if !ok || seen[p.AreaName] {
			e.log.Debug("search: dropping advisor pick", zap.String("area", p.AreaName))
			continue
		}
		seen[p.AreaName] = true

		rec := base
		rec.Score = p.ConfidenceScore
		rec.KeyFactors = p.KeyFactors
		rec.BusinessInsights = p.BusinessInsights
		recs = append(recs, rec)
	}
	return recs
}

func (e *Engine) analyzeIntent(ctx context.Context, q model.Query) model.Intent {
	intent, err := e.advisor.AnalyzeIntent(ctx, q.Query, q.BusinessType)
	if err == nil {
		e.metrics.AdvisorCall("intent", e.advisor.Available())
		return intent
	}
	e.log.Warn("search: intent analysis fell back", zap.Error(err))
	e.metrics.AdvisorCall("intent", false)
	intent, _ = e.fallback.AnalyzeIntent(ctx, q.Query, q.BusinessType)
	return intent
}

func (e *Engine) recommend(ctx context.Context, cands []advisor.Candidate, intent model.Intent, bt string) ([]model.AdvisorPick, model.Provenance) {
	if e.advisor.Available() {
		picks, err := e.advisor.Recommend(ctx, cands, intent, bt)
		if err == nil {
			e.metrics.AdvisorCall("recommend", true)
			return picks, model.ProvenanceAI
		}
		e.log.Warn("search: recommendations fell back", zap.Error(err))
	}
	e.metrics.AdvisorCall("recommend", false)
	picks, _ := e.fallback.Recommend(ctx, cands, intent, bt)
	return picks, model.ProvenanceFallback
}

// enhanceReasons replaces each recommendation's reasons with advisor
// reasons, falling back per recommendation. Calls run concurrently and each
// writes only its own slot.
func (e *Engine) enhanceReasons(ctx context.Context, recs []model.Recommendation, intent model.Intent, bt string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ReasonConcurrency)

	useAI := e.advisor.Available()
	for i := range recs {
		g.Go(func() error {
			cand := toCandidate(recs[i])
			if useAI {
				reasons, err := e.advisor.EnhanceReasons(gctx, cand, intent, bt)
				if err == nil {
					e.metrics.AdvisorCall("reasons", true)
					recs[i].Reasons = reasons
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.log.Debug("search: reasons fell back", zap.String("area", cand.Area), zap.Error(err))
			}
			e.metrics.AdvisorCall("reasons", false)
			recs[i].Reasons, _ = e.fallback.EnhanceReasons(gctx, cand, intent, bt)
			return nil
		})
	}
	return g.Wait()
}

func toCandidate(r model.Recommendation) advisor.Candidate {
	return advisor.Candidate{
		Area:              r.Area,
		Score:             r.Score,
		PopulationDensity: r.PopulationDensity,
		BusinessDensity:   r.BusinessDensity,
		TransportScore:    r.TransportScore,
		Coordinates:       r.Coordinates,
	}
}

func insights(intent model.Intent, available bool, p model.Provenance) *model.AIInsights {
	return &model.AIInsights{
		UserIntent:           intent.UserIntent,
		LocationPreferences:  intent.LocationPreferences,
		BusinessRequirements: intent.BusinessRequirements,
		AIAvailable:          available,
		Provenance:           p,
	}
}
