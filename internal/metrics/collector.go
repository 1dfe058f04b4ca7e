package metrics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/model"
)

// AreaStats is a point-in-time view of the reference data in the store.
type AreaStats struct {
	Total          int       `json:"total"`
	WithMetrics    int       `json:"with_metrics"`
	MissingMetrics int       `json:"missing_metrics"`
	LatestUpdate   time.Time `json:"latest_update,omitempty"`
	CollectedAt    time.Time `json:"collected_at"`
}

// AreaLister abstracts the store method needed by the collector.
type AreaLister interface {
	ListAreas(ctx context.Context) ([]model.AreaWithMetric, error)
}

// Collector samples area statistics from the store.
type Collector struct {
	store   AreaLister
	metrics *Metrics
}

// NewCollector creates a collector. m may be nil.
func NewCollector(st AreaLister, m *Metrics) *Collector {
	return &Collector{store: st, metrics: m}
}

// Collect gathers a snapshot and publishes it to the gauges.
func (c *Collector) Collect(ctx context.Context) (*AreaStats, error) {
	areas, err := c.store.ListAreas(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "metrics: list areas")
	}

	snap := &AreaStats{
		Total:       len(areas),
		CollectedAt: time.Now().UTC(),
	}
	for _, a := range areas {
		if a.Metric == nil {
			snap.MissingMetrics++
			continue
		}
		snap.WithMetrics++
		if a.Metric.UpdatedAt.After(snap.LatestUpdate) {
			snap.LatestUpdate = a.Metric.UpdatedAt
		}
	}

	c.metrics.SetAreaStats(*snap)
	return snap, nil
}

// Run collects on every tick until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	log := zap.L().With(zap.String("component", "metrics.collector"))
	log.Info("starting area collector", zap.Duration("interval", interval))

	c.collect(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("area collector stopped")
			return
		case <-ticker.C:
			c.collect(ctx, log)
		}
	}
}

func (c *Collector) collect(ctx context.Context, log *zap.Logger) {
	snap, err := c.Collect(ctx)
	if err != nil {
		log.Error("metrics: failed to collect area stats", zap.Error(err))
		return
	}
	if snap.MissingMetrics > 0 {
		log.Warn("metrics: areas without metric rows",
			zap.Int("missing", snap.MissingMetrics),
			zap.Int("total", snap.Total),
		)
	}
}
