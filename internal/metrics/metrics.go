package metrics

import (
	"fmt"
	"sync"

	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/go-semantic-release/asset-mirror/internal/config"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	CounterAssets    = stats.Int64("mirror_assets", "Number of processed release assets", "1")
	CounterSyncRuns  = stats.Int64("mirror_sync_runs", "Number of pipeline runs", "1")
	CounterPublished = stats.Int64("mirror_published_objects", "Number of objects uploaded to the bucket", "1")
	CounterCacheHit  = stats.Int64("cache_hits", "Number of cache hits", "1")
	CounterCacheMiss = stats.Int64("cache_misses", "Number of cache misses", "1")

	TagOutcome    = tag.MustNewKey("outcome")
	TagSyncStatus = tag.MustNewKey("status")
	TagCacheKey   = tag.MustNewKey("cache_key")
)

var (
	registerViewsOnce sync.Once
	registerViewsErr  error
)

var views = []*view.View{
	{
		Name:        "mirror_assets",
		Measure:     CounterAssets,
		Description: "Number of processed release assets",
		TagKeys:     []tag.Key{TagOutcome},
		Aggregation: view.Count(),
	},
	{
		Name:        "mirror_sync_runs",
		Measure:     CounterSyncRuns,
		Description: "Number of pipeline runs",
		TagKeys:     []tag.Key{TagSyncStatus},
		Aggregation: view.Count(),
	},
	{
		Name:        "mirror_published_objects",
		Measure:     CounterPublished,
		Description: "Number of objects uploaded to the bucket",
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_hits",
		Measure:     CounterCacheHit,
		Description: "Number of cache hits",
		Aggregation: view.Count(),
	},
	{
		Name:        "cache_misses",
		Measure:     CounterCacheMiss,
		Description: "Number of cache misses",
		Aggregation: view.Count(),
	},
}

func RegisterViews() error {
	registerViewsOnce.Do(func() {
		registerViewsErr = view.Register(views...)
	})
	return registerViewsErr
}

func NewExporter(cfg *config.ServerConfig) (*stackdriver.Exporter, error) {
	err := RegisterViews()
	if err != nil {
		return nil, err
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:    cfg.ProjectID,
		MetricPrefix: fmt.Sprintf("asset-mirror/%s", cfg.Stage),
	})
	if err != nil {
		return nil, err
	}
	err = exporter.StartMetricsExporter()
	if err != nil {
		return nil, err
	}
	return exporter, nil
}
