// Package pipeline runs the stages of a mirror run in order: mirror, persist
// metadata, clean, build the manifest and publish.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-semantic-release/asset-mirror/internal/cleaner"
	"github.com/go-semantic-release/asset-mirror/internal/config"
	"github.com/go-semantic-release/asset-mirror/internal/discovery"
	"github.com/go-semantic-release/asset-mirror/internal/fetcher"
	"github.com/go-semantic-release/asset-mirror/internal/hasher"
	"github.com/go-semantic-release/asset-mirror/internal/manifest"
	"github.com/go-semantic-release/asset-mirror/internal/metrics"
	"github.com/go-semantic-release/asset-mirror/internal/mirror"
	"github.com/go-semantic-release/asset-mirror/internal/publish"
	"github.com/go-semantic-release/asset-mirror/internal/store"
	manifestTypes "github.com/go-semantic-release/asset-mirror/pkg/manifest"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

type Publisher interface {
	Publish(ctx context.Context) (publish.Report, error)
}

type Report struct {
	RunID              string              `json:"runId"`
	StartedAt          time.Time           `json:"startedAt"`
	Duration           string              `json:"duration"`
	Stats              mirror.Stats        `json:"stats"`
	FailedRepositories []string            `json:"failedRepositories,omitempty"`
	Removed            []string            `json:"removed"`
	Manifest           manifestTypes.Stats `json:"manifest"`
	Published          *publish.Report     `json:"published,omitempty"`
}

type Pipeline struct {
	store        *store.Store
	discovery    mirror.Discovery
	downloader   mirror.Downloader
	hasher       mirror.FileHasher
	publisher    Publisher
	walkOpts     mirror.Options
	maxAssetSize int64
	log          *logrus.Logger
}

type Option func(p *Pipeline)

func WithWalkOptions(opts mirror.Options) Option {
	return func(p *Pipeline) {
		p.walkOpts = opts
	}
}

func WithMaxAssetSize(size int64) Option {
	return func(p *Pipeline) {
		p.maxAssetSize = size
	}
}

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

func New(s *store.Store, d mirror.Discovery, dl mirror.Downloader, h mirror.FileHasher, log *logrus.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        s,
		discovery:    d,
		downloader:   dl,
		hasher:       h,
		maxAssetSize: mirror.DefaultMaxAssetSize,
		log:          log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig wires the GitHub discovery, the retrying fetcher, the hasher
// and, if a bucket is configured, the publisher.
func NewFromConfig(ctx context.Context, cfg *config.MirrorConfig, log *logrus.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	algs, err := cfg.Algorithms()
	if err != nil {
		return nil, err
	}
	s := store.New(cfg.Root)
	f := fetcher.New(s,
		fetcher.WithToken(cfg.GitHubToken),
		fetcher.WithMaxAttempts(cfg.MaxAttempts),
		fetcher.WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithLogger(log),
	)
	d := discovery.NewGitHub(cfg.CreateGitHubClient(), cfg.Owner, cfg.OwnerType, log)

	opts := []Option{
		WithWalkOptions(mirror.Options{
			ReleaseCap:   cfg.ReleaseCap(),
			MaxNewAssets: cfg.MaxNewAssets,
			Workers:      cfg.Workers,
		}),
		WithMaxAssetSize(cfg.MaxAssetSize),
	}
	if cfg.PublishEnabled() {
		s3Client, err := cfg.CreateS3Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		opts = append(opts, WithPublisher(publish.New(s3Client, cfg.PublishBucket, cfg.PublishPrefix, s, logrus.NewEntry(log))))
	}
	return New(s, d, f, hasher.New(s, algs...), log, opts...), nil
}

func (p *Pipeline) Store() *store.Store {
	return p.store
}

func recordRun(ctx context.Context, status string) {
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(metrics.TagSyncStatus, status)}, metrics.CounterSyncRuns.M(1))
}

// Sync mirrors new assets and regenerates the manifest. Errors of the
// publish stage are returned together with a complete report.
func (p *Pipeline) Sync(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := p.log.WithField("run_id", report.RunID)
	log.Info("starting mirror run")

	if err := p.sync(ctx, log, report); err != nil {
		recordRun(ctx, statusFailure)
		log.Errorf("mirror run failed: %v", err)
		return report, err
	}
	recordRun(ctx, statusSuccess)
	log.Infof("mirror run finished in %s: %d new assets, %d assets, %d releases",
		report.Duration, report.Stats.NewAssets, report.Stats.Assets, report.Stats.Releases)
	return report, nil
}

func (p *Pipeline) sync(ctx context.Context, log *logrus.Entry, report *Report) error {
	defer func() {
		report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String()
	}()

	processor := mirror.NewProcessor(p.store, p.downloader, p.hasher, p.maxAssetSize, log)
	res, err := mirror.NewWalker(p.discovery, processor, p.walkOpts, log).Run(ctx)
	if res != nil {
		report.Stats = res.Stats
		report.FailedRepositories = res.FailedRepositories
	}
	if err != nil {
		return err
	}
	if err := manifest.SaveMetadata(p.store, res.Metadata); err != nil {
		return fmt.Errorf("failed to save repository metadata: %w", err)
	}
	if err := p.regenerate(log, res.Metadata, report); err != nil {
		return err
	}
	return p.publish(ctx, report)
}

// Regenerate cleans the tree and rebuilds the manifest from disk and the
// persisted repository metadata without contacting GitHub.
func (p *Pipeline) Regenerate(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := p.log.WithField("run_id", report.RunID)
	meta, err := manifest.LoadMetadata(p.store)
	if err != nil {
		return report, err
	}
	err = p.regenerate(log, meta, report)
	report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String()
	if err != nil {
		return report, err
	}
	return report, p.publish(ctx, report)
}

// Clean removes stale directories only.
func (p *Pipeline) Clean() ([]string, error) {
	return cleaner.New(p.store, logrus.NewEntry(p.log)).Clean()
}

func (p *Pipeline) regenerate(log *logrus.Entry, meta manifestTypes.Metadata, report *Report) error {
	removed, err := cleaner.New(p.store, log).Clean()
	if err != nil {
		return err
	}
	report.Removed = removed

	builder := manifest.NewBuilder(p.store, log)
	m, err := builder.Build(meta)
	if err != nil {
		return err
	}
	if err := builder.Write(m); err != nil {
		return err
	}
	report.Manifest = m.Stats
	return nil
}

func (p *Pipeline) publish(ctx context.Context, report *Report) error {
	if p.publisher == nil {
		return nil
	}
	pr, err := p.publisher.Publish(ctx)
	report.Published = &pr
	if err != nil {
		return fmt.Errorf("failed to publish mirror: %w", err)
	}
	return nil
}
