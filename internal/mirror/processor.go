package mirror

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/go-semantic-release/asset-mirror/internal/discovery"
	"github.com/go-semantic-release/asset-mirror/internal/hasher"
	"github.com/go-semantic-release/asset-mirror/internal/layout"
	"github.com/go-semantic-release/asset-mirror/internal/metrics"
	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/sirupsen/logrus"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// DefaultMaxAssetSize is the largest asset that is kept in the mirror (50 MiB).
const DefaultMaxAssetSize int64 = 50 * 1024 * 1024

type Outcome int

const (
	OutcomeNew Outcome = iota
	OutcomeExisting
	OutcomeSkipped
	OutcomeFailed
	OutcomeQuotaReached
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeExisting:
		return "existing"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeQuotaReached:
		return "quota_reached"
	}
	return "unknown"
}

// Qualifying reports whether the asset is present in the mirror after processing.
func (o Outcome) Qualifying() bool {
	return o == OutcomeNew || o == OutcomeExisting
}

type Downloader interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

type FileHasher interface {
	HashFile(path string) (map[string]string, error)
}

type Processor struct {
	store   *store.Store
	fetcher Downloader
	hasher  FileHasher
	maxSize int64
	log     *logrus.Entry
}

func NewProcessor(s *store.Store, f Downloader, h FileHasher, maxSize int64, log *logrus.Entry) *Processor {
	if maxSize <= 0 {
		maxSize = DefaultMaxAssetSize
	}
	return &Processor{
		store:   s,
		fetcher: f,
		hasher:  h,
		maxSize: maxSize,
		log:     log,
	}
}

func (p *Processor) Process(ctx context.Context, counters *Counters, repo, release string, asset discovery.Asset) Outcome {
	o := p.process(ctx, counters, repo, release, asset)
	mCtx, err := tag.New(ctx, tag.Upsert(metrics.TagOutcome, o.String()))
	if err == nil {
		stats.Record(mCtx, metrics.CounterAssets.M(1))
	}
	return o
}

func (p *Processor) process(ctx context.Context, counters *Counters, repo, release string, asset discovery.Asset) Outcome {
	log := p.log.WithFields(logrus.Fields{
		"repository": repo,
		"release":    release,
		"asset":      asset.Name,
	})
	if !layout.IsQualifyingAsset(asset.Name) {
		log.Debug("skipping asset with reserved name")
		return OutcomeSkipped
	}

	dest := layout.AssetPath(repo, release, asset.Name)
	size, exists, err := p.store.Size(dest)
	if err != nil {
		log.Errorf("failed to stat asset: %v", err)
		return OutcomeFailed
	}
	if exists && size > p.maxSize {
		log.Infof("evicting oversized asset (%d bytes)", size)
		if err := p.evict(dest); err != nil {
			log.Errorf("failed to evict asset: %v", err)
			return OutcomeFailed
		}
		exists = false
	}
	if asset.Size > p.maxSize {
		log.Infof("skipping oversized asset (%d bytes)", asset.Size)
		if exists {
			if err := p.evict(dest); err != nil {
				log.Errorf("failed to evict asset: %v", err)
				return OutcomeFailed
			}
		}
		return OutcomeSkipped
	}
	if exists {
		counters.AddExisting()
		return OutcomeExisting
	}
	if !counters.Reserve() {
		return OutcomeQuotaReached
	}

	if err := p.download(ctx, dest, asset); err != nil {
		counters.Cancel()
		log.Errorf("failed to mirror asset: %v", err)
		if rmErr := p.evict(dest); rmErr != nil {
			log.Warnf("failed to clean up asset: %v", rmErr)
		}
		return OutcomeFailed
	}
	counters.Commit()
	log.Info("mirrored asset")
	return OutcomeNew
}

func (p *Processor) download(ctx context.Context, dest string, asset discovery.Asset) error {
	if err := p.store.EnsureDir(path.Dir(dest)); err != nil {
		return err
	}
	n, err := p.fetcher.Fetch(ctx, asset.DownloadURL, dest)
	if err != nil {
		return err
	}
	if n > p.maxSize {
		return fmt.Errorf("downloaded %d bytes, more than the limit of %d", n, p.maxSize)
	}
	_, err = p.hasher.HashFile(dest)
	return err
}

// evict removes an asset and all of its hash artifacts.
func (p *Processor) evict(dest string) error {
	var errs []error
	for _, f := range append([]string{dest}, hasher.ArtifactPaths(dest)...) {
		if err := p.store.Remove(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
