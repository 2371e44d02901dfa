package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/go-semantic-release/asset-mirror/internal/discovery"
	"github.com/go-semantic-release/asset-mirror/internal/layout"
	"github.com/go-semantic-release/asset-mirror/internal/version"
	"github.com/go-semantic-release/asset-mirror/pkg/manifest"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Discovery interface {
	ListRepositories(ctx context.Context) ([]discovery.Repository, error)
	ListReleases(ctx context.Context, repo string) ([]discovery.Release, error)
}

type Options struct {
	// ReleaseCap limits the number of releases per repository that yield
	// assets. Zero disables the limit.
	ReleaseCap int
	// MaxNewAssets limits the number of downloads per run. Zero disables the limit.
	MaxNewAssets int
	// Workers is the number of assets of one release processed concurrently.
	Workers int
}

type Result struct {
	Repositories       []*manifest.Repository
	Metadata           manifest.Metadata
	Stats              Stats
	FailedRepositories []string
}

type Walker struct {
	discovery Discovery
	processor *Processor
	opts      Options
	log       *logrus.Entry
}

func NewWalker(d Discovery, p *Processor, opts Options, log *logrus.Entry) *Walker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Walker{
		discovery: d,
		processor: p,
		opts:      opts,
		log:       log,
	}
}

// Run walks every repository of the owner and mirrors the assets of its
// releases. Only a failure to enumerate repositories or a cancelled context
// aborts the run.
func (w *Walker) Run(ctx context.Context) (*Result, error) {
	counters := NewCounters(w.opts.MaxNewAssets)
	repos, err := w.discovery.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	w.log.Infof("found %d repositories", len(repos))

	res := &Result{
		Repositories: make([]*manifest.Repository, 0),
		Metadata:     make(manifest.Metadata, len(repos)),
	}
	for _, r := range repos {
		res.Metadata[r.Name] = manifest.RepositoryMetadata{Archived: r.Archived}
	}

	for _, r := range repos {
		if err := ctx.Err(); err != nil {
			res.Stats = counters.Snapshot()
			return res, fmt.Errorf("mirror run aborted: %w", err)
		}
		if counters.QuotaReached() {
			w.log.Infof("new asset quota of %d reached", w.opts.MaxNewAssets)
			break
		}
		mr, err := w.walkRepository(ctx, counters, r)
		if err != nil {
			w.log.WithField("repository", r.Name).Errorf("skipping repository: %v", err)
			res.FailedRepositories = append(res.FailedRepositories, r.Name)
			continue
		}
		if len(mr.Releases) > 0 {
			res.Repositories = append(res.Repositories, mr)
		}
	}
	res.Stats = counters.Snapshot()
	return res, nil
}

func (w *Walker) walkRepository(ctx context.Context, counters *Counters, repo discovery.Repository) (*manifest.Repository, error) {
	releases, err := w.discovery.ListReleases(ctx, repo.Name)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(releases, func(i, j int) bool {
		return version.Compare(releases[i].TagName, releases[j].TagName) > 0
	})

	ret := &manifest.Repository{
		Name:     repo.Name,
		Archived: repo.Archived,
		Releases: make([]*manifest.Release, 0),
	}
	for _, release := range releases {
		// the cleaner removes directories without the version prefix
		if !layout.IsReleaseDir(release.TagName) {
			w.log.WithFields(logrus.Fields{
				"repository": repo.Name,
				"release":    release.TagName,
			}).Debug("skipping release without version tag prefix")
			continue
		}
		if w.opts.ReleaseCap > 0 && len(ret.Releases) >= w.opts.ReleaseCap {
			break
		}
		if counters.QuotaReached() {
			break
		}
		n := w.walkRelease(ctx, counters, repo.Name, release)
		if n == 0 {
			continue
		}
		counters.AddRelease()
		ret.Releases = append(ret.Releases, &manifest.Release{Tag: release.TagName, AssetCount: n})
	}
	return ret, nil
}

// walkRelease processes the assets of a release and returns the number of
// assets present in the mirror afterwards.
func (w *Walker) walkRelease(ctx context.Context, counters *Counters, repo string, release discovery.Release) int {
	if w.opts.Workers == 1 {
		n := 0
		for _, asset := range release.Assets {
			if counters.QuotaReached() {
				break
			}
			o := w.processor.Process(ctx, counters, repo, release.TagName, asset)
			if o == OutcomeQuotaReached {
				break
			}
			if o.Qualifying() {
				n++
			}
		}
		return n
	}

	var n atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(w.opts.Workers)
	for _, asset := range release.Assets {
		if counters.QuotaReached() {
			break
		}
		asset := asset
		g.Go(func() error {
			if w.processor.Process(ctx, counters, repo, release.TagName, asset).Qualifying() {
				n.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(n.Load())
}
