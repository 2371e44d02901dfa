// Package manifest derives packages.json from the mirror tree on disk.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-semantic-release/asset-mirror/internal/layout"
	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/go-semantic-release/asset-mirror/internal/version"
	"github.com/go-semantic-release/asset-mirror/pkg/manifest"
	"github.com/sirupsen/logrus"
)

type Builder struct {
	store *store.Store
	log   *logrus.Entry
	now   func() time.Time
}

func NewBuilder(s *store.Store, log *logrus.Entry) *Builder {
	return &Builder{
		store: s,
		log:   log,
		now:   time.Now,
	}
}

// Scan lists the repositories and releases that hold at least one qualifying
// asset. Archived flags are left unset.
func (b *Builder) Scan() ([]*manifest.Repository, error) {
	dirs, err := b.store.ListDirs("")
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror root: %w", err)
	}
	repos := make([]*manifest.Repository, 0, len(dirs))
	for _, name := range dirs {
		if layout.IsReservedDir(name) {
			continue
		}
		releases, err := b.scanRepository(name)
		if err != nil {
			b.log.WithField("repository", name).Warnf("skipping unreadable repository: %v", err)
			continue
		}
		if len(releases) == 0 {
			continue
		}
		repos = append(repos, &manifest.Repository{Name: name, Releases: releases})
	}
	return repos, nil
}

func (b *Builder) scanRepository(name string) ([]*manifest.Release, error) {
	tags, err := b.store.ListDirs(name)
	if err != nil {
		return nil, err
	}
	releases := make([]*manifest.Release, 0, len(tags))
	for _, tag := range tags {
		if !layout.IsReleaseDir(tag) {
			continue
		}
		files, err := b.store.ListFiles(layout.ReleaseDir(name, tag))
		if err != nil {
			return nil, err
		}
		n := 0
		for _, f := range files {
			if layout.IsQualifyingAsset(f.Name()) {
				n++
			}
		}
		if n > 0 {
			releases = append(releases, &manifest.Release{Tag: tag, AssetCount: n})
		}
	}
	sort.SliceStable(releases, func(i, j int) bool {
		return version.Compare(releases[i].Tag, releases[j].Tag) > 0
	})
	return releases, nil
}

// Overlay sets the archived flag of every repository found in meta.
func Overlay(repos []*manifest.Repository, meta manifest.Metadata) {
	for _, r := range repos {
		r.Archived = meta[r.Name].Archived
	}
}

func (b *Builder) Build(meta manifest.Metadata) (*manifest.Manifest, error) {
	repos, err := b.Scan()
	if err != nil {
		return nil, err
	}
	Overlay(repos, meta)
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].Name < repos[j].Name
	})
	m := &manifest.Manifest{
		LastUpdated:  b.now().UTC(),
		Repositories: repos,
	}
	m.CalculateStats()
	return m, nil
}

func (b *Builder) Write(m *manifest.Manifest) error {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := b.store.WriteFileAtomic(layout.ManifestFileName, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", layout.ManifestFileName, err)
	}
	b.log.Infof("wrote %s (%d repositories, %d releases, %d assets)", layout.ManifestFileName,
		m.Stats.TotalRepositories, m.Stats.TotalReleases, m.Stats.TotalAssets)
	return nil
}

func (b *Builder) Load() (*manifest.Manifest, error) {
	f, err := b.store.Open(layout.ManifestFileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return manifest.Decode(f)
}

// LoadMetadata reads the persisted repository metadata. A missing file yields
// empty metadata.
func LoadMetadata(s *store.Store) (manifest.Metadata, error) {
	data, err := s.ReadFile(layout.MetadataFileName)
	if errors.Is(err, os.ErrNotExist) {
		return manifest.Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read repository metadata: %w", err)
	}
	meta := manifest.Metadata{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode repository metadata: %w", err)
	}
	return meta, nil
}

func SaveMetadata(s *store.Store, meta manifest.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := s.EnsureDir(layout.StateDir); err != nil {
		return err
	}
	return s.WriteFileAtomic(layout.MetadataFileName, data)
}
