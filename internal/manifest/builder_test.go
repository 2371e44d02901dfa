package manifest

import (
	"io"
	"testing"
	"time"

	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/go-semantic-release/asset-mirror/pkg/manifest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T, files ...string) (*Builder, *store.Store) {
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, "/mirror/"+f, []byte(f), 0o644))
	}
	require.NoError(t, fs.MkdirAll("/mirror", 0o755))
	s := store.NewWithFs(fs, "/mirror")
	log := logrus.New()
	log.Out = io.Discard
	b := NewBuilder(s, logrus.NewEntry(log))
	b.now = func() time.Time {
		return time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*60*60))
	}
	return b, s
}

func TestBuildFromDisk(t *testing.T) {
	b, _ := newTestBuilder(t,
		"tool/v1.9.0/tool_linux",
		"tool/v1.9.0/tool_linux.sha256",
		"tool/v1.9.0/tool_linux.md5",
		"tool/v1.10.0/tool_linux",
		"tool/v1.10.0/tool_darwin",
		"tool/v2.0.0/tool_linux",
		"tool/v2.0.0/README.md",
		"tool/v3.0.0/README.md",
		"tool/v3.0.0/tool.sha512",
		"tool/latest/tool_linux",
		"archive/v0.1.0/archive.tgz",
		"empty/v1.0.0/.keep",
		".git/v1.0.0/objects",
		".mirror/v1.0.0/state",
		"packages.json",
	)
	m, err := b.Build(manifest.Metadata{
		"archive": {Archived: true},
		"unknown": {Archived: true},
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), m.LastUpdated)
	require.Equal(t, []string{"archive", "tool"}, m.RepositoryNames())
	require.True(t, m.Find("archive").Archived)
	require.False(t, m.Find("tool").Archived)
	require.Equal(t, []*manifest.Release{
		{Tag: "v2.0.0", AssetCount: 1},
		{Tag: "v1.10.0", AssetCount: 2},
		{Tag: "v1.9.0", AssetCount: 1},
	}, m.Find("tool").Releases)
	require.Equal(t, manifest.Stats{TotalRepositories: 2, TotalReleases: 4, TotalAssets: 5}, m.Stats)
}

func TestBuildReflectsOutOfBandDeletion(t *testing.T) {
	b, s := newTestBuilder(t, "tool/v1.0.0/tool", "tool/v1.1.0/tool")
	m, err := b.Build(nil)
	require.NoError(t, err)
	require.Equal(t, 2, m.Stats.TotalReleases)

	require.NoError(t, s.RemoveAll("tool/v1.1.0"))
	m, err = b.Build(nil)
	require.NoError(t, err)
	require.Equal(t, []*manifest.Release{{Tag: "v1.0.0", AssetCount: 1}}, m.Find("tool").Releases)

	require.NoError(t, s.Remove("tool/v1.0.0/tool"))
	m, err = b.Build(nil)
	require.NoError(t, err)
	require.Empty(t, m.Repositories)
	require.Equal(t, manifest.Stats{}, m.Stats)
}

func TestWriteAndLoad(t *testing.T) {
	b, s := newTestBuilder(t, "tool/v1.0.0/tool")
	m, err := b.Build(nil)
	require.NoError(t, err)
	require.NoError(t, b.Write(m))

	ok, err := s.Exists("packages.json")
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := b.Load()
	require.NoError(t, err)
	require.Equal(t, m.Stats, loaded.Stats)
	require.True(t, m.LastUpdated.Equal(loaded.LastUpdated))
}

func TestMetadataRoundTrip(t *testing.T) {
	_, s := newTestBuilder(t)
	meta, err := LoadMetadata(s)
	require.NoError(t, err)
	require.Empty(t, meta)

	require.NoError(t, SaveMetadata(s, manifest.Metadata{"tool": {Archived: true}}))
	meta, err = LoadMetadata(s)
	require.NoError(t, err)
	require.Equal(t, manifest.Metadata{"tool": {Archived: true}}, meta)
}
