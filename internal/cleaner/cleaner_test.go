package cleaner

import (
	"io"
	"testing"

	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, f := range []string{
		"tool/v1.2.3/tool",
		"tool/latest/tool",
		"tool/latest/nested/tool",
		"tool/README.md",
		"other/stable/x",
		"other/v0.1.0/x",
		".git/refs/heads",
		".mirror/cache/x",
	} {
		require.NoError(t, afero.WriteFile(fs, "/mirror/"+f, []byte("x"), 0o644))
	}
	log := logrus.New()
	log.Out = io.Discard
	s := store.NewWithFs(fs, "/mirror")

	removed, err := New(s, logrus.NewEntry(log)).Clean()
	require.NoError(t, err)
	require.Equal(t, []string{"other/stable", "tool/latest"}, removed)

	for path, exists := range map[string]bool{
		"tool/v1.2.3/tool": true,
		"tool/README.md":   true,
		"other/v0.1.0/x":   true,
		".git/refs/heads":  true,
		".mirror/cache/x":  true,
		"tool/latest":      false,
		"other/stable":     false,
	} {
		ok, err := s.Exists(path)
		require.NoError(t, err)
		require.Equal(t, exists, ok, path)
	}
}

func TestCleanMissingRoot(t *testing.T) {
	log := logrus.New()
	log.Out = io.Discard
	_, err := New(store.NewWithFs(afero.NewMemMapFs(), "/missing"), logrus.NewEntry(log)).Clean()
	require.Error(t, err)
}
