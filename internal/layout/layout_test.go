package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsQualifyingAsset(t *testing.T) {
	testCases := []struct {
		name     string
		expected bool
	}{
		{"tool_linux_amd64", true},
		{"tool_windows_amd64.exe", true},
		{"tool_linux_amd64.sha256", false},
		{"tool_linux_amd64.sha512", false},
		{"tool_linux_amd64.md5", false},
		{"README.md", false},
		{"readme", false},
		{".tool.tmp-123", false},
		{"checksums.txt", true},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, IsQualifyingAsset(tc.name), tc.name)
	}
}

func TestIsReservedDir(t *testing.T) {
	require.True(t, IsReservedDir(".git"))
	require.True(t, IsReservedDir(".mirror"))
	require.True(t, IsReservedDir(".cache"))
	require.False(t, IsReservedDir("provider-github"))
}

func TestIsReleaseDir(t *testing.T) {
	require.True(t, IsReleaseDir("v1.2.3"))
	require.False(t, IsReleaseDir("latest"))
	require.False(t, IsReleaseDir("1.2.3"))
}

func TestIsSafeSegment(t *testing.T) {
	require.True(t, IsSafeSegment("v1.0.0"))
	require.False(t, IsSafeSegment(""))
	require.False(t, IsSafeSegment(".."))
	require.False(t, IsSafeSegment("release/v1"))
	require.False(t, IsSafeSegment(`a\b`))
}

func TestAssetPath(t *testing.T) {
	require.Equal(t, "repo/v1.0.0/tool", AssetPath("repo", "v1.0.0", "tool"))
	require.Equal(t, "repo/v1.0.0", ReleaseDir("repo", "v1.0.0"))
}
