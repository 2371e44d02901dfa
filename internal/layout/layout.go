// Package layout holds the naming rules of the mirror tree:
// <repository>/<tag>/<asset> plus one hash artifact per algorithm.
package layout

import (
	"path"
	"strings"

	"github.com/go-semantic-release/asset-mirror/internal/hasher"
)

const (
	TagPrefix        = "v"
	ManifestFileName = "packages.json"
	StateDir         = ".mirror"
	MetadataFileName = StateDir + "/repositories.json"
)

var reservedDirs = map[string]struct{}{
	".git":    {},
	".github": {},
	StateDir:  {},
}

var nonAssetFiles = map[string]struct{}{
	"readme":    {},
	"readme.md": {},
}

// IsReservedDir reports whether a top-level directory is excluded from the
// mirror (version control, state, hidden directories).
func IsReservedDir(name string) bool {
	if _, ok := reservedDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".")
}

func IsReleaseDir(name string) bool {
	return strings.HasPrefix(name, TagPrefix)
}

// IsQualifyingAsset reports whether a file in a release directory counts as
// an asset.
func IsQualifyingAsset(fileName string) bool {
	if _, ok := nonAssetFiles[strings.ToLower(fileName)]; ok {
		return false
	}
	if strings.HasPrefix(fileName, ".") {
		return false
	}
	return !hasher.IsArtifact(fileName)
}

// IsSafeSegment reports whether name can be used as a single path element.
func IsSafeSegment(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

func ReleaseDir(repository, tag string) string {
	return path.Join(repository, tag)
}

func AssetPath(repository, tag, asset string) string {
	return path.Join(repository, tag, asset)
}
