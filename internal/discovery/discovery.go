package discovery

import (
	"errors"
	"fmt"

	"github.com/go-semantic-release/asset-mirror/internal/layout"
)

var ErrInvalidRecord = errors.New("invalid record")

type Repository struct {
	Name     string
	Archived bool
}

type Release struct {
	TagName    string
	Draft      bool
	Prerelease bool
	Assets     []Asset
}

type Asset struct {
	Name        string
	Size        int64
	DownloadURL string
}

func (r *Repository) Validate() error {
	if !layout.IsSafeSegment(r.Name) {
		return fmt.Errorf("%w: repository name %q", ErrInvalidRecord, r.Name)
	}
	return nil
}

func (r *Release) Validate() error {
	if !layout.IsSafeSegment(r.TagName) {
		return fmt.Errorf("%w: release tag %q", ErrInvalidRecord, r.TagName)
	}
	return nil
}

func (a *Asset) Validate() error {
	switch {
	case !layout.IsSafeSegment(a.Name):
		return fmt.Errorf("%w: asset name %q", ErrInvalidRecord, a.Name)
	case a.DownloadURL == "":
		return fmt.Errorf("%w: asset %s has no download url", ErrInvalidRecord, a.Name)
	case a.Size < 0:
		return fmt.Errorf("%w: asset %s has negative size", ErrInvalidRecord, a.Name)
	}
	return nil
}

// Published reports whether the release is generally available.
func (r *Release) Published() bool {
	return !r.Draft && !r.Prerelease
}
