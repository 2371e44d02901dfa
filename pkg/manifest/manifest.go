// Package manifest defines packages.json, the document that describes the
// content of a mirror. Field names are consumed by the static mirror page and
// must stay stable.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type Manifest struct {
	LastUpdated  time.Time     `json:"lastUpdated"`
	Repositories []*Repository `json:"repositories"`
	Stats        Stats         `json:"stats"`
}

type Repository struct {
	Name     string     `json:"name"`
	Archived bool       `json:"archived"`
	Releases []*Release `json:"releases"`
}

type Release struct {
	Tag        string `json:"tag"`
	AssetCount int    `json:"assetCount"`
}

type Stats struct {
	TotalRepositories int `json:"totalRepositories"`
	TotalReleases     int `json:"totalReleases"`
	TotalAssets       int `json:"totalAssets"`
}

// Metadata holds repository attributes that cannot be derived from the tree,
// keyed by repository name.
type Metadata map[string]RepositoryMetadata

type RepositoryMetadata struct {
	Archived bool `json:"archived"`
}

func (m *Manifest) CalculateStats() {
	s := Stats{TotalRepositories: len(m.Repositories)}
	for _, r := range m.Repositories {
		s.TotalReleases += len(r.Releases)
		for _, rel := range r.Releases {
			s.TotalAssets += rel.AssetCount
		}
	}
	m.Stats = s
}

func (m *Manifest) Find(name string) *Repository {
	for _, r := range m.Repositories {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (m *Manifest) RepositoryNames() []string {
	names := make([]string, len(m.Repositories))
	for i, r := range m.Repositories {
		names[i] = r.Name
	}
	return names
}

func (r *Repository) AssetCount() int {
	n := 0
	for _, rel := range r.Releases {
		n += rel.AssetCount
	}
	return n
}

func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
