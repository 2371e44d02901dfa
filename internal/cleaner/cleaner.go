// Package cleaner removes directories that do not follow the release tag
// naming convention, such as leftovers of a former "latest" alias.
package cleaner

import (
	"fmt"

	"github.com/go-semantic-release/asset-mirror/internal/layout"
	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/sirupsen/logrus"
)

type Cleaner struct {
	store *store.Store
	log   *logrus.Entry
}

func New(s *store.Store, log *logrus.Entry) *Cleaner {
	return &Cleaner{store: s, log: log}
}

// Clean removes every subdirectory of a repository directory whose name does
// not start with the tag prefix and returns the removed paths.
func (c *Cleaner) Clean() ([]string, error) {
	repos, err := c.store.ListDirs("")
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror root: %w", err)
	}
	removed := make([]string, 0)
	for _, repo := range repos {
		if layout.IsReservedDir(repo) {
			continue
		}
		log := c.log.WithField("repository", repo)
		dirs, err := c.store.ListDirs(repo)
		if err != nil {
			log.Warnf("skipping unreadable repository: %v", err)
			continue
		}
		for _, dir := range dirs {
			if layout.IsReleaseDir(dir) {
				continue
			}
			p := layout.ReleaseDir(repo, dir)
			if err := c.store.RemoveAll(p); err != nil {
				log.Warnf("failed to remove %s: %v", p, err)
				continue
			}
			log.Infof("removed stale directory %s", p)
			removed = append(removed, p)
		}
	}
	return removed, nil
}
