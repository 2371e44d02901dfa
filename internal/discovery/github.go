package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v59/github"
	"github.com/sirupsen/logrus"
)

const (
	OwnerTypeOrg  = "org"
	OwnerTypeUser = "user"

	perPage = 100
)

type GitHub struct {
	client    *github.Client
	owner     string
	ownerType string
	log       *logrus.Logger
}

func NewGitHub(client *github.Client, owner, ownerType string, log *logrus.Logger) *GitHub {
	if ownerType == "" {
		ownerType = OwnerTypeOrg
	}
	return &GitHub{
		client:    client,
		owner:     owner,
		ownerType: strings.ToLower(ownerType),
		log:       log,
	}
}

func (g *GitHub) Owner() string {
	return g.owner
}

func (g *GitHub) listRepositoryPage(ctx context.Context, opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
	if g.ownerType == OwnerTypeUser {
		return g.client.Repositories.ListByUser(ctx, g.owner, &github.RepositoryListByUserOptions{
			Sort:        "full_name",
			ListOptions: opts,
		})
	}
	return g.client.Repositories.ListByOrg(ctx, g.owner, &github.RepositoryListByOrgOptions{
		Sort:        "full_name",
		ListOptions: opts,
	})
}

// ListRepositories returns every repository of the owner, following all pages.
func (g *GitHub) ListRepositories(ctx context.Context) ([]Repository, error) {
	ret := make([]Repository, 0)
	opts := github.ListOptions{Page: 1, PerPage: perPage}
	for {
		repos, resp, err := g.listRepositoryPage(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", g.owner, err)
		}
		for _, repo := range repos {
			r := Repository{
				Name:     repo.GetName(),
				Archived: repo.GetArchived(),
			}
			if err := r.Validate(); err != nil {
				g.log.Warnf("ignoring repository: %v", err)
				continue
			}
			ret = append(ret, r)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return ret, nil
}

// ListReleases returns the published releases of repo, following all pages.
// Drafts, prereleases and records that fail validation are dropped.
func (g *GitHub) ListReleases(ctx context.Context, repo string) ([]Release, error) {
	ret := make([]Release, 0)
	opts := &github.ListOptions{Page: 1, PerPage: perPage}
	for {
		releases, resp, err := g.client.Repositories.ListReleases(ctx, g.owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list releases of %s: %w", repo, err)
		}
		for _, release := range releases {
			r := g.toRelease(repo, release)
			if !r.Published() {
				continue
			}
			if err := r.Validate(); err != nil {
				g.log.WithField("repository", repo).Warnf("ignoring release: %v", err)
				continue
			}
			ret = append(ret, r)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return ret, nil
}

func (g *GitHub) toRelease(repo string, ghr *github.RepositoryRelease) Release {
	r := Release{
		TagName:    ghr.GetTagName(),
		Draft:      ghr.GetDraft(),
		Prerelease: ghr.GetPrerelease(),
		Assets:     make([]Asset, 0, len(ghr.Assets)),
	}
	for _, gha := range ghr.Assets {
		a := Asset{
			Name:        gha.GetName(),
			Size:        int64(gha.GetSize()),
			DownloadURL: gha.GetBrowserDownloadURL(),
		}
		if err := a.Validate(); err != nil {
			g.log.WithFields(logrus.Fields{
				"repository": repo,
				"release":    r.TagName,
			}).Warnf("ignoring asset: %v", err)
			continue
		}
		r.Assets = append(r.Assets, a)
	}
	return r
}
