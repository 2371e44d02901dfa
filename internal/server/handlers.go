package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-semantic-release/asset-mirror/internal/manifest"
	manifestTypes "github.com/go-semantic-release/asset-mirror/pkg/manifest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var errManifestNotFound = errors.New("manifest not found, no sync has completed yet")

func (s *Server) loadManifest(ctx context.Context) (*manifestTypes.Manifest, error) {
	key := s.getCacheKeyWithPrefix(cacheKeyPrefixManifest, "current")
	if cached, ok := s.getFromCache(ctx, key); ok {
		return cached.(*manifestTypes.Manifest), nil
	}
	m, err := manifest.NewBuilder(s.store, logrus.NewEntry(s.log)).Load()
	if errors.Is(err, os.ErrNotExist) {
		return nil, errManifestNotFound
	}
	if err != nil {
		return nil, err
	}
	s.setInCache(ctx, key, m)
	return m, nil
}

func (s *Server) writeManifestError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errManifestNotFound) {
		s.writeJSONError(w, r, http.StatusNotFound, err)
		return
	}
	s.writeJSONError(w, r, http.StatusInternalServerError, err, "could not load manifest")
}

func (s *Server) getManifest(w http.ResponseWriter, r *http.Request) {
	m, err := s.loadManifest(r.Context())
	if err != nil {
		s.writeManifestError(w, r, err)
		return
	}
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), m)
	s.writeJSON(w, m)
}

func (s *Server) listRepositories(w http.ResponseWriter, r *http.Request) {
	m, err := s.loadManifest(r.Context())
	if err != nil {
		s.writeManifestError(w, r, err)
		return
	}
	res := m.RepositoryNames()
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), res)
	s.writeJSON(w, res)
}

func (s *Server) getRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "repository")
	m, err := s.loadManifest(r.Context())
	if err != nil {
		s.writeManifestError(w, r, err)
		return
	}
	repo := m.Find(name)
	if repo == nil {
		s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("repository %s not found", name))
		return
	}
	s.setInCache(r.Context(), s.getCacheKeyFromRequest(r), repo)
	s.writeJSON(w, repo)
}

func (s *Server) fileHandler() http.Handler {
	fs := afero.NewReadOnlyFs(afero.NewBasePathFs(s.store.Fs(), s.store.Root()))
	return http.FileServer(afero.NewHttpFs(fs).Dir("/"))
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if !s.syncSemaphore.TryAcquire(1) {
		s.writeJSONError(w, r, http.StatusTooManyRequests, fmt.Errorf("a sync is already running"))
		return
	}
	defer s.syncSemaphore.Release(1)

	s.requestLogger(r).Warn("starting sync...")
	report, err := s.syncer.Sync(r.Context())
	// the tree may have changed even if the run failed
	s.invalidateByPrefix(cacheKeyPrefixRequest)
	s.invalidateByPrefix(cacheKeyPrefixManifest)
	if err != nil {
		s.writeJSONError(w, r, http.StatusInternalServerError, err, "sync failed")
		return
	}
	s.writeJSON(w, report)
}
