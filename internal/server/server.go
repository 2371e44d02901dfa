package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-semantic-release/asset-mirror/internal/config"
	"github.com/go-semantic-release/asset-mirror/internal/pipeline"
	"github.com/go-semantic-release/asset-mirror/internal/store"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type Syncer interface {
	Sync(ctx context.Context) (*pipeline.Report, error)
}

type Server struct {
	router        chi.Router
	log           *logrus.Logger
	syncer        Syncer
	syncSemaphore *semaphore.Weighted
	store         *store.Store
	config        *config.ServerConfig
	cache         *cache.Cache
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONError(w, r, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
}

func (s *Server) indexHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{
		"service": "go-semantic-release asset mirror",
		"owner":   s.config.Owner,
		"stage":   s.config.Stage,
		"version": s.config.Version,
	})
}

func New(log *logrus.Logger, syncer Syncer, s *store.Store, serverCfg *config.ServerConfig) *Server {
	router := chi.NewRouter()
	server := &Server{
		router:        router,
		log:           log,
		syncer:        syncer,
		syncSemaphore: semaphore.NewWeighted(1),
		store:         s,
		config:        serverCfg,
		cache:         cache.New(5*time.Minute, 10*time.Minute),
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(server.logMiddleware)
	router.Use(server.recoverMiddleware)

	router.NotFound(server.notFoundHandler)
	router.MethodNotAllowed(server.methodNotAllowedHandler)

	router.Get("/", server.indexHandler)
	router.With(server.cacheMiddleware).Get("/packages.json", server.getManifest)
	router.With(server.hiddenFilesMiddleware).Handle("/files/*", http.StripPrefix("/files", server.fileHandler()))

	router.Route("/api/v1", func(r chi.Router) {
		r.With(server.cacheMiddleware).Group(func(r chi.Router) {
			r.Get("/repositories", server.listRepositories)
			r.Get("/repositories/{repository}", server.getRepository)
		})

		r.With(server.authMiddleware).Put("/sync", server.triggerSync)
	})

	return server
}
