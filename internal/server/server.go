package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"ragvault/config"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/store"
	"ragvault/internal/logging"
	"ragvault/internal/usecase"
)

// Deps are the components the HTTP surface exposes.
type Deps struct {
	Store    *store.VectorStore
	Gateway  *embedding.Gateway
	Pipeline *usecase.IngestPipeline
	Search   *usecase.SearchUseCase
	Backups  *usecase.BackupManager

	MaxUploadSize int64
	KeepDays      int
}

// Server serves uploads, search, question answering and backup management.
type Server struct {
	cfg        config.ServerConfig
	deps       Deps
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logging.OrDefault(logger),
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	RegisterDocumentRoutes(r, s.deps.Pipeline, s.deps.Search, s.deps.Store, s.deps.MaxUploadSize)
	RegisterQARoutes(r, s.deps.Search)
	RegisterBackupRoutes(r, s.deps.Backups, s.deps.KeepDays)

	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.cfg.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"model_available": s.deps.Gateway.Available(),
		"model":           s.deps.Gateway.ModelName(),
		"vectors":         s.deps.Store.Count(),
	})
}
