// Package server is the composition root: it builds every client, service
// and handler from the configuration, mounts the routes and runs the HTTP
// server with graceful shutdown.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → sqlite.DB (catalog, collection and user repositories)
//	  → metadata.Client, metadata.RatingsClient, completion.Client
//	  → CatalogService → CollectionService → RecommendationService
//	  → AuthService (TokenService, PasswordService, GitHubProvider)
//	  → handlers → chi router
//
// Each layer only receives the interfaces it needs. Handlers never touch
// the database; services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/movie-tracker/internal/auth"
	"github.com/sakif/movie-tracker/internal/completion"
	"github.com/sakif/movie-tracker/internal/config"
	"github.com/sakif/movie-tracker/internal/handler"
	"github.com/sakif/movie-tracker/internal/metadata"
	"github.com/sakif/movie-tracker/internal/middleware"
	sqliteRepo "github.com/sakif/movie-tracker/internal/repository/sqlite"
	"github.com/sakif/movie-tracker/internal/service"
)

var (
	_ service.MovieProvider   = (*metadata.Client)(nil)
	_ service.RatingsProvider = (*metadata.RatingsClient)(nil)
)

// Server owns the router and the database connection.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and wires the application.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Database.Path != ":memory:" {
		dir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	if cfg.TMDB.APIKey == "" {
		s.logger.Warn("TMDB_API_KEY not set: every provider call will fail")
	}
	provider := metadata.NewClient(metadata.Config{
		APIKey:                  cfg.TMDB.APIKey,
		BaseURL:                 cfg.TMDB.BaseURL,
		Language:                cfg.TMDB.Language,
		Timeout:                 cfg.TMDB.Timeout,
		RequestsPerSecond:       cfg.TMDB.RequestsPerSecond,
		Burst:                   cfg.TMDB.Burst,
		MaxRetries:              cfg.TMDB.MaxRetries,
		RetryDelay:              cfg.TMDB.RetryDelay,
		BreakerFailureThreshold: cfg.TMDB.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.TMDB.BreakerOpenTimeout,
	}, s.logger)
	ratings := metadata.NewRatingsClient(metadata.RatingsConfig{
		APIKey:  cfg.OMDB.APIKey,
		BaseURL: cfg.OMDB.BaseURL,
		Timeout: cfg.OMDB.Timeout,
	}, s.logger)
	completer := completion.NewClient(completion.Config{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	}, s.logger)

	var github *auth.GitHubProvider
	if cfg.Auth.GitHubClientID != "" {
		callback := cfg.Auth.GitHubCallbackURL
		if callback == "" {
			callback = fmt.Sprintf("http://localhost:%d/api/auth/github/callback", cfg.Server.Port)
		}
		github = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, callback)
	}

	// === SERVICES ===
	catalog := service.NewCatalogService(s.db, provider, ratings, cfg.Catalog.RefreshAfter, s.logger)
	collection := service.NewCollectionService(s.db, s.db, catalog, s.logger)
	recommender := service.NewRecommendationService(collection, completer, catalog, s.logger)
	accounts := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)

	// === MIDDLEWARE ===
	// Order: request id first so every later log line carries it; the
	// recoverer sits inside the logger so a panic is logged as a 500.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	s.router.Get("/healthz", handler.Health(s.db))
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow))
		handler.Register(r, handler.Handlers{
			Movies:     handler.NewMovieHandler(catalog, collection, s.logger),
			Collection: handler.NewCollectionHandler(collection, recommender, s.logger),
			Auth:       handler.NewAuthHandler(accounts, github, s.logger),
			Tokens:     tokens,
		})
	})

	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to the configured shutdown timeout and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  2 * s.config.Server.WriteTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("database", s.config.Database.Path),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
