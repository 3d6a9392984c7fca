// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer. It decides:
//   - which store backs the repositories (SQLite or MongoDB)
//   - which URL patterns map to which handler functions
//   - which middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → repository.Store (sqlite.DB | mongo.DB)
//	              → AuthService / PostService / UploadService
//	              → AuthHandler / PostHandler / UploadHandler
//	              → chi routes
//
// This is the "composition root": every dependency is built here and nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/blog-api/internal/auth"
	"github.com/sakif/blog-api/internal/config"
	"github.com/sakif/blog-api/internal/handler"
	"github.com/sakif/blog-api/internal/middleware"
	"github.com/sakif/blog-api/internal/repository"
	mongoRepo "github.com/sakif/blog-api/internal/repository/mongo"
	sqliteRepo "github.com/sakif/blog-api/internal/repository/sqlite"
	"github.com/sakif/blog-api/internal/service"
	"github.com/sakif/blog-api/internal/storage"
)

// storeConnectTimeout bounds the initial MongoDB connection and ping.
const storeConnectTimeout = 10 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store. Start closes it during shutdown so SQLite
// flushes its WAL and MongoDB releases its connection pool.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  repository.Store
}

// New opens the store selected by cfg.StoreDriver and wires the server on top of it.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore wires the server on an already-open store. The server takes
// ownership of store. Tests use it with an in-memory SQLite database.
func NewWithStore(cfg config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// openStore connects to the configured backend.
//
// IMPORT ALIASES:
// repository/sqlite and repository/mongo are imported as sqliteRepo and
// mongoRepo so they do not read like the driver packages they wrap.
func openStore(cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
		defer cancel()
		db, err := mongoRepo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("opening mongodb: %w", err)
		}
		return db, nil
	default:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// Handler exposes the router, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /                     → health check
//	GET    /uploads/*            → uploaded files
//	POST   /auth/register        → create account, returns user + token
//	POST   /auth/login           → returns user + token
//	GET    /auth/me              → caller's profile              [auth]
//	POST   /auth/logout          → clears the token cookie
//	GET    /auth/github/login    → GitHub sign-in (when configured)
//	GET    /auth/github/callback
//	POST   /upload               → multipart "image" → {url}     [auth]
//	GET    /tags                 → last 5 tags
//	GET    /tags/{name}          → posts with that tag
//	GET    /comments             → last 3 comments
//	GET    /posts                → newest first
//	GET    /posts/popular        → most viewed first
//	GET    /posts/{id}           → {postData}, counts a view
//	POST   /posts                → create                        [auth]
//	PATCH  /posts/{id}           → overwrite                     [auth]
//	DELETE /posts/{id}           → delete                        [auth]
//	PATCH  /posts/{id}/comment   → append comment                [auth]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print it; Recoverer sits inside
// the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !slices.Contains(cfg.CORSOrigins, "*"),
		MaxAge:           300,
	}))

	// === Dependencies ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.BcryptCost)

	files, err := storage.NewDisk(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("creating upload storage: %w", err)
	}

	authService := service.NewAuthService(s.store, tokens, passwords, s.logger)
	postService := service.NewPostService(s.store, s.store, s.logger)
	uploadService := service.NewUploadService(files, s.store, cfg.MaxUploadBytes, s.logger)

	var github handler.GitHubAuth
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}

	authHandler := handler.NewAuthHandler(authService, github, cfg.TokenTTL, s.logger)
	postHandler := handler.NewPostHandler(postService, s.logger)
	uploadHandler := handler.NewUploadHandler(uploadService, cfg.MaxUploadBytes, s.logger)

	requireAuth := auth.RequireAuth(tokens)

	// === Public Routes ===
	s.router.Get("/", handler.HandleHealth)
	s.router.Handle("/uploads/*", http.StripPrefix(service.UploadURLPrefix, uploadFiles(files.Dir())))

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.With(requireAuth).Get("/me", authHandler.HandleMe)

		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Get("/tags", postHandler.HandleLastTags)
	s.router.Get("/tags/{name}", postHandler.HandleListByTag)
	s.router.Get("/comments", postHandler.HandleLastComments)

	s.router.Route("/posts", func(r chi.Router) {
		r.Get("/", postHandler.HandleList)
		r.Get("/popular", postHandler.HandleListPopular)
		r.Get("/{id}", postHandler.HandleGet)

		// === Protected Routes ===
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", postHandler.HandleCreate)
			r.Patch("/{id}", postHandler.HandleUpdate)
			r.Delete("/{id}", postHandler.HandleDelete)
			r.Patch("/{id}/comment", postHandler.HandleComment)
		})
	})

	s.router.With(requireAuth).Post("/upload", uploadHandler.HandleUpload)

	return nil
}

// uploadFiles serves stored uploads. Directory listings and dotfiles (the
// store's in-progress temp files) answer 404.
func uploadFiles(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		fs.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second, // uploads
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreDriver),
			slog.Bool("github", s.config.GitHub.Enabled()),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
