// Package server sets up and manages the main HTTP API server.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elevaite/api/internal/audit"
	"github.com/elevaite/api/internal/authz"
	"github.com/elevaite/api/internal/config"
	"github.com/elevaite/api/internal/database"
	"github.com/elevaite/api/internal/db"
	"github.com/elevaite/api/internal/middleware"
	"github.com/elevaite/api/internal/router"
)

// Server represents the API server with all its dependencies.
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	dbPool         *sql.DB
	engine         *authz.Engine
	schemaReloader *config.SchemaReloader
}

// New creates a new Server instance with all dependencies initialized.
func New(cfg *config.Config) (*Server, error) {
	dbPool, err := database.NewPool(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	slog.Info("Database connection pool established")

	queries := db.New(dbPool)
	auditLogger := audit.New(queries)

	schemas, schemaReloader, err := setupSchemas(cfg)
	if err != nil {
		_ = dbPool.Close()
		return nil, err
	}

	engine := authz.NewEngine(queries, schemas, auditLogger, slog.Default())
	if schemaReloader != nil {
		schemaReloader.OnSchemaChange(func(set *authz.SchemaSet) {
			engine.SetSchemas(set)
			auditLogger.Log(context.Background(), "", audit.ActorSystem,
				audit.SchemaEntityType, audit.SchemaReloadSuccess, nil)
		})
		schemaReloader.OnReloadFailure(func(err error) {
			auditLogger.Log(context.Background(), "", audit.ActorSystem,
				audit.SchemaEntityType, audit.SchemaReloadFailure,
				map[string]any{"error": err.Error()})
		})
	}

	authenticator := middleware.NewAuthenticator(queries, cfg.JWKSURL, auditLogger)
	if err := authenticator.Initialize(context.Background()); err != nil {
		_ = dbPool.Close()
		return nil, fmt.Errorf("failed to initialize authenticator: %w", err)
	}

	handler := router.New(&router.Dependencies{
		Queries:        queries,
		Engine:         engine,
		Authenticator:  authenticator,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		config:         cfg,
		httpServer:     httpServer,
		dbPool:         dbPool,
		engine:         engine,
		schemaReloader: schemaReloader,
	}, nil
}

// setupSchemas compiles the initial schema set, from disk when a schema
// directory is configured and from the embedded documents otherwise.
func setupSchemas(cfg *config.Config) (*authz.SchemaSet, *config.SchemaReloader, error) {
	if cfg.SchemaDir == "" {
		schemas, err := authz.DefaultSchemas()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to compile embedded schemas: %w", err)
		}
		slog.Info("Using embedded permission schemas")
		return schemas, nil, nil
	}

	reloader, err := config.NewSchemaReloader(cfg.SchemaDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create schema reloader: %w", err)
	}
	schemas, err := reloader.LoadSchemas()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile schemas from %s: %w", cfg.SchemaDir, err)
	}
	slog.Info("Using permission schemas from disk", "schema_dir", cfg.SchemaDir)
	return schemas, reloader, nil
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	if s.schemaReloader != nil {
		if err := s.schemaReloader.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start schema reloader: %w", err)
		}
	}

	slog.Info("Starting elevAIte authorization API", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Starting graceful shutdown")

	if s.schemaReloader != nil {
		if err := s.schemaReloader.Stop(); err != nil {
			slog.Error("Error stopping schema reloader", "error", err)
		} else {
			slog.Info("Schema reloader stopped")
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("could not stop server gracefully: %w", err)
	}

	if err := s.dbPool.Close(); err != nil {
		return fmt.Errorf("error closing database: %w", err)
	}

	slog.Info("Server stopped gracefully")
	return nil
}
