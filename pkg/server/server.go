// Package server provides the public entry point for initializing the
// Product Helper server.
//
// This package exists in pkg/ (not internal/) so deployments can embed
// the server and wrap their own middleware around its handler.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/producthelper/producthelper/internal/api"
	"github.com/producthelper/producthelper/internal/api/handlers"
	"github.com/producthelper/producthelper/internal/api/middleware"
	"github.com/producthelper/producthelper/internal/auth"
	"github.com/producthelper/producthelper/internal/config"
	"github.com/producthelper/producthelper/internal/mcp"
	"github.com/producthelper/producthelper/internal/ratelimit"
	"github.com/producthelper/producthelper/internal/retention"
	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/internal/telemetry"
	"github.com/producthelper/producthelper/internal/tools"
)

// Config is the public configuration for the server.
type Config struct {
	Port         int
	Version      string
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Server holds the initialized Product Helper plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store. Exposed so embedders can reach it from
	// their own middleware.
	Store store.Store

	// Janitor prunes expired audit events. The caller owns its
	// lifecycle: run Janitor.Start in a goroutine and cancel its
	// context on shutdown.
	Janitor *retention.Janitor

	// Config is the server configuration.
	Config *Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown. It stops the
	// rate limiter, drops the key cache, flushes telemetry, and closes
	// the store.
	ShutdownFunc func(context.Context) error
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := config.Load()
	return &Config{
		Port:         cfg.Port,
		Version:      cfg.Version,
		OTELEnabled:  cfg.Telemetry.Enabled,
		OTELEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	}
}

// New initializes all components and returns a ready Server.
// This is the primary entry point for main.go.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, pubCfg *Config) (*Server, error) {
	// Build internal config from public config
	cfg := config.Load()
	if pubCfg.Port > 0 {
		cfg.Port = pubCfg.Port
	}
	if pubCfg.Version != "" {
		cfg.Version = pubCfg.Version
	}
	cfg.Telemetry.Enabled = pubCfg.OTELEnabled
	if pubCfg.OTELEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = pubCfg.OTELEndpoint
	}
	if pubCfg.ServiceName != "" {
		cfg.Telemetry.ServiceName = pubCfg.ServiceName
	}

	// Initialize telemetry
	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	// Open the data store
	var dataStore store.Store
	switch cfg.Database.Driver {
	case "memory":
		dataStore = store.NewMemoryStore(cfg.Database.SnapshotPath)
		log.Info().Msg("✅ In-memory store initialized")
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		dataStore = s
		log.Info().Str("path", cfg.Database.Path).Msg("✅ SQLite store initialized")
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if err := dataStore.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	// Initialize services
	authSvc, err := auth.NewService(dataStore, cfg.Auth.CacheEntries, cfg.Auth.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("init key service: %w", err)
	}
	log.Info().Msg("✅ API key service initialized")

	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window, nil)
	log.Info().
		Int("requests", cfg.RateLimit.Requests).
		Dur("window", cfg.RateLimit.Window).
		Msg("✅ Rate limiter initialized")

	registry := mcp.NewRegistry()
	if err := tools.RegisterAll(registry, dataStore); err != nil {
		return nil, err
	}
	mcpSrv := mcp.NewServer(registry, "producthelper", cfg.Version)
	log.Info().Int("tools", len(registry.List())).Msg("✅ MCP server initialized")

	janitor := retention.NewJanitor(dataStore, cfg.Retention.AuditDays, cfg.Retention.Interval)
	if cfg.Retention.ArchivePath != "" {
		janitor.RegisterArchiver(retention.NewLocalFileArchiver(cfg.Retention.ArchivePath, cfg.Retention.CompressArchives))
	}

	// Build handlers + API router
	h := handlers.New(dataStore, authSvc, mcpSrv, cfg.Version)
	adminGate := middleware.NewAdminAuth(cfg.Auth.AdminToken)
	keyGate := middleware.NewKeyAuth(authSvc, limiter, dataStore)
	router := api.NewRouter(h, adminGate, keyGate)

	shutdown := func(ctx context.Context) error {
		limiter.Stop()
		authSvc.Close()
		err := shutdownTelemetry(ctx)
		if cerr := dataStore.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	}

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Janitor:      janitor,
		Config:       pubCfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
