// Support Relay - customer-support chat relay server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/support-relay/internal/api"
	"github.com/ashureev/support-relay/internal/chat"
	"github.com/ashureev/support-relay/internal/config"
	"github.com/ashureev/support-relay/internal/generator"
	"github.com/ashureev/support-relay/internal/history"
	"github.com/ashureev/support-relay/internal/identity"
	"github.com/ashureev/support-relay/internal/knowledge"
	"github.com/ashureev/support-relay/internal/kv"
	"github.com/ashureev/support-relay/internal/middleware"
	"github.com/ashureev/support-relay/internal/phone"
	"github.com/ashureev/support-relay/internal/session"
	"github.com/ashureev/support-relay/internal/store"
	"github.com/ashureev/support-relay/internal/transcript"
	"github.com/ashureev/support-relay/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	fastStore, err := kv.NewRedis(connectCtx, kv.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	connectCancel()
	if err != nil {
		slog.Error("Failed to connect to fast store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := fastStore.Close(); closeErr != nil {
			slog.Error("Failed to close fast store", "error", closeErr)
		}
	}()
	slog.Info("Fast store connected", "addr", cfg.RedisAddr)

	gen, err := generator.NewOpenAIClient(generator.Config{
		APIKey:       cfg.Generator.APIKey,
		BaseURL:      cfg.Generator.BaseURL,
		Model:        cfg.Generator.Model,
		SystemPrompt: cfg.Generator.SystemPrompt,
		MaxAttempts:  cfg.Generator.MaxAttempts,
	})
	if err != nil {
		slog.Error("Failed to initialize reply generator", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	sessions := session.New(fastStore, cfg.SessionTTL)
	accumulator := history.New(fastStore, cfg.SessionTTL)
	kb := knowledge.NewCache(fastStore, repo)
	finalizer := transcript.NewFinalizer(accumulator, repo)
	resolver := identity.NewResolver(repo)
	normalizer := phone.NewNormalizer(cfg.PhoneRegion)

	// Initialize handlers.
	wsHandler := chat.NewWebSocketHandler(&chat.Deps{
		Sessions:     sessions,
		Resolver:     resolver,
		History:      accumulator,
		Knowledge:    kb,
		Finalizer:    finalizer,
		Generator:    gen,
		Normalizer:   normalizer,
		StoreTimeout: cfg.StoreTimeout,
	}, cfg.FrontendURL, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(repo, fastStore, cfg.StoreTimeout)
	adminHandler := api.NewAdminHandler(repo, kb)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)
	adminHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Embedded test client.
	r.Handle("/*", web.Handler())

	// Create server.
	// Note: websocket connections outlive request timeouts, so no
	// WriteTimeout is set.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 0,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
