package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codesync/internal/access"
	"codesync/internal/api"
	"codesync/internal/auth"
	"codesync/internal/config"
	"codesync/internal/db"
	"codesync/internal/repository"
	"codesync/internal/services/collaboration"
	"codesync/internal/share"
	"codesync/internal/telemetry"
)

func main() {
	log.Println("🚀 Starting codesync server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Initialize Jaeger tracing first so all operations are traced.
	jaegerShutdown, err := telemetry.InitJaeger("codesync", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Jaeger: %v (continuing without tracing)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("⚠️  Failed to shutdown Jaeger: %v", err)
		}
	}()

	// Initialize GORM database
	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(database.DB)
	docRepo := repository.NewDocumentRepository(database.DB)
	shareRepo := repository.NewShareRepository(database.DB)

	// Access control reads documents for ownership and the grant table
	// for everything else.
	accessCtl := access.NewController(storeFacade{docRepo, shareRepo})

	// Share-link manager
	linkManager := share.NewManager(storeFacade{docRepo, shareRepo}, accessCtl)

	// Token issuer for HTTP auth and websocket upgrade
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour)

	// Real-time sync: registry of live sessions plus the engine that
	// serializes events per document.
	registry := collaboration.NewSessionRegistry()
	engine := collaboration.NewSyncEngine(registry, docRepo, accessCtl)
	wsHandler := collaboration.NewWebSocketHandler(engine)

	// HTTP handlers and routes
	handler := api.NewHandler(userRepo, docRepo, shareRepo, accessCtl, linkManager, tokens, wsHandler)
	router := api.SetupRoutes(handler, tokens)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	// Close all live collaboration sessions after the listener stops
	// accepting upgrades.
	registry.Shutdown()

	log.Println("✓ Server shutdown complete")
}

// storeFacade combines the document and share repositories into the
// single store surface the access controller and share manager consume.
type storeFacade struct {
	*repository.DocumentRepositoryImpl
	*repository.ShareRepositoryImpl
}
