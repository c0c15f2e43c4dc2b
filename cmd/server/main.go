package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/receiptwise/alerting-backend-go/internal/api"
	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/core/governance"
	"github.com/receiptwise/alerting-backend-go/internal/database"
	"github.com/receiptwise/alerting-backend-go/internal/websocket"
	"github.com/receiptwise/alerting-backend-go/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger.SetLevel(log, cfg.Logging.Level)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Create repositories
	repos := database.NewRepositories(db)

	// Create WebSocket hub for the live governance feed
	wsHub := websocket.NewHub(log, websocket.HubOptions{
		PingInterval: time.Duration(cfg.Feed.PingInterval) * time.Second,
		WriteTimeout: time.Duration(cfg.Feed.WriteTimeout) * time.Second,
	})
	go wsHub.Run()
	feed := websocket.NewGovernanceFeed(wsHub)

	// Build the governance engine
	engine := governance.NewEngine(cfg.Governance, repos, log, governance.EngineOptions{
		Dispatcher: feed,
		Events:     feed,
		Prefix:     cfg.Metrics.Prefix,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		log.Fatal("Failed to start governance engine:", err)
	}

	// Initialize router
	router := api.NewRouter(cfg, engine, repos, db, log, wsHub, api.RouterOptions{})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Starting alerting backend on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Info("Server exited")
}
