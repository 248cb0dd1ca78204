package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"workshop-emergency-backend/config"
	"workshop-emergency-backend/internal/api"
	"workshop-emergency-backend/internal/db"
	"workshop-emergency-backend/internal/dispatch"
	"workshop-emergency-backend/internal/notification"
	"workshop-emergency-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "dispatchd ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	// Push delivery runs on a worker pool behind the notification gateway.
	var pool *notification.WorkerPool
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
		pool.Start(ctx)
	} else {
		logger.Println("VAPID keys are not configured; notifications will be stored but not pushed")
	}
	gateway := notification.NewGateway(gormDB, pool)

	// The dispatch controller owns all offer-ledger and booking transitions.
	controller := dispatch.NewController(appStore, gateway, cfg.Dispatch.OfferTTL, cfg.Dispatch.SystemUserID)

	// Run the expiry sweep in the background so lapsed offers cascade on
	// their own.
	sweeper := dispatch.NewSweeper(&cfg.Dispatch, appStore, controller)
	go sweeper.Run(ctx)

	// Initialize router
	router := api.NewRouter(appStore, controller, &cfg.Server, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
