package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phambaophuc/vehicle-damage/internal/config"
	"github.com/phambaophuc/vehicle-damage/internal/http/handlers"
	"github.com/phambaophuc/vehicle-damage/internal/http/routes"
	"github.com/phambaophuc/vehicle-damage/internal/services/analyzer"
	"github.com/phambaophuc/vehicle-damage/internal/services/dedup"
	"github.com/phambaophuc/vehicle-damage/internal/services/detector"
	"github.com/phambaophuc/vehicle-damage/internal/services/events"
	"github.com/phambaophuc/vehicle-damage/internal/services/render"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	checks := map[string]handlers.ServiceCheck{}

	// Duplicate cache
	store, err := newStore(cfg, checks)
	if err != nil {
		logger.Fatal("Failed to initialize duplicate cache", zap.Error(err))
	}

	// Detection backend
	det := newDetector(cfg, logger)
	if closer, ok := det.(io.Closer); ok {
		defer closer.Close()
	}
	backend := detector.NewBackend(det, logger, detector.Options{
		Timeout:        cfg.Detector.Timeout,
		MaxConcurrency: cfg.Detector.MaxConcurrency,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go backend.WaitReady(ctx, cfg.Detector.WarmupInterval)

	// Analysis events
	var publisher events.Publisher = events.NopPublisher{}
	checks["rabbitmq"] = func(context.Context) string { return "not configured" }
	if cfg.RabbitMQ.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			// Continue without events for basic functionality
			logger.Warn("Failed to initialize event publisher", zap.Error(err))
		} else {
			defer amqpPublisher.Close()
			publisher = amqpPublisher
			checks["rabbitmq"] = func(context.Context) string { return amqpPublisher.HealthCheck() }
		}
	}

	renderer := render.NewRenderer(render.Options{
		Quality: cfg.Render.JPEGQuality,
		MaxSide: cfg.Render.MaxSide,
	})
	pipeline := analyzer.New(backend, store, renderer, publisher, logger,
		analyzer.WithMaxPixels(cfg.Storage.MaxImagePixels),
	)

	// Initialize handlers
	analysisHandler := handlers.NewAnalysisHandler(pipeline, backend, store, checks, cfg.Storage.MaxFileSize, logger)

	router := routes.NewRouter(analysisHandler, cfg.Storage, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      router.SetupRoutes(),
	}

	// Start server
	go func() {
		logger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("detector", cfg.Detector.Backend),
			zap.String("dedup", cfg.Dedup.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newStore(cfg *config.Config, checks map[string]handlers.ServiceCheck) (dedup.Store, error) {
	opts := dedup.Options{
		TTL:      cfg.Dedup.TTL,
		Capacity: cfg.Dedup.Capacity,
	}

	if cfg.Dedup.Backend != "redis" {
		checks["redis"] = func(context.Context) string { return "not configured" }
		return dedup.NewMemoryStore(opts)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store, err := dedup.NewRedisStore(client, cfg.Dedup.KeyName, opts)
	if err != nil {
		return nil, err
	}

	checks["redis"] = func(ctx context.Context) string {
		if err := store.Ping(ctx); err != nil {
			return "unhealthy: " + err.Error()
		}
		return "healthy"
	}
	return store, nil
}

func newDetector(cfg *config.Config, logger *zap.Logger) detector.Detector {
	switch cfg.Detector.Backend {
	case "onnx":
		return detector.NewONNXDetector(cfg.Detector.ModelPath, cfg.Detector.ClassNames, cfg.Detector.MinConfidence)
	default:
		return detector.NewHTTPDetector(cfg.Detector.URL, cfg.Detector.ClassNames, logger)
	}
}
