package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Hiepler/EuConform/internal/capability"
	"github.com/Hiepler/EuConform/internal/config"
	"github.com/Hiepler/EuConform/internal/inference"
	"github.com/Hiepler/EuConform/internal/llama"
	"github.com/Hiepler/EuConform/internal/repository"
	"github.com/Hiepler/EuConform/internal/services"
	"github.com/Hiepler/EuConform/internal/store"
	"github.com/Hiepler/EuConform/pkg/server"
)

func main() {
	var envFile = flag.String("env", "", "Optional .env file to load")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize database
	_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Log startup event
	db.Event("info", "startup", "Bias engine starting", map[string]interface{}{
		"service":   cfg.ServiceName,
		"http_addr": cfg.HTTPAddr,
		"db_path":   cfg.DBPath,
	})

	// Initialize repository
	repo := repository.NewSQLiteRepository(db)

	// Capability cache persisted through the repository blob store
	cache := capability.NewCache(repo.Capability(), cfg.CacheSuccessTTL, cfg.CacheErrorTTL)

	// Remote inference server client and detection service
	api := inference.NewOllamaAPI(cfg.OllamaURL, cfg.ProbeTimeout)
	detection := services.NewDetectionService(cfg, api, cache)

	// Local runtime factory; the real llama.cpp binding is compiled in with
	// the "llama" build tag, otherwise local scoring reports unavailable.
	runtimes := func(modelID string) inference.Runtime {
		return llama.NewRuntime(llama.Config{
			ModelPath: cfg.ModelPath,
			ModelURL:  cfg.ModelURL,
			Threads:   cfg.Threads,
			CtxSize:   cfg.CtxSize,
		})
	}

	biasService := services.NewBiasService(cfg, repo, detection, api, runtimes)

	// Log services initialization
	db.Event("info", "services.init", "Initializing services", map[string]interface{}{
		"http_addr":  cfg.HTTPAddr,
		"nats_url":   cfg.NatsURL,
		"ollama_url": cfg.OllamaURL,
	})

	// Initialize NATS service
	natsService, err := services.NewNATSService(cfg, biasService, detection)
	if err != nil {
		db.Event("error", "nats.failed", "NATS service initialization failed", map[string]interface{}{
			"nats_url": cfg.NatsURL,
			"error":    err.Error(),
		})
		slog.Error("Failed to create NATS service", "error", err)
		os.Exit(1)
	}

	// Initialize Health service for engine discovery
	healthService := services.NewHealthService(natsService.GetConnection(), cfg, detection)

	// Start HTTP server
	httpServer := server.NewServer(cfg.HTTPAddr, biasService, detection)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log server ready
	db.Event("info", "server.ready", "Engine ready to accept requests", map[string]interface{}{
		"http_addr": cfg.HTTPAddr,
		"nats_url":  cfg.NatsURL,
	})

	// Start all services
	go func() {
		if err := httpServer.Start(ctx); err != nil {
			db.Event("error", "http.failed", "HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("HTTP server failed", "error", err)
		}
	}()

	go func() {
		if err := natsService.Start(ctx); err != nil {
			db.Event("error", "nats.failed", "NATS service failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("NATS service failed", "error", err)
		}
	}()

	go func() {
		if err := healthService.Start(ctx); err != nil {
			db.Event("error", "health.failed", "Health service failed", map[string]interface{}{
				"error": err.Error(),
			})
			slog.Error("Health service failed", "error", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("Shutting down bias engine")
}
