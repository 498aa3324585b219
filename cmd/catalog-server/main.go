package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/maltedev/weft-scraper/internal/api"
	"github.com/maltedev/weft-scraper/internal/config"
	"github.com/maltedev/weft-scraper/internal/database"
	"github.com/maltedev/weft-scraper/internal/events"
	"github.com/maltedev/weft-scraper/internal/storage"
	"github.com/maltedev/weft-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		port = flag.Int("port", cfg.Server.Port, "HTTP port")
		file = flag.String("file", filepath.Join(cfg.Output.Dir, cfg.Output.File), "Catalog JSON to serve when the database is disabled")
	)
	flag.Parse()

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handlers *api.Handlers

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}

		repo := database.NewCatalogRepository(db, cfg.Redis.Stream)
		handlers = api.NewHandlers(repo, logger).
			WithRuns(repo).
			WithOutbox(database.NewOutboxRepository(db))

		if cfg.Redis.Enabled {
			client, err := events.Connect(ctx, events.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				logger.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}
			defer client.Close()

			relay := database.NewRelay(db, events.NewPublisher(client, cfg.Redis.Stream), logger, database.RelayConfig{
				PollInterval: 5 * time.Second,
				BatchSize:    100,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("relay stopped with error", "error", err)
				}
			}()
		}

		logger.Info("serving catalog from database", "db", cfg.Database.DBName)
	} else {
		handlers = api.NewHandlers(storage.NewFileSource(*file), logger)
		logger.Info("serving catalog from file", "path", *file)
	}

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, *port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Timeout:        cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
