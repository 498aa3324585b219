package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/weft-scraper/internal/config"
	"github.com/maltedev/weft-scraper/internal/sitesync"
	"github.com/maltedev/weft-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		root = flag.String("root", cfg.Sync.Root, "Project root containing index.html and stores/")
		docs = flag.String("docs", "docs", "Published docs directory, relative to root")
	)
	flag.Parse()

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Syncing docs folder with latest static site", "root", *root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := sitesync.Sync(ctx, sitesync.Plan{Root: *root, DocsDir: *docs})
	if err != nil {
		logger.Error("Sync failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Sync finished",
		"stores", report.Stores,
		"copied", len(report.Copied),
		"skipped", len(report.Skipped))
}
