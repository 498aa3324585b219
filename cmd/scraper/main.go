package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/weft-scraper/internal/browser"
	"github.com/maltedev/weft-scraper/internal/catalog"
	"github.com/maltedev/weft-scraper/internal/config"
	"github.com/maltedev/weft-scraper/internal/database"
	"github.com/maltedev/weft-scraper/internal/events"
	"github.com/maltedev/weft-scraper/internal/models"
	"github.com/maltedev/weft-scraper/internal/parser"
	"github.com/maltedev/weft-scraper/internal/ratelimit"
	"github.com/maltedev/weft-scraper/internal/scraper"
	"github.com/maltedev/weft-scraper/internal/storage"
	"github.com/maltedev/weft-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		baseURL       = flag.String("url", cfg.Site.BaseURL, "Storefront base URL")
		outDir        = flag.String("out", cfg.Output.Dir, "Output directory")
		outFile       = flag.String("file", cfg.Output.File, "Output JSON file name")
		jsFile        = flag.String("js", cfg.Output.JSFile, "Optional JS file assigning the catalog to a window variable")
		maxProducts   = flag.Int("max-products", cfg.Scraper.MaxProducts, "Maximum products to keep (0 = unlimited)")
		maxCategories = flag.Int("max-categories", cfg.Scraper.MaxCategories, "Maximum categories to visit (0 = unlimited)")
		headless      = flag.Bool("headless", cfg.Browser.Headless, "Run browser in headless mode")
		debug         = flag.Bool("debug", cfg.Scraper.Debug, "Save a screenshot after every navigation")
		delay         = flag.Duration("delay", cfg.Scraper.Delay, "Delay between category visits")
	)
	flag.Parse()

	cfg.Site.BaseURL = *baseURL
	cfg.Output.Dir = *outDir
	cfg.Output.File = *outFile
	cfg.Output.JSFile = *jsFile
	cfg.Scraper.MaxProducts = *maxProducts
	cfg.Scraper.MaxCategories = *maxCategories
	cfg.Browser.Headless = *headless
	cfg.Scraper.Debug = *debug
	cfg.Scraper.Delay = *delay

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting catalog scraper",
		"url", cfg.Site.BaseURL,
		"max_products", cfg.Scraper.MaxProducts,
		"max_categories", cfg.Scraper.MaxCategories)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	orchestrator := scraper.NewOrchestrator(
		scraper.SettingsFromConfig(cfg),
		opener(cfg),
		parser.NewLocator(locatorOptions(cfg), logger),
		catalog.NewFilter(keywords(cfg.Scraper.IncludeKeywords, catalog.DefaultIncludeKeywords), keywords(cfg.Scraper.ExcludeKeywords, catalog.DefaultExcludeKeywords)),
		ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.Delay, cfg.Scraper.Delay+cfg.Scraper.DelayJitter),
	)

	artifact, summary, runErr := orchestrator.Run(ctx)
	interrupted := ctx.Err() != nil

	if artifact != nil {
		for _, problem := range artifact.Validate() {
			logger.Warn("Artifact check", "problem", problem)
		}

		writer := storage.NewArtifactWriter(storage.WriterOptions{
			Dir:    cfg.Output.Dir,
			File:   cfg.Output.File,
			JSFile: cfg.Output.JSFile,
			JSVar:  cfg.Output.JSVar,
		})
		paths, err := writer.Write(artifact)
		if err != nil {
			logger.Error("Failed to write artifact", "error", err)
			os.Exit(1)
		}
		logger.Info("Artifact written", "paths", paths, "count", artifact.Count)

		if interrupted {
			logger.Warn("Run interrupted, partial catalog not published")
		} else {
			publish(logger, cfg, artifact, summary)
		}
	}

	if runErr != nil {
		logger.Error("Run failed", "error", runErr)
	}

	logger.Info("Summary",
		"discovered", summary.Discovered,
		"categories", summary.Categories,
		"visited", summary.Visited,
		"failed", summary.Failed,
		"final", summary.Final)

	os.Exit(exitStatus(interrupted, runErr))
}

// exitStatus is non-zero for failed and for interrupted runs, even when a
// partial catalog was written.
func exitStatus(interrupted bool, runErr error) int {
	if runErr != nil || interrupted {
		return 1
	}
	return 0
}

func opener(cfg *config.Config) scraper.Opener {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.NavigationTimeout
	opts.UserAgent = cfg.Browser.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.Settle.Delay = cfg.Scraper.SettleDelay
	opts.Settle.Step = cfg.Scraper.ScrollStep
	opts.Settle.Pace = cfg.Scraper.ScrollPace
	opts.Settle.MaxDuration = cfg.Scraper.ScrollMaxDuration
	opts.Settle.ImageWaitTimeout = cfg.Scraper.ImageWaitTimeout

	return func(ctx context.Context) (scraper.Session, error) {
		session, err := browser.Open(opts)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func locatorOptions(cfg *config.Config) parser.Options {
	opts := parser.DefaultOptions()
	opts.ImageScope = parser.ImageScope{
		Wrappers:   cfg.Scraper.ImageScopeWrappers,
		IDPrefixes: cfg.Scraper.ImageScopeIDs,
	}
	return opts
}

func keywords(configured, defaults []string) []string {
	if configured == nil {
		return defaults
	}
	return configured
}

// publish forwards the run to the optional sinks. Failures are logged; the
// artifact on disk stays the primary output.
func publish(logger *slog.Logger, cfg *config.Config, artifact *models.Artifact, summary *models.RunSummary) {
	if !cfg.Database.Enabled && !cfg.Redis.Enabled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runID := uuid.New()
	logger = logger.With("run_id", runID)

	var publisher *events.Publisher
	if cfg.Redis.Enabled {
		client, err := events.Connect(ctx, events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
		} else {
			publisher = events.NewPublisher(client, cfg.Redis.Stream)
			defer publisher.Close()
		}
	}

	if !cfg.Database.Enabled {
		if publisher == nil {
			return
		}
		if _, err := publisher.PublishRunCompleted(ctx, runID, cfg.Site.BaseURL, artifact, summary); err != nil {
			logger.Error("Failed to publish run event", "error", err)
			return
		}
		logger.Info("Run event published", "stream", publisher.Stream())
		return
	}

	db, err := database.New(ctx, databaseConfig(cfg))
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		return
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("Failed to prepare schema", "error", err)
		return
	}

	repo := database.NewCatalogRepository(db, cfg.Redis.Stream)
	if err := repo.SaveRun(ctx, runID, cfg.Site.BaseURL, artifact, summary); err != nil {
		logger.Error("Failed to save run", "error", err)
		return
	}
	logger.Info("Run saved", "count", artifact.Count)

	if publisher == nil {
		return
	}

	relay := database.NewRelay(db, publisher, logger, database.RelayConfig{})
	published, err := relay.ProcessPending(ctx)
	if err != nil {
		logger.Error("Failed to relay run event", "error", err)
		return
	}
	logger.Info("Outbox relayed", "published", published)
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	}
}
