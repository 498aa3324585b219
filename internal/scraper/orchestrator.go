package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/weft-scraper/internal/catalog"
	"github.com/maltedev/weft-scraper/internal/config"
	"github.com/maltedev/weft-scraper/internal/models"
	"github.com/maltedev/weft-scraper/internal/parser"
	"github.com/maltedev/weft-scraper/internal/ratelimit"
)

type Settings struct {
	BaseURL         string
	MaxCategories   int
	MaxProducts     int
	CategoryTimeout time.Duration
	Placeholders    []string
	ScreenshotDir   string
}

func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		BaseURL:         cfg.Site.BaseURL,
		MaxCategories:   cfg.Scraper.MaxCategories,
		MaxProducts:     cfg.Scraper.MaxProducts,
		CategoryTimeout: cfg.Scraper.CategoryTimeout,
		Placeholders:    cfg.Scraper.Placeholders,
	}
	if s.Placeholders == nil {
		s.Placeholders = catalog.DefaultPlaceholders
	}
	if cfg.Scraper.Debug {
		s.ScreenshotDir = cfg.Output.Dir
	}
	return s
}

// Orchestrator runs one extraction: discover, filter, visit each category in
// turn and accumulate the admitted products.
type Orchestrator struct {
	settings Settings
	open     Opener
	parser   parser.Parser
	filter   *catalog.Filter
	limiter  *ratelimit.AdaptiveRateLimiter
	walker   *Walker
	logger   *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(settings Settings, open Opener, p parser.Parser, filter *catalog.Filter, limiter *ratelimit.AdaptiveRateLimiter) *Orchestrator {
	if limiter == nil {
		limiter = ratelimit.NewAdaptiveRateLimiter(0, 0)
	}
	if filter == nil {
		filter = catalog.NewFilter(catalog.DefaultIncludeKeywords, catalog.DefaultExcludeKeywords)
	}
	return &Orchestrator{
		settings: settings,
		open:     open,
		parser:   p,
		filter:   filter,
		limiter:  limiter,
		walker:   NewWalker(settings.BaseURL, limiter, settings.ScreenshotDir),
		logger:   slog.Default().With("component", "orchestrator"),
		now:      time.Now,
	}
}

// Run performs the extraction. The session is closed on every path; a close
// failure is returned together with the artifact built before it. When ctx is
// cancelled mid-run the products admitted so far are returned without error;
// callers check ctx to tell an interrupted run apart.
func (o *Orchestrator) Run(ctx context.Context) (artifact *models.Artifact, summary *models.RunSummary, err error) {
	summary = &models.RunSummary{}

	session, err := o.open(ctx)
	if err != nil {
		return nil, summary, fmt.Errorf("%w: %w", ErrSessionOpen, err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrSessionClose, closeErr))
		}
	}()

	home, err := o.walker.Home(ctx, session)
	if err != nil {
		return nil, summary, fmt.Errorf("%w: %w", ErrHomePage, err)
	}

	links, err := o.parser.DiscoverCategories(home)
	if err != nil {
		return nil, summary, fmt.Errorf("failed to discover categories: %w", err)
	}
	summary.Discovered = len(links)

	relevant := o.filter.Apply(links)
	if o.settings.MaxCategories > 0 && len(relevant) > o.settings.MaxCategories {
		relevant = relevant[:o.settings.MaxCategories]
	}
	summary.Categories = len(relevant)

	o.logger.Info("categories selected",
		"discovered", len(links),
		"relevant", len(relevant))

	results := catalog.NewResultSet(o.settings.MaxProducts, o.settings.Placeholders)

	for i, link := range relevant {
		if results.Full() {
			o.logger.Info("product limit reached", "max", results.Max())
			break
		}
		if err := ctx.Err(); err != nil {
			o.logger.Warn("run cancelled, stopping category loop", "error", err)
			break
		}

		o.logger.Info("processing category",
			"category", link.Name,
			"index", i+1,
			"total", len(relevant))

		added, err := o.scrapeCategory(ctx, session, link, results)
		if err != nil && ctx.Err() != nil {
			o.logger.Warn("run cancelled during category, stopping",
				"category", link.Name,
				"error", err)
			break
		}
		summary.Visited++
		if err != nil {
			summary.Failed++
			o.limiter.RecordError()
			o.logger.Error("category failed, skipping",
				"category", link.Name,
				"url", link.Target,
				"error", err)
			continue
		}
		o.limiter.RecordSuccess()

		o.logger.Info("category done",
			"category", link.Name,
			"added", added,
			"total", results.Len())
	}

	products := results.Finalize()
	summary.Final = len(products)
	artifact = models.NewArtifact(products, o.now())

	o.logger.Info("run finished",
		"discovered", summary.Discovered,
		"categories", summary.Categories,
		"visited", summary.Visited,
		"failed", summary.Failed,
		"final", summary.Final)

	return artifact, summary, nil
}

func (o *Orchestrator) scrapeCategory(ctx context.Context, session Session, link models.CategoryLink, results *catalog.ResultSet) (int, error) {
	if o.settings.CategoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.settings.CategoryTimeout)
		defer cancel()
	}

	if err := o.walker.Visit(ctx, session, link); err != nil {
		return 0, err
	}

	html, err := session.Content()
	if err != nil {
		return 0, err
	}

	candidates, err := o.parser.Locate(html, link.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to locate products: %w", err)
	}

	added := 0
	for _, p := range candidates {
		if results.Full() {
			break
		}
		if reason := results.Check(p); reason != catalog.Accepted {
			o.logger.Debug("product rejected", "name", p.Name, "reason", string(reason))
			continue
		}
		if results.Admit(p) {
			added++
		}
	}

	o.logger.Debug("candidates evaluated",
		"category", link.Name,
		"candidates", len(candidates),
		"added", added)

	return added, nil
}
