package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/weft-scraper/internal/models"
)

// Options tune the heuristics used against the storefront markup. The
// selector order is significant.
type Options struct {
	ContainerSelectors   []string
	ProductImageSelector string
	DetailLinkPattern    *regexp.Regexp
	ChromePhrases        []string
	ImageScope           ImageScope
}

func DefaultOptions() Options {
	return Options{
		ContainerSelectors: []string{
			`tr[id*="rptproducts_tr"]`,
			`div[id*="_itemsContainer"] > div`,
			`[class*="product-item"]`,
			`[class*="product"]`,
			`[class*="item"]`,
			`table tr[id]`,
			`[data-product]`,
			`article`,
			`[class*="card"]`,
			`.product`,
			`.item`,
		},
		ProductImageSelector: `img[id*="products"], img[id*="item"], img[src*="productsimages"], img[src*="ProductsImages"]`,
		DetailLinkPattern:    regexp.MustCompile(`-i\d+`),
		ChromePhrases:        []string{"בצ", "סגור", "נוסף לסל", "added to cart", "close"},
	}
}

// Snapshot is one parsed view of a rendered category page.
type Snapshot struct {
	Doc      *goquery.Document
	Category string

	// Containers holds the elements matched by the first productive
	// structural selector; empty when none matched.
	Containers        *goquery.Selection
	ContainerSelector string
}

// Strategy turns a snapshot into candidate products. A strategy that does
// not apply to the snapshot returns nil.
type Strategy struct {
	Name    string
	Extract func(s *Snapshot) []models.Product
}

type Locator struct {
	opts       Options
	strategies []Strategy
	logger     *slog.Logger
}

func NewLocator(opts Options, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DetailLinkPattern == nil {
		opts.DetailLinkPattern = DefaultOptions().DetailLinkPattern
	}
	if len(opts.ContainerSelectors) == 0 {
		opts.ContainerSelectors = DefaultOptions().ContainerSelectors
	}
	if opts.ProductImageSelector == "" {
		opts.ProductImageSelector = DefaultOptions().ProductImageSelector
	}

	l := &Locator{
		opts:   opts,
		logger: logger.With("component", "locator"),
	}
	l.strategies = []Strategy{
		{Name: "image-first", Extract: l.imageFirst},
		{Name: "container-fields", Extract: l.containerFields},
		{Name: "link-first", Extract: l.linkFirst},
	}
	return l
}

// Locate extracts candidate products from the HTML of a rendered category
// page. The first strategy that yields anything wins; the result is unique
// by name and keeps page order.
func (l *Locator) Locate(html string, category string) ([]models.Product, error) {
	snap, err := l.Snapshot(html, category)
	if err != nil {
		return nil, err
	}

	for _, strategy := range l.strategies {
		products := strategy.Extract(snap)
		if len(products) == 0 {
			continue
		}
		l.logger.Debug("strategy matched",
			"strategy", strategy.Name,
			"category", category,
			"containers", snap.ContainerSelector,
			"count", len(products))
		return uniqueByName(products), nil
	}

	return nil, nil
}

func (l *Locator) Snapshot(html string, category string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	snap := &Snapshot{
		Doc:        doc,
		Category:   category,
		Containers: doc.Selection.Slice(0, 0),
	}
	for _, selector := range l.opts.ContainerSelectors {
		found := doc.Find(selector)
		if found.Length() > 0 {
			snap.Containers = found
			snap.ContainerSelector = selector
			break
		}
	}

	return snap, nil
}

// guard runs fn for a single candidate; a panic from odd markup drops only
// that candidate.
func (l *Locator) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Debug("skipping candidate", "kind", kind, "panic", r)
		}
	}()
	fn()
}

func (l *Locator) isChrome(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range l.opts.ChromePhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func uniqueByName(products []models.Product) []models.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	return out
}
