package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/weft-scraper/internal/models"
)

var categorySelectors = []string{
	`a[href*="/category/"]`,
	`a[href*="/cat/"]`,
	`a[href*="/shop/"]`,
	`nav a`,
	`[class*="menu"] a`,
	`[class*="category"] a`,
}

// DiscoverCategories collects navigation links from the home page. A link is
// skipped when its URL or its label was already collected.
func DiscoverCategories(html string) ([]models.CategoryLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var links []models.CategoryLink
	seenURL := make(map[string]struct{})
	seenName := make(map[string]struct{})

	for _, selector := range categorySelectors {
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			href = strings.TrimSpace(href)
			text := cleanText(a.Text())

			if href == "" || !textWithin(text, 3, 99) {
				return
			}
			if strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
				return
			}

			_, urlSeen := seenURL[href]
			_, nameSeen := seenName[text]
			if urlSeen || nameSeen {
				return
			}
			seenURL[href] = struct{}{}
			seenName[text] = struct{}{}

			links = append(links, models.CategoryLink{Name: text, Target: href})
		})
	}

	return links, nil
}

// DiscoverCategories satisfies Parser.
func (l *Locator) DiscoverCategories(html string) ([]models.CategoryLink, error) {
	return DiscoverCategories(html)
}
