package parser

import (
	"github.com/maltedev/weft-scraper/internal/models"
)

type Parser interface {
	Locate(html string, category string) ([]models.Product, error)
	DiscoverCategories(html string) ([]models.CategoryLink, error)
}
