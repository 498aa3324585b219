package parser

import (
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/weft-scraper/internal/models"
)

const (
	imageContainerSelector = `tr, div[class*="product"], div[class*="item"], div[id], td`
	linkPriceScopeSelector = `[class*="product"], [class*="item"], div`
	nearestBlockSelector   = `tr, div[class], div[id]`
	nameSelector           = `[class*="name"], [class*="title"], h2, h3, h4, a[href]`

	maxAncestorDepth = 5
)

// imageFirst builds products around product-looking images. Only runs when
// structural containers exist on the page.
func (l *Locator) imageFirst(s *Snapshot) []models.Product {
	if s.Containers.Length() == 0 {
		return nil
	}

	var products []models.Product
	s.Doc.Find(l.opts.ProductImageSelector).Each(func(_ int, img *goquery.Selection) {
		l.guard("image", func() {
			if p, ok := l.productFromImage(img, s.Category); ok {
				products = append(products, p)
			}
		})
	})
	return products
}

func (l *Locator) productFromImage(img *goquery.Selection, category string) (models.Product, bool) {
	image, ok := l.opts.ImageScope.Resolve(img)
	if !ok {
		return models.Product{}, false
	}

	container := img.Closest(imageContainerSelector)
	if container.Length() == 0 {
		return models.Product{}, false
	}

	links := container.Find("a[href]")
	var name, url string

	links.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		text := cleanText(a.Text())
		if href != "" && l.opts.DetailLinkPattern.MatchString(href) && textWithin(text, 4, 199) {
			name, url = text, href
			return false
		}
		return true
	})

	if name == "" {
		links.EachWithBreak(func(_ int, a *goquery.Selection) bool {
			text := cleanText(a.Text())
			if textWithin(text, 11, 199) {
				name = text
				url, _ = a.Attr("href")
				return false
			}
			return true
		})
	}

	if name == "" {
		return models.Product{}, false
	}

	return models.Product{
		Name:     name,
		Price:    ExtractPrice(container),
		Category: category,
		URL:      url,
		Image:    image,
	}, true
}

// containerFields reads each structural container on its own. Used when the
// image-first pass found nothing.
func (l *Locator) containerFields(s *Snapshot) []models.Product {
	if s.Containers.Length() == 0 {
		return nil
	}

	var products []models.Product
	s.Containers.Each(func(_ int, el *goquery.Selection) {
		l.guard("container", func() {
			name := cleanText(el.Find(nameSelector).First().Text())
			if utf8.RuneCountInString(name) <= 3 {
				return
			}

			url, _ := el.Find("a").First().Attr("href")
			image, _ := l.opts.ImageScope.Resolve(containerImage(el))

			products = append(products, models.Product{
				Name:     name,
				Price:    ExtractPrice(el),
				Category: s.Category,
				URL:      url,
				Image:    image,
			})
		})
	})
	return products
}

func containerImage(el *goquery.Selection) *goquery.Selection {
	img := el.Find("img").First()
	if img.Length() > 0 {
		return img
	}

	if parent := el.Parent(); parent.Length() > 0 {
		if img = parent.Find("img").First(); img.Length() > 0 {
			return img
		}
	}

	return el.Closest(nearestBlockSelector).Find("img").First()
}

// linkFirst is the fallback for pages without any recognizable container:
// every meaningful link becomes a candidate.
func (l *Locator) linkFirst(s *Snapshot) []models.Product {
	if s.Containers.Length() > 0 {
		return nil
	}

	var products []models.Product
	s.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		l.guard("link", func() {
			href, _ := a.Attr("href")
			text := cleanText(a.Text())
			if href == "" || !textWithin(text, 4, 199) || l.isChrome(text) {
				return
			}

			image, _ := l.opts.ImageScope.Resolve(linkImage(a))

			products = append(products, models.Product{
				Name:     text,
				Price:    ExtractPrice(a.Closest(linkPriceScopeSelector)),
				Category: s.Category,
				URL:      href,
				Image:    image,
			})
		})
	})
	return products
}

// linkImage searches outward from a link: inside it, up to five ancestors,
// the enclosing table row, then the nearest identified block.
func linkImage(a *goquery.Selection) *goquery.Selection {
	img := a.Find("img").First()
	if img.Length() > 0 {
		return img
	}

	current := a.Parent()
	for depth := 0; depth < maxAncestorDepth && current.Length() > 0; depth++ {
		if img = current.Find("img").First(); img.Length() > 0 {
			return img
		}
		current = current.Parent()
	}

	if row := a.Closest("tr"); row.Length() > 0 {
		if img = row.Find("img").First(); img.Length() > 0 {
			return img
		}
	}

	return a.Closest(nearestBlockSelector).Find("img").First()
}
