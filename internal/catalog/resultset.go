package catalog

import (
	"strings"

	"github.com/maltedev/weft-scraper/internal/models"
)

// DefaultPlaceholders are images the storefront substitutes when a product
// has no photo (the store logo).
var DefaultPlaceholders = []string{
	"Q659875_80_40.png",
	"productsimages/mfrimages/thumbs/Q659875_80_40.png",
}

type Rejection string

const (
	Accepted           Rejection = ""
	RejectNoImage      Rejection = "no_image"
	RejectNoPrice      Rejection = "no_price"
	RejectPlaceholder  Rejection = "placeholder_image"
	RejectDuplicate    Rejection = "duplicate_image"
	RejectLimitReached Rejection = "limit_reached"
)

// ResultSet accumulates admitted products in discovery order. No two
// products in it share an image.
type ResultSet struct {
	products     []models.Product
	seen         map[string]struct{}
	placeholders []string
	max          int
}

// NewResultSet creates an accumulator. max <= 0 means unbounded.
func NewResultSet(max int, placeholders []string) *ResultSet {
	return &ResultSet{
		seen:         make(map[string]struct{}),
		placeholders: placeholders,
		max:          max,
	}
}

// Admit appends p when it is complete, not a placeholder, carries an unseen
// image and the set is not full. The image is stored trimmed.
func (r *ResultSet) Admit(p models.Product) bool {
	if r.Check(p) != Accepted {
		return false
	}
	p.Image = strings.TrimSpace(p.Image)
	r.products = append(r.products, p)
	r.seen[p.Image] = struct{}{}
	return true
}

// Check explains why p would be rejected without changing the set.
func (r *ResultSet) Check(p models.Product) Rejection {
	image := strings.TrimSpace(p.Image)
	switch {
	case image == "":
		return RejectNoImage
	case strings.TrimSpace(p.Price) == "":
		return RejectNoPrice
	case r.isPlaceholder(image):
		return RejectPlaceholder
	}
	if _, dup := r.seen[image]; dup {
		return RejectDuplicate
	}
	if r.Full() {
		return RejectLimitReached
	}
	return Accepted
}

// Full reports whether a configured maximum has been reached.
func (r *ResultSet) Full() bool {
	return r.max > 0 && len(r.products) >= r.max
}

func (r *ResultSet) Len() int {
	return len(r.products)
}

func (r *ResultSet) Max() int {
	return r.max
}

// Products returns a copy of the admitted products.
func (r *ResultSet) Products() []models.Product {
	out := make([]models.Product, len(r.products))
	copy(out, r.products)
	return out
}

// Finalize re-checks image uniqueness over the whole set and returns the
// surviving products in order.
func (r *ResultSet) Finalize() []models.Product {
	images := make(map[string]struct{}, len(r.products))
	out := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		image := strings.TrimSpace(p.Image)
		if image == "" {
			continue
		}
		if _, dup := images[image]; dup {
			continue
		}
		images[image] = struct{}{}
		out = append(out, p)
	}
	if r.max > 0 && len(out) > r.max {
		out = out[:r.max]
	}
	return out
}

func (r *ResultSet) isPlaceholder(image string) bool {
	for _, placeholder := range r.placeholders {
		if placeholder != "" && strings.Contains(image, placeholder) {
			return true
		}
	}
	return false
}
