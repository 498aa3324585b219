package models

import (
	"fmt"
	"time"
)

// CategoryLink is a navigation entry discovered on the storefront.
type CategoryLink struct {
	Name   string `json:"name"`
	Target string `json:"url"`
}

// Product is a single extracted catalog record. Empty strings mean the
// field could not be found on the page.
type Product struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
	URL      string `json:"url"`
	Image    string `json:"image"`
}

// Artifact is the persisted result of one run.
type Artifact struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Count       int       `json:"count"`
	Products    []Product `json:"products"`
}

type RunSummary struct {
	Categories int `json:"categories"`
	Visited    int `json:"visited"`
	Failed     int `json:"failed"`
	Discovered int `json:"discovered"`
	Final      int `json:"final"`
}

func NewArtifact(products []Product, generatedAt time.Time) *Artifact {
	out := make([]Product, len(products))
	copy(out, products)
	return &Artifact{
		GeneratedAt: generatedAt.UTC(),
		Count:       len(out),
		Products:    out,
	}
}

// HasImage reports whether the product carries a non-empty image reference.
func (p *Product) HasImage() bool {
	return p.Image != ""
}

func (p *Product) HasPrice() bool {
	return p.Price != ""
}

// Categories returns the distinct category names of the artifact in
// first-seen order.
func (a *Artifact) Categories() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, p := range a.Products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		names = append(names, p.Category)
	}
	return names
}

func (a *Artifact) Validate() []string {
	var errors []string

	if a.Count != len(a.Products) {
		errors = append(errors, "count does not match number of products")
	}

	images := make(map[string]struct{}, len(a.Products))
	for i, p := range a.Products {
		if !p.HasImage() {
			errors = append(errors, fmt.Sprintf("product without image at position %d", i))
			continue
		}
		if !p.HasPrice() {
			errors = append(errors, fmt.Sprintf("product without price at position %d", i))
		}
		if _, dup := images[p.Image]; dup {
			errors = append(errors, "duplicate image "+p.Image)
		}
		images[p.Image] = struct{}{}
	}

	return errors
}
