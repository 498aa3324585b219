package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// imageAttributes is the lookup order for an image source. Explicit
// src-style attributes win over the regex-parsed inline style.
var imageAttributes = []string{
	"src",
	"data-src",
	"data-lazy-src",
	"data-original",
	"data-srcset",
	"data-lazy",
	"srcset",
}

var styleURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")\s]+)['"]?\s*\)`)

// ResolveImage returns the best known source reference of an image element.
func ResolveImage(sel *goquery.Selection) (src string, ok bool) {
	if sel == nil || sel.Length() == 0 {
		return "", false
	}
	defer func() {
		if recover() != nil {
			src, ok = "", false
		}
	}()

	el := sel.First()
	for _, attr := range imageAttributes {
		if value, exists := el.Attr(attr); exists {
			if value = strings.TrimSpace(value); value != "" {
				return value, true
			}
		}
	}

	if style, exists := el.Attr("style"); exists {
		if m := styleURLPattern.FindStringSubmatch(style); len(m) > 1 {
			return m[1], true
		}
	}

	return "", false
}

// ImageScope restricts which images count as product photos. The zero value
// accepts every image.
type ImageScope struct {
	// Wrappers are selectors of an ancestor that must enclose the image.
	Wrappers []string
	// IDPrefixes are accepted image id prefixes.
	IDPrefixes []string
}

func (s ImageScope) empty() bool {
	return len(s.Wrappers) == 0 && len(s.IDPrefixes) == 0
}

func (s ImageScope) Contains(img *goquery.Selection) bool {
	if s.empty() {
		return true
	}
	if img == nil || img.Length() == 0 {
		return false
	}

	if id, ok := img.Attr("id"); ok {
		for _, prefix := range s.IDPrefixes {
			if strings.HasPrefix(id, prefix) {
				return true
			}
		}
	}
	for _, wrapper := range s.Wrappers {
		if img.Closest(wrapper).Length() > 0 {
			return true
		}
	}
	return false
}

// Resolve applies the scope and then ResolveImage.
func (s ImageScope) Resolve(img *goquery.Selection) (string, bool) {
	if !s.Contains(img) {
		return "", false
	}
	return ResolveImage(img)
}
