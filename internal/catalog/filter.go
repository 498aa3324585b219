package catalog

import (
	"strings"

	"github.com/maltedev/weft-scraper/internal/models"
)

// Default keyword sets for the Nitzat Haduvdevan storefront: fresh produce is
// excluded, packaged and dry goods are kept.
var (
	DefaultExcludeKeywords = []string{"פירות", "ירקות", "ירוקים", "נבטים", "ירקניה", "אגוז", "זרעים", "גרעינים"}
	DefaultIncludeKeywords = []string{
		"חטיפ", "דגנים", "קטניות", "פסטה", "לחמים", "מאפים",
		"ממרח", "שימור", "בוקר", "שוקולד", "חומרי", "אפייה", "בישול",
		"תבלינים", "קמח", "שמן", "סוכר", "מלח", "קקאו", "קוקוס", "רטב",
	}
)

type Filter struct {
	include []string
	exclude []string
}

func NewFilter(include, exclude []string) *Filter {
	return &Filter{
		include: normalize(include),
		exclude: normalize(exclude),
	}
}

// Keep reports whether a category label is relevant. Exclusion wins over
// inclusion.
func (f *Filter) Keep(label string) bool {
	name := strings.ToLower(label)
	for _, keyword := range f.exclude {
		if strings.Contains(name, keyword) {
			return false
		}
	}
	for _, keyword := range f.include {
		if strings.Contains(name, keyword) {
			return true
		}
	}
	return false
}

// Apply returns the relevant links in their original order.
func (f *Filter) Apply(links []models.CategoryLink) []models.CategoryLink {
	var kept []models.CategoryLink
	for _, link := range links {
		if f.Keep(link.Name) {
			kept = append(kept, link)
		}
	}
	return kept
}

func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			out = append(out, k)
		}
	}
	return out
}
