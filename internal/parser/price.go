package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const priceSelector = `[class*="price"], [id*="price"], [id*="Price"], [class*="cost"]`

var pricePattern = regexp.MustCompile(`\d[\d,.]*`)

// ExtractPrice returns the first numeric substring of the first price-labelled
// element inside sel. The value is kept as an opaque string.
func ExtractPrice(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}

	el := sel.Find(priceSelector).First()
	if el.Length() == 0 {
		return ""
	}

	return ParsePrice(el.Text())
}

func ParsePrice(text string) string {
	match := pricePattern.FindString(strings.TrimSpace(text))
	return strings.TrimRight(match, ".,")
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textWithin(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && n <= max
}
