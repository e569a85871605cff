package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// plainText reduces an HTML fragment to its visible text so documents carry
// a search-friendly copy next to the raw markup. Unparseable fragments yield
// an empty string.
func plainText(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
