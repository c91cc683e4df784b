// Package content parses a fetched section page into its statute body and
// history note.
package content

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ErrUnparsable marks a page whose markup yielded no section text. The
// root cause is often a transient render issue on the publisher side, so
// callers treat it as retriable.
var ErrUnparsable = errors.New("section content unparsable")

// Selectors for the publisher's section page markup. The history note is
// the parenthesized amendment trailer, e.g.
// "(Amended by Stats. 2019, Ch. 497, Sec. 44.)".
const (
	bodySelector    = "div.section-content, div#sectionContent"
	historySelector = "div.section-history, p.history, i.history"
)

// Section is the parsed content of a single-version section page.
type Section struct {
	Body    string
	History string
}

// Parse splits a section page into body text and history text. When the
// expected content container is missing it falls back to readability
// extraction before giving up.
func Parse(pageURL string, html []byte) (*Section, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, err
	}

	history := normalize(doc.Find(historySelector).First().Text())

	body := normalize(doc.Find(bodySelector).First().Text())
	if body == "" {
		body = readableBody(pageURL, html)
	}
	if body == "" {
		return nil, ErrUnparsable
	}

	if history == "" {
		body, history = splitTrailingHistory(body)
	}

	return &Section{Body: body, History: history}, nil
}

// readableBody runs readability extraction as a fallback for pages whose
// container markup drifted.
func readableBody(pageURL string, html []byte) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(string(html)), parsed)
	if err != nil {
		return ""
	}
	return normalize(article.TextContent)
}

// splitTrailingHistory peels a trailing parenthesized amendment note off
// the body when the markup carried no dedicated history element.
func splitTrailingHistory(body string) (string, string) {
	open := strings.LastIndex(body, "(")
	if open < 0 || !strings.HasSuffix(body, ")") {
		return body, ""
	}

	trailer := body[open:]
	if !looksLikeHistory(trailer) {
		return body, ""
	}
	return strings.TrimSpace(body[:open]), trailer
}

var historyMarkers = []string{"Stats.", "Amended", "Added", "Repealed", "Enacted", "operative", "Effective"}

func looksLikeHistory(s string) bool {
	for _, marker := range historyMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
