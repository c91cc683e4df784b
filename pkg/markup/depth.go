// Package markup isolates the publisher-specific quirks of the hierarchy
// page markup: how nesting depth is encoded and how section links carry
// their identifiers.
//
// Depth encoding is the fragile part. Some corpora emit a data-depth
// attribute, others only an inline left margin; a few mix both on one page.
// All of that fragility lives behind DepthSignal so per-corpus quirks swap
// one function, not the extractors.
package markup

import (
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// DepthSignal extracts the nesting depth of a hierarchy node element.
type DepthSignal func(*goquery.Selection) int

// IndentStep is the pixel width of one nesting level in margin-encoded
// markup.
const IndentStep = 20

var marginPattern = regexp.MustCompile(`margin-left:\s*([0-9]+)`)

// MarginDepth is the default depth signal: a data-depth attribute wins;
// otherwise the inline style's left margin divided by IndentStep. Elements
// with neither signal report depth 1.
func MarginDepth(s *goquery.Selection) int {
	if v, ok := s.Attr("data-depth"); ok {
		if depth, err := strconv.Atoi(v); err == nil && depth > 0 {
			return depth
		}
	}

	if style, ok := s.Attr("style"); ok {
		if m := marginPattern.FindStringSubmatch(style); m != nil {
			px, err := strconv.Atoi(m[1])
			if err == nil && px >= 0 {
				return px/IndentStep + 1
			}
		}
	}

	return 1
}

// SectionID extracts the section identifier from a link target's query
// parameters. Returns "" when the parameter is absent, which marks the
// anchor as a non-section link.
func SectionID(href, param string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get(param)
}
