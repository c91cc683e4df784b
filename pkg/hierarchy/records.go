package hierarchy

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/markup"
)

// NodeSelector matches hierarchy heading elements on the expanded corpus
// page.
const NodeSelector = "div.hierarchy-node"

// rangePattern matches a bracketed section range annotation in a label,
// e.g. "[307 - 1062.20]" or "[23000-26490]".
var rangePattern = regexp.MustCompile(`\[([0-9][0-9a-zA-Z.]*)\s*-\s*([0-9][0-9a-zA-Z.]*)\]`)

// ParseRecords reads the hierarchy headings of an expanded corpus page in
// document order. This is the tree-building read pass; the manifest
// extractor performs its own independent pass over the same document.
func ParseRecords(doc *goquery.Document, depth markup.DepthSignal) []Record {
	if depth == nil {
		depth = markup.MarginDepth
	}

	var records []Record
	doc.Find(NodeSelector).Each(func(_ int, s *goquery.Selection) {
		label := normalizeLabel(s)
		if label == "" {
			return
		}
		records = append(records, Record{
			Depth: depth(s),
			Label: label,
			Range: ParseRange(label),
		})
	})
	return records
}

// ParseRange extracts a bracketed section range from a label, or nil.
func ParseRange(label string) *models.SectionRange {
	m := rangePattern.FindStringSubmatch(label)
	if m == nil {
		return nil
	}
	return &models.SectionRange{Low: m[1], High: m[2]}
}

// normalizeLabel returns the heading's own text with nested section links
// excluded, collapsed to single-space separation.
func normalizeLabel(s *goquery.Selection) string {
	clone := s.Clone()
	clone.Find("a").Remove()
	clone.Find(NodeSelector).Remove()
	return strings.Join(strings.Fields(clone.Text()), " ")
}
