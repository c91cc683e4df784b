// Package manifest enumerates the leaf sections of a corpus hierarchy page
// into a flat, ordered manifest.
//
// The extraction is independent of node classification: a classifier bug
// mislabels ancestor annotations at worst, it can never change which
// sections the manifest contains or where they are fetched from.
package manifest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/classifier"
	"github.com/statutelab/lexharvest/pkg/markup"
)

// Defaults for the publisher's hierarchy page markup.
const (
	DefaultNodeSelector = "div.hierarchy-node"
	DefaultSectionParam = "sectionNum"
)

// Options configures an extraction pass.
type Options struct {
	CorpusID string

	// NodeSelector matches hierarchy heading elements; SectionParam names
	// the query parameter carrying the section identifier on leaf links.
	NodeSelector string
	SectionParam string

	// Depth is the depth-signal seam; nil uses markup.MarginDepth.
	Depth markup.DepthSignal

	// Classify annotates ancestor labels with level names. It is
	// best-effort only: a nil or degenerate classifier leaves entries
	// without level annotations but otherwise identical.
	Classify func(label string) (classifier.Result, bool)
}

func (o *Options) fill() {
	if o.NodeSelector == "" {
		o.NodeSelector = DefaultNodeSelector
	}
	if o.SectionParam == "" {
		o.SectionParam = DefaultSectionParam
	}
	if o.Depth == nil {
		o.Depth = markup.MarginDepth
	}
	if o.Classify == nil {
		o.Classify = classifier.Classify
	}
}

type openLabel struct {
	depth int
	label string
	level string // classifier level name, "" when unclassified
}

// Extract walks the document once in document order, tracking the
// currently open label stack, and records every leaf section link it
// encounters. Duplicate (corpus, section) pairs are an input error.
func Extract(doc *goquery.Document, opts Options) ([]models.ManifestEntry, error) {
	opts.fill()

	var entries []models.ManifestEntry
	seen := make(map[string]bool)
	var stack []openLabel
	var walkErr error

	selector := opts.NodeSelector + ", a[href]"
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if walkErr != nil {
			return
		}

		if s.Is(opts.NodeSelector) {
			depth := opts.Depth(s)
			for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
				stack = stack[:len(stack)-1]
			}

			label := nodeLabel(s, opts.NodeSelector)
			if label == "" {
				return
			}
			level := ""
			if result, ok := opts.Classify(label); ok {
				level = string(result.Kind)
			}
			stack = append(stack, openLabel{depth: depth, label: label, level: level})
			return
		}

		href, _ := s.Attr("href")
		sectionID := markup.SectionID(href, opts.SectionParam)
		if sectionID == "" {
			return
		}

		if seen[sectionID] {
			walkErr = fmt.Errorf("duplicate section %s in corpus %s", sectionID, opts.CorpusID)
			return
		}
		seen[sectionID] = true

		entries = append(entries, models.ManifestEntry{
			CorpusID:       opts.CorpusID,
			SectionID:      sectionID,
			FetchAddress:   href,
			AncestorLabels: ancestorLabels(stack),
		})
	})

	if walkErr != nil {
		return nil, walkErr
	}
	return entries, nil
}

// ancestorLabels maps each classified level to the innermost open label of
// that level. Unclassified labels contribute nothing; the entry itself is
// unaffected.
func ancestorLabels(stack []openLabel) map[string]string {
	if len(stack) == 0 {
		return nil
	}
	labels := make(map[string]string)
	for _, open := range stack {
		if open.level != "" {
			labels[open.level] = open.label // innermost wins
		}
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}

// nodeLabel returns a heading's own text, excluding nested headings and
// links.
func nodeLabel(s *goquery.Selection, nodeSelector string) string {
	clone := s.Clone()
	clone.Find("a").Remove()
	clone.Find(nodeSelector).Remove()
	return strings.Join(strings.Fields(clone.Text()), " ")
}
