// Package hierarchy builds a corpus hierarchy tree from an ordered stream
// of (depth, label) records using a depth-keyed stack.
//
// Corpora disagree about nesting: one code nests PART>TITLE>CHAPTER>ARTICLE,
// another DIVISION>CHAPTER>ARTICLE. The builder therefore never maps kinds
// to depths; only the relative depth of consecutive records decides where a
// node attaches.
package hierarchy

import (
	"fmt"
	"log/slog"

	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/classifier"
)

// Record is one hierarchy heading in document order.
type Record struct {
	Depth int
	Label string
	Range *models.SectionRange
}

// ClassifyFunc matches the classifier.Classify signature so tests can
// substitute a degenerate classifier.
type ClassifyFunc func(label string) (classifier.Result, bool)

// Builder assembles hierarchy trees.
type Builder struct {
	Classify ClassifyFunc
	Logger   *slog.Logger
}

// NewBuilder returns a Builder using the real classifier.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{Classify: classifier.Classify, Logger: logger}
}

type stackEntry struct {
	depth int
	node  *models.HierarchyNode
}

// Build consumes records in document order and returns the rooted tree.
// Depths must be positive; the synthetic root sits at depth 0.
func (b *Builder) Build(records []Record) (*models.HierarchyNode, error) {
	root := &models.HierarchyNode{Kind: models.KindRoot}
	stack := []stackEntry{{depth: 0, node: root}}

	for i, rec := range records {
		if rec.Depth <= 0 {
			return nil, fmt.Errorf("record %d (%q): depth must be positive, got %d", i, rec.Label, rec.Depth)
		}

		// Pop everything at or below the incoming depth.
		for len(stack) > 1 && stack[len(stack)-1].depth >= rec.Depth {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].node

		node := &models.HierarchyNode{RawLabel: rec.Label, Range: rec.Range, Depth: rec.Depth}
		if result, ok := b.Classify(rec.Label); ok {
			node.Kind = result.Kind
			node.Number = result.Number
			node.Title = result.Title
		} else {
			// Unknown vocabulary ("SUBPART", "SUBTITLE", ...): inherit the
			// nearest open ancestor's kind and flag the node for review
			// instead of dropping it.
			node.Kind = parent.Kind
			node.Title = rec.Label
			node.InheritedKind = true
			b.Logger.Warn("label matched no known kind, inheriting ancestor kind",
				"label", rec.Label, "inherited", string(parent.Kind), "depth", rec.Depth)
		}

		parent.Children = append(parent.Children, node)
		stack = append(stack, stackEntry{depth: rec.Depth, node: node})
	}

	return root, nil
}

// Flatten walks the tree pre-order and reproduces the (depth, label)
// sequence the tree was built from, including non-consecutive depths.
// Used for round-trip verification.
func Flatten(root *models.HierarchyNode) []Record {
	var records []Record
	var walk func(node *models.HierarchyNode)
	walk = func(node *models.HierarchyNode) {
		for _, child := range node.Children {
			records = append(records, Record{Depth: child.Depth, Label: child.RawLabel, Range: child.Range})
			walk(child)
		}
	}
	walk(root)
	return records
}

// Stats computes tree statistics by a full walk. MaxDepth reports the
// deepest source depth, not the tree height.
func Stats(root *models.HierarchyNode) models.TreeStats {
	stats := models.TreeStats{NodesByKind: make(map[models.NodeKind]int)}
	var walk func(node *models.HierarchyNode)
	walk = func(node *models.HierarchyNode) {
		for _, child := range node.Children {
			stats.NodeCount++
			stats.NodesByKind[child.Kind]++
			if child.InheritedKind {
				stats.InheritedKind++
			}
			if child.Depth > stats.MaxDepth {
				stats.MaxDepth = child.Depth
			}
			walk(child)
		}
	}
	walk(root)
	return stats
}
