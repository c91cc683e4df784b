// Package models defines the data structures shared across the harvest
// pipeline: hierarchy trees, section manifests, extraction outcomes,
// version records and reconciliation bookkeeping.
package models

// NodeKind is the semantic hierarchy level of a tree node.
type NodeKind string

const (
	KindRoot         NodeKind = "root"
	KindDivision     NodeKind = "division"
	KindPart         NodeKind = "part"
	KindTitle        NodeKind = "title"
	KindChapter      NodeKind = "chapter"
	KindArticle      NodeKind = "article"
	KindUnclassified NodeKind = "unclassified"
)

// LevelKinds lists the non-root kinds in descending customary order.
// Individual corpora may use any subset in any nesting order; this list
// exists only for ancestor-label annotation and stats reporting.
var LevelKinds = []NodeKind{KindDivision, KindPart, KindTitle, KindChapter, KindArticle}

// SectionRange is the inclusive span of section numbers a node covers,
// as printed in the source markup (e.g. "100" - "107.5"). Section numbers
// may carry letters and decimals, so bounds are kept as strings.
type SectionRange struct {
	Low  string `yaml:"low" json:"low"`
	High string `yaml:"high" json:"high"`
}

// HierarchyNode is one node of a corpus hierarchy tree. Children are in
// document order, which is not necessarily numeric order (a "5.5" part may
// be interleaved between "5" and "6"). Trees are built once per harvest run
// and not mutated afterwards.
type HierarchyNode struct {
	Kind     NodeKind         `yaml:"kind" json:"kind"`
	Number   string           `yaml:"number,omitempty" json:"number,omitempty"`
	Title    string           `yaml:"title" json:"title"`
	RawLabel string           `yaml:"raw_label,omitempty" json:"raw_label,omitempty"`
	Range    *SectionRange    `yaml:"section_range,omitempty" json:"section_range,omitempty"`
	Children []*HierarchyNode `yaml:"children,omitempty" json:"children,omitempty"`

	// Depth is the source depth signal the node was built from. Depth
	// values need not be consecutive: an indentation step can skip levels,
	// and the tree preserves what the markup said.
	Depth int `yaml:"depth,omitempty" json:"depth,omitempty"`

	// InheritedKind marks nodes whose label matched no known keyword and
	// whose kind was taken from the nearest open ancestor. These are
	// surfaced in stats for operator review.
	InheritedKind bool `yaml:"inherited_kind,omitempty" json:"inherited_kind,omitempty"`
}

// TreeStats summarizes a built hierarchy tree.
type TreeStats struct {
	NodeCount     int              `yaml:"node_count" json:"node_count"`
	NodesByKind   map[NodeKind]int `yaml:"nodes_by_kind" json:"nodes_by_kind"`
	MaxDepth      int              `yaml:"max_depth" json:"max_depth"`
	InheritedKind int              `yaml:"inherited_kind" json:"inherited_kind"`
}
