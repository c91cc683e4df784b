package models

// ManifestEntry is one leaf section in a corpus manifest: its identifier,
// where to fetch it, and the nearest enclosing label at each known ancestor
// level. Entries are kept in source document order; (CorpusID, SectionID)
// is unique within a manifest.
//
// AncestorLabels is best-effort annotation only. The extractor records the
// raw label text of the innermost open node per level; a misbehaving
// classifier can at worst mislabel levels, never change the entry count or
// fetch addresses.
type ManifestEntry struct {
	CorpusID     string            `yaml:"corpus_id" json:"corpus_id"`
	SectionID    string            `yaml:"section_id" json:"section_id"`
	FetchAddress string            `yaml:"fetch_address" json:"fetch_address"`
	AncestorLabels map[string]string `yaml:"ancestor_labels,omitempty" json:"ancestor_labels,omitempty"`
}

// SectionIDs returns the section identifiers of entries in manifest order.
func SectionIDs(entries []ManifestEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SectionID
	}
	return ids
}
