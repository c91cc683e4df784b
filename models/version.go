package models

// VersionStatus classifies one version of a multi-version section.
type VersionStatus string

const (
	VersionCurrent    VersionStatus = "current"
	VersionFuture     VersionStatus = "future"
	VersionHistorical VersionStatus = "historical"
)

// VersionRecord is one version of a multi-version section. Records are kept
// in the document order of the publisher's disambiguation page, not date
// order: operative dates may be absent or unparseable, so OperativeDate is
// empty when no date could be recognized in the history text.
type VersionRecord struct {
	Ordinal       int           `yaml:"ordinal" json:"ordinal"`
	OperativeDate string        `yaml:"operative_date,omitempty" json:"operative_date,omitempty"`
	Content       string        `yaml:"content" json:"content"`
	History       string        `yaml:"history,omitempty" json:"history,omitempty"`
	Status        VersionStatus `yaml:"status" json:"status"`
}
