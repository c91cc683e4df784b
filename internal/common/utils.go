// Package common holds small helpers shared across the harvest pipeline.
package common

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// ContentHash returns a short stable hash of content for artifact
// deduplication.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash[:8])
}

var invalidFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9._\-]+`)

// SanitizeID converts a corpus or section identifier into a filesystem-safe
// slug. Section ids like "5.5" and "73d" pass through unchanged.
func SanitizeID(id string) string {
	safe := invalidFilenameChar.ReplaceAllString(id, "_")
	return strings.Trim(safe, "_")
}
