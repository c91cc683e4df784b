// Package artifacts handles on-disk storage of harvest artifacts: raw
// section HTML, hierarchy snapshots and run reports.
//
// Layout: <base>/<corpus>/sections/<section>.html for raw pages, and
// <base>/<corpus>/<name> for corpus-level artifacts. The database stores
// outcomes and bookkeeping; disk stores bulk content.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/statutelab/lexharvest/internal/common"
)

const DefaultBaseDir = "lexharvest-results"

// Manager stores and retrieves harvest artifacts with age-based freshness.
type Manager struct {
	baseDir string
	maxAge  time.Duration // zero means artifacts never go stale
}

// NewManager creates the base directory if needed.
func NewManager(baseDir string, maxAge time.Duration) (*Manager, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Manager{baseDir: baseDir, maxAge: maxAge}, nil
}

// MaxAge returns the freshness window.
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

func (m *Manager) corpusDir(corpusID string) string {
	return filepath.Join(m.baseDir, common.SanitizeID(corpusID))
}

func (m *Manager) sectionPath(corpusID, sectionID string) string {
	return filepath.Join(m.corpusDir(corpusID), "sections", common.SanitizeID(sectionID)+".html")
}

// GetRawHTML returns the cached raw page for a section and whether it is
// still fresh. A missing file is not an error.
func (m *Manager) GetRawHTML(corpusID, sectionID string) ([]byte, bool, error) {
	path := m.sectionPath(corpusID, sectionID)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to stat artifact: %w", err)
	}

	if m.maxAge > 0 && time.Since(info.ModTime()) > m.maxAge {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, true, nil
}

// SetRawHTML stores the raw page for a section.
func (m *Manager) SetRawHTML(corpusID, sectionID string, data []byte) error {
	path := m.sectionPath(corpusID, sectionID)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create sections directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// WriteCorpusArtifact stores a corpus-level artifact (hierarchy snapshot,
// manifest dump, run report) and returns its path and content hash.
func (m *Manager) WriteCorpusArtifact(corpusID, name string, data []byte) (string, string, error) {
	dir := m.corpusDir(corpusID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", "", fmt.Errorf("failed to create corpus directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, common.ContentHash(data), nil
}
