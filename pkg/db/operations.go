package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/statutelab/lexharvest/models"
)

// UpsertCorpus creates or refreshes a corpus record.
func (db *DB) UpsertCorpus(corpusID, name, hierarchyURL string) error {
	_, err := db.Exec(`
		INSERT INTO corpora (corpus_id, name, hierarchy_url)
		VALUES (?, ?, ?)
		ON CONFLICT(corpus_id) DO UPDATE SET
			name = excluded.name,
			hierarchy_url = excluded.hierarchy_url,
			updated_at = CURRENT_TIMESTAMP
	`, corpusID, name, hierarchyURL)
	if err != nil {
		return fmt.Errorf("failed to upsert corpus: %w", err)
	}
	return nil
}

// UpsertHierarchy stores the serialized hierarchy tree and its stats on
// the corpus record.
func (db *DB) UpsertHierarchy(corpusID string, hierarchyYAML, statsYAML []byte) error {
	result, err := db.Exec(`
		UPDATE corpora SET
			hierarchy_yaml = ?,
			stats_yaml = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE corpus_id = ?
	`, string(hierarchyYAML), string(statsYAML), corpusID)
	if err != nil {
		return fmt.Errorf("failed to upsert hierarchy: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("corpus %s not found", corpusID)
	}
	return nil
}

// UpsertManifest replaces the manifest for a corpus, preserving document
// order via the position column.
func (db *DB) UpsertManifest(corpusID string, entries []models.ManifestEntry) error {
	if _, err := db.Exec("DELETE FROM manifest_entries WHERE corpus_id = ?", corpusID); err != nil {
		return fmt.Errorf("failed to clear manifest: %w", err)
	}

	for i, entry := range entries {
		labels, err := json.Marshal(entry.AncestorLabels)
		if err != nil {
			return fmt.Errorf("failed to marshal ancestor labels: %w", err)
		}
		_, err = db.Exec(`
			INSERT INTO manifest_entries (corpus_id, section_id, position, fetch_address, ancestor_labels)
			VALUES (?, ?, ?, ?, ?)
		`, corpusID, entry.SectionID, i, entry.FetchAddress, string(labels))
		if err != nil {
			return fmt.Errorf("failed to insert manifest entry %s: %w", entry.SectionID, err)
		}
	}

	if _, err := db.Exec(`
		UPDATE corpora SET manifest_built = 1, updated_at = CURRENT_TIMESTAMP WHERE corpus_id = ?
	`, corpusID); err != nil {
		return fmt.Errorf("failed to flag manifest built: %w", err)
	}
	return nil
}

// GetManifest returns a corpus manifest in document order.
func (db *DB) GetManifest(corpusID string) ([]models.ManifestEntry, error) {
	rows, err := db.Query(`
		SELECT section_id, fetch_address, ancestor_labels
		FROM manifest_entries
		WHERE corpus_id = ?
		ORDER BY position
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to query manifest: %w", err)
	}
	defer rows.Close()

	var entries []models.ManifestEntry
	for rows.Next() {
		entry := models.ManifestEntry{CorpusID: corpusID}
		var labels sql.NullString
		if err := rows.Scan(&entry.SectionID, &entry.FetchAddress, &labels); err != nil {
			return nil, fmt.Errorf("failed to scan manifest entry: %w", err)
		}
		if labels.Valid && labels.String != "" && labels.String != "null" {
			if err := json.Unmarshal([]byte(labels.String), &entry.AncestorLabels); err != nil {
				return nil, fmt.Errorf("failed to unmarshal ancestor labels: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// UpsertOutcome durably persists one section outcome, replacing any prior
// version rows with the outcome's own.
func (db *DB) UpsertOutcome(corpusID string, outcome models.SectionOutcome) error {
	_, err := db.Exec(`
		INSERT INTO section_outcomes (corpus_id, section_id, state, body, history, failure_reason, failure_class, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(corpus_id, section_id) DO UPDATE SET
			state = excluded.state,
			body = excluded.body,
			history = excluded.history,
			failure_reason = excluded.failure_reason,
			failure_class = excluded.failure_class,
			updated_at = CURRENT_TIMESTAMP
	`, corpusID, outcome.SectionID, string(outcome.State), outcome.Body, outcome.History,
		outcome.FailureReason, outcome.FailureClass)
	if err != nil {
		return fmt.Errorf("failed to upsert outcome for %s: %w", outcome.SectionID, err)
	}

	// Always clear prior version rows: a section re-extracted from
	// multi-version to single-version (or failed) must not keep stale
	// versions attached.
	if _, err := db.Exec(`
		DELETE FROM section_versions WHERE corpus_id = ? AND section_id = ?
	`, corpusID, outcome.SectionID); err != nil {
		return fmt.Errorf("failed to clear versions for %s: %w", outcome.SectionID, err)
	}
	for _, v := range outcome.Versions {
		_, err := db.Exec(`
			INSERT INTO section_versions (corpus_id, section_id, ordinal, operative_date, status, content, history)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, corpusID, outcome.SectionID, v.Ordinal, NewNullString(v.OperativeDate), string(v.Status), v.Content, v.History)
		if err != nil {
			return fmt.Errorf("failed to insert version %d of %s: %w", v.Ordinal, outcome.SectionID, err)
		}
	}
	return nil
}

// GetOutcomes returns all persisted outcomes for a corpus, with version
// rows attached in ordinal order.
func (db *DB) GetOutcomes(corpusID string) (map[string]models.SectionOutcome, error) {
	rows, err := db.Query(`
		SELECT section_id, state, body, history, failure_reason, failure_class, updated_at
		FROM section_outcomes
		WHERE corpus_id = ?
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make(map[string]models.SectionOutcome)
	for rows.Next() {
		var o models.SectionOutcome
		var state string
		var body, history, reason, class sql.NullString
		var updatedAt time.Time
		if err := rows.Scan(&o.SectionID, &state, &body, &history, &reason, &class, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.State = models.OutcomeState(state)
		o.Body = body.String
		o.History = history.String
		o.FailureReason = reason.String
		o.FailureClass = class.String
		o.UpdatedAt = updatedAt
		outcomes[o.SectionID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := db.Query(`
		SELECT section_id, ordinal, operative_date, status, content, history
		FROM section_versions
		WHERE corpus_id = ?
		ORDER BY section_id, ordinal
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var sectionID, status string
		var operativeDate, history sql.NullString
		var v models.VersionRecord
		if err := vrows.Scan(&sectionID, &v.Ordinal, &operativeDate, &status, &v.Content, &history); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.OperativeDate = operativeDate.String
		v.History = history.String
		v.Status = models.VersionStatus(status)

		o, ok := outcomes[sectionID]
		if !ok {
			continue
		}
		o.Versions = append(o.Versions, v)
		outcomes[sectionID] = o
	}
	return outcomes, vrows.Err()
}

// RecordAccess records one fetch attempt.
func (db *DB) RecordAccess(corpusID, sectionID string, statusCode int, errorClass string, success bool) error {
	_, err := db.Exec(`
		INSERT INTO fetch_accesses (corpus_id, section_id, status_code, error_class, success)
		VALUES (?, ?, ?, ?, ?)
	`, corpusID, sectionID, statusCode, NewNullString(errorClass), success)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

// AppendReconciliationAttempt appends one audit row. Attempts are never
// updated or deleted.
func (db *DB) AppendReconciliationAttempt(corpusID, runID string, attempt models.ReconciliationAttempt) error {
	retried, err := json.Marshal(attempt.SectionsRetried)
	if err != nil {
		return fmt.Errorf("failed to marshal retried set: %w", err)
	}
	succeeded, err := json.Marshal(attempt.Succeeded)
	if err != nil {
		return fmt.Errorf("failed to marshal succeeded set: %w", err)
	}
	failed, err := json.Marshal(attempt.Failed)
	if err != nil {
		return fmt.Errorf("failed to marshal failed set: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO reconciliation_attempts
			(corpus_id, run_id, attempt_number, concurrency_used, sections_retried, succeeded, failed, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, corpusID, runID, attempt.AttemptNumber, attempt.ConcurrencyUsed,
		string(retried), string(succeeded), string(failed), attempt.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to append reconciliation attempt: %w", err)
	}
	return nil
}

// GetReconciliationAttempts returns the audit trail for a corpus in
// insertion order.
func (db *DB) GetReconciliationAttempts(corpusID string) ([]models.ReconciliationAttempt, error) {
	rows, err := db.Query(`
		SELECT attempt_number, concurrency_used, sections_retried, succeeded, failed, duration_ms
		FROM reconciliation_attempts
		WHERE corpus_id = ?
		ORDER BY attempt_id
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.ReconciliationAttempt
	for rows.Next() {
		var a models.ReconciliationAttempt
		var retried, succeeded, failed string
		var durationMs int64
		if err := rows.Scan(&a.AttemptNumber, &a.ConcurrencyUsed, &retried, &succeeded, &failed, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(retried), &a.SectionsRetried); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retried set: %w", err)
		}
		if err := json.Unmarshal([]byte(succeeded), &a.Succeeded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal succeeded set: %w", err)
		}
		if err := json.Unmarshal([]byte(failed), &a.Failed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed set: %w", err)
		}
		a.Duration = time.Duration(durationMs) * time.Millisecond
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// SaveReconciliationReport stores the final report for a corpus and flags
// its reconciliation stage.
func (db *DB) SaveReconciliationReport(report *models.ReconciliationReport) error {
	remaining, err := json.Marshal(report.Remaining)
	if err != nil {
		return fmt.Errorf("failed to marshal remaining set: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO reconciliation_reports (corpus_id, run_id, complete, completion_rate, remaining)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(corpus_id) DO UPDATE SET
			run_id = excluded.run_id,
			complete = excluded.complete,
			completion_rate = excluded.completion_rate,
			remaining = excluded.remaining,
			created_at = CURRENT_TIMESTAMP
	`, report.CorpusID, report.RunID, report.Complete, report.CompletionRate, string(remaining))
	if err != nil {
		return fmt.Errorf("failed to save reconciliation report: %w", err)
	}

	if _, err := db.Exec(`
		UPDATE corpora SET reconciled = ?, extraction_complete = 1, updated_at = CURRENT_TIMESTAMP
		WHERE corpus_id = ?
	`, report.Complete, report.CorpusID); err != nil {
		return fmt.Errorf("failed to flag reconciliation: %w", err)
	}
	return nil
}

// CorpusSummary is the status line for one corpus.
type CorpusSummary struct {
	CorpusID       string
	Name           string
	ManifestCount  int
	StateCounts    map[models.OutcomeState]int
	CompletionRate float64
	Reconciled     bool
}

// GetCorpusSummary aggregates the status of one corpus.
func (db *DB) GetCorpusSummary(corpusID string) (*CorpusSummary, error) {
	summary := &CorpusSummary{
		CorpusID:    corpusID,
		StateCounts: make(map[models.OutcomeState]int),
	}

	err := db.QueryRow("SELECT name, reconciled FROM corpora WHERE corpus_id = ?", corpusID).
		Scan(&summary.Name, &summary.Reconciled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("corpus %s not found", corpusID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get corpus: %w", err)
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM manifest_entries WHERE corpus_id = ?", corpusID).
		Scan(&summary.ManifestCount); err != nil {
		return nil, fmt.Errorf("failed to count manifest: %w", err)
	}

	rows, err := db.Query(`
		SELECT state, COUNT(*) FROM section_outcomes WHERE corpus_id = ? GROUP BY state
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	succeeded := 0
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		summary.StateCounts[models.OutcomeState(state)] = count
		if models.OutcomeState(state).Successful() {
			succeeded += count
		}
	}
	if summary.ManifestCount > 0 {
		summary.CompletionRate = float64(succeeded) / float64(summary.ManifestCount)
	}
	return summary, rows.Err()
}

// ListCorpora returns the ids of all stored corpora.
func (db *DB) ListCorpora() ([]string, error) {
	rows, err := db.Query("SELECT corpus_id FROM corpora ORDER BY corpus_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list corpora: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan corpus id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NewNullString creates a sql.NullString from a string value.
func NewNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
