// Package reconcile closes the gap between a corpus manifest and its
// persisted extraction outcomes. It re-runs only the missing or failed
// sections, backing off concurrency between attempts, and leaves an
// append-only audit trail of every attempt.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/statutelab/lexharvest/models"
)

// DefaultSchedule is the per-attempt concurrency ladder used when the
// config does not set one. Later attempts run slower on the theory that
// residual failures are rate-limit pressure.
var DefaultSchedule = []int{15, 8, 4}

// Extractor runs an extraction pass over a set of manifest entries.
type Extractor interface {
	Extract(ctx context.Context, corpusID string, entries []models.ManifestEntry, concurrency int) (map[string]models.SectionOutcome, error)
}

// Store is the persistence surface the controller needs.
type Store interface {
	GetOutcomes(corpusID string) (map[string]models.SectionOutcome, error)
	AppendReconciliationAttempt(corpusID, runID string, attempt models.ReconciliationAttempt) error
	SaveReconciliationReport(report *models.ReconciliationReport) error
}

// Controller drives reconciliation for one corpus at a time.
type Controller struct {
	Extractor Extractor
	Store     Store
	Logger    *slog.Logger
}

// Reconcile detects the gap between manifest and outcomes, retries it for
// up to maxAttempts passes, and saves a report. A corpus with no gap is a
// no-op: the report says complete and no attempt rows are written. A
// residual gap after the last attempt is reported, not returned as an
// error.
func (c *Controller) Reconcile(ctx context.Context, corpusID string, manifest []models.ManifestEntry, maxAttempts int, schedule []int) (*models.ReconciliationReport, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}

	report := &models.ReconciliationReport{
		CorpusID: corpusID,
		RunID:    uuid.New().String(),
	}

	gap, err := c.gap(corpusID, manifest)
	if err != nil {
		return nil, err
	}
	if len(gap) == 0 {
		logger.Info("corpus already complete, nothing to reconcile", "corpus", corpusID)
		report.Complete = true
		report.CompletionRate = 1.0
		if err := c.Store.SaveReconciliationReport(report); err != nil {
			return nil, fmt.Errorf("failed to save reconciliation report: %w", err)
		}
		return report, nil
	}

	for attempt := 1; attempt <= maxAttempts && len(gap) > 0; attempt++ {
		concurrency := scheduleConcurrency(schedule, attempt)
		logger.Info("reconciliation attempt",
			"corpus", corpusID, "attempt", attempt, "gap", len(gap), "concurrency", concurrency)

		start := time.Now()
		outcomes, err := c.Extractor.Extract(ctx, corpusID, gap, concurrency)
		if err != nil {
			return nil, fmt.Errorf("reconciliation attempt %d failed: %w", attempt, err)
		}

		record := models.ReconciliationAttempt{
			AttemptNumber:   attempt,
			ConcurrencyUsed: concurrency,
			SectionsRetried: models.SectionIDs(gap),
			Duration:        time.Since(start),
		}

		var remaining []models.ManifestEntry
		for _, entry := range gap {
			if outcome, ok := outcomes[entry.SectionID]; ok && outcome.State.Successful() {
				record.Succeeded = append(record.Succeeded, entry.SectionID)
				continue
			}
			record.Failed = append(record.Failed, entry.SectionID)
			remaining = append(remaining, entry)
		}

		if err := c.Store.AppendReconciliationAttempt(corpusID, report.RunID, record); err != nil {
			return nil, fmt.Errorf("failed to record reconciliation attempt: %w", err)
		}
		report.Attempts = append(report.Attempts, record)
		gap = remaining

		if ctx.Err() != nil {
			break
		}
	}

	report.Complete = len(gap) == 0
	report.Remaining = models.SectionIDs(gap)
	if len(manifest) > 0 {
		report.CompletionRate = float64(len(manifest)-len(gap)) / float64(len(manifest))
	} else {
		report.CompletionRate = 1.0
	}
	if err := c.Store.SaveReconciliationReport(report); err != nil {
		return nil, fmt.Errorf("failed to save reconciliation report: %w", err)
	}

	if report.Complete {
		logger.Info("reconciliation complete", "corpus", corpusID, "attempts", len(report.Attempts))
	} else {
		logger.Warn("reconciliation left a residual gap",
			"corpus", corpusID, "remaining", len(gap), "completion_rate", report.CompletionRate)
	}
	return report, nil
}

// gap returns the manifest entries without a successful persisted outcome,
// in manifest order. Sections stuck mid-flight from an interrupted run
// count as gaps too.
func (c *Controller) gap(corpusID string, manifest []models.ManifestEntry) ([]models.ManifestEntry, error) {
	outcomes, err := c.Store.GetOutcomes(corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes for %s: %w", corpusID, err)
	}

	var gap []models.ManifestEntry
	for _, entry := range manifest {
		if outcome, ok := outcomes[entry.SectionID]; ok && outcome.State.Successful() {
			continue
		}
		gap = append(gap, entry)
	}
	return gap, nil
}

// scheduleConcurrency picks the ladder rung for an attempt; attempts past
// the end of the schedule reuse its last entry.
func scheduleConcurrency(schedule []int, attempt int) int {
	idx := attempt - 1
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
