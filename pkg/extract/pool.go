// Package extract runs the bounded-concurrency extraction pass over a
// section manifest: fetch each section, split it into body and history,
// classify single- vs multi-version, and durably persist every outcome.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/artifacts"
	"github.com/statutelab/lexharvest/pkg/content"
	"github.com/statutelab/lexharvest/pkg/fetcher"
)

// DefaultVersionSelectorMarker is the path fragment the publisher
// redirects to when a section has multiple versions.
const DefaultVersionSelectorMarker = "versionSelectionMenu"

// FetchService is the opaque fetch boundary.
type FetchService interface {
	Fetch(ctx context.Context, url string) (*fetcher.Result, error)
}

// OutcomeStore persists terminal outcomes and access records. Writes must
// be idempotent upserts keyed by (corpus, section).
type OutcomeStore interface {
	UpsertOutcome(corpusID string, outcome models.SectionOutcome) error
	RecordAccess(corpusID, sectionID string, statusCode int, errorClass string, success bool) error
}

// Pool is a bounded worker pool over manifest entries. Workers share no
// mutable state beyond the results channel and the progress counter.
type Pool struct {
	Fetch      FetchService
	Store      OutcomeStore
	Logger     *slog.Logger
	Cache      *artifacts.Manager // optional raw-HTML cache
	ForceFetch bool

	// VersionSelectorMarker overrides the redirect detection fragment;
	// empty uses the default.
	VersionSelectorMarker string

	processed atomic.Int64
}

// Processed returns the number of entries that reached a durably persisted
// terminal outcome in this pool's lifetime.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

type job struct {
	entry models.ManifestEntry
}

type result struct {
	outcome models.SectionOutcome
}

// Extract processes entries with the given concurrency and returns the
// outcome per section id. Per-section failures never abort the pool; the
// returned error is reserved for invalid arguments. On context
// cancellation, in-flight workers finish their current section, written
// outcomes remain valid, and remaining entries are simply not attempted —
// a later reconcile pass picks them up through gap detection.
func (p *Pool) Extract(ctx context.Context, corpusID string, entries []models.ManifestEntry, concurrency int) (map[string]models.SectionOutcome, error) {
	if concurrency <= 0 {
		return nil, errors.New("concurrency must be positive")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency > len(entries) && len(entries) > 0 {
		concurrency = len(entries)
	}

	logger.Info("starting extraction pass",
		"corpus", corpusID, "sections", len(entries), "workers", concurrency)

	jobs := make(chan job, len(entries))
	results := make(chan result, len(entries))

	var wg sync.WaitGroup
	for w := 1; w <= concurrency; w++ {
		wg.Add(1)
		go p.worker(ctx, w, logger, corpusID, &wg, jobs, results)
	}

	for _, entry := range entries {
		jobs <- job{entry: entry}
	}
	close(jobs)

	wg.Wait()
	close(results)

	outcomes := make(map[string]models.SectionOutcome, len(entries))
	for r := range results {
		outcomes[r.outcome.SectionID] = r.outcome
	}

	logger.Info("extraction pass finished",
		"corpus", corpusID, "processed", len(outcomes), "of", len(entries))
	return outcomes, nil
}

func (p *Pool) worker(ctx context.Context, id int, logger *slog.Logger, corpusID string, wg *sync.WaitGroup, jobs <-chan job, results chan<- result) {
	defer wg.Done()
	for j := range jobs {
		// Cancellation stops new work; the current section is never
		// abandoned halfway.
		select {
		case <-ctx.Done():
			return
		default:
		}

		outcome := p.processEntry(ctx, id, logger, corpusID, j.entry)
		if err := p.Store.UpsertOutcome(corpusID, outcome); err != nil {
			// Without a durable record the section must stay in the gap;
			// reporting the outcome here would claim a success the store
			// cannot back. The next reconcile pass recomputes it.
			logger.Error("failed to persist outcome",
				"worker_id", id, "section", j.entry.SectionID, "error", err)
			continue
		}
		p.processed.Add(1)
		results <- result{outcome: outcome}
	}
}

func (p *Pool) processEntry(ctx context.Context, id int, logger *slog.Logger, corpusID string, entry models.ManifestEntry) models.SectionOutcome {
	outcome := models.SectionOutcome{SectionID: entry.SectionID, State: models.StateDiscovered}
	_ = outcome.Transition(models.StateFetching)

	body, resolvedURL, fetchErr := p.fetchSection(ctx, corpusID, entry)
	if fetchErr != nil {
		class := models.FailurePermanent
		if fetcher.IsTransient(fetchErr) {
			class = models.FailureTransient
		}
		logger.Warn("section fetch failed",
			"worker_id", id, "section", entry.SectionID, "class", class, "error", fetchErr)
		if err := p.Store.RecordAccess(corpusID, entry.SectionID, 0, class, false); err != nil {
			logger.Warn("failed to record access", "section", entry.SectionID, "error", err)
		}
		_ = outcome.Fail(class, fetchErr.Error())
		return outcome
	}

	if err := p.Store.RecordAccess(corpusID, entry.SectionID, 200, "", true); err != nil {
		logger.Warn("failed to record access", "section", entry.SectionID, "error", err)
	}

	marker := p.VersionSelectorMarker
	if marker == "" {
		marker = DefaultVersionSelectorMarker
	}
	if strings.Contains(resolvedURL, marker) {
		// Multi-version section: the resolver parses the selector page;
		// the pool only flags it.
		_ = outcome.Transition(models.StateMultiVersionDetected)
		logger.Info("multi-version section detected",
			"worker_id", id, "section", entry.SectionID, "resolved_url", resolvedURL)
		return outcome
	}

	section, err := content.Parse(entry.FetchAddress, body)
	if err != nil {
		// Parse failures are usually transient render issues upstream;
		// retry them like transient fetch failures.
		logger.Warn("section parse failed",
			"worker_id", id, "section", entry.SectionID, "error", err)
		_ = outcome.Fail(models.FailureParse, err.Error())
		return outcome
	}

	_ = outcome.Transition(models.StateSingleVersionComplete)
	outcome.Body = section.Body
	outcome.History = section.History
	return outcome
}

// fetchSection returns the raw page, preferring a fresh cached artifact.
// Cached pages report the fetch address as resolved URL; version-selector
// redirects are never cached, so the marker check still works.
func (p *Pool) fetchSection(ctx context.Context, corpusID string, entry models.ManifestEntry) ([]byte, string, error) {
	if p.Cache != nil && !p.ForceFetch {
		if data, fresh, err := p.Cache.GetRawHTML(corpusID, entry.SectionID); err == nil && fresh {
			return data, entry.FetchAddress, nil
		}
	}

	res, err := p.Fetch.Fetch(ctx, entry.FetchAddress)
	if err != nil {
		return nil, "", err
	}

	marker := p.VersionSelectorMarker
	if marker == "" {
		marker = DefaultVersionSelectorMarker
	}
	if p.Cache != nil && !strings.Contains(res.ResolvedURL, marker) {
		if err := p.Cache.SetRawHTML(corpusID, entry.SectionID, res.Body); err != nil && p.Logger != nil {
			p.Logger.Warn("failed to cache raw page", "section", entry.SectionID, "error", err)
		}
	}
	return res.Body, res.ResolvedURL, nil
}
