package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/db"
	"github.com/statutelab/lexharvest/pkg/extract"
	"github.com/statutelab/lexharvest/pkg/hierarchy"
	"github.com/statutelab/lexharvest/pkg/manifest"
	"github.com/statutelab/lexharvest/pkg/markup"
	"github.com/statutelab/lexharvest/pkg/reconcile"
	"github.com/statutelab/lexharvest/pkg/versions"
	"gopkg.in/yaml.v3"
)

// harvestCorpus runs the pipeline for one corpus. A failure before the
// manifest exists is fatal for the corpus; from the extraction pool on,
// failures are per-section and land in outcomes instead.
func harvestCorpus(ctx context.Context, e *env, corpus models.CorpusConfig, force bool) (*RunReport, error) {
	logger := e.logger
	start := time.Now()
	logger.Info("harvesting corpus", "corpus", corpus.ID, "url", corpus.HierarchyURL)

	doc, _, err := e.fetch.FetchDocument(ctx, corpus.HierarchyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hierarchy page: %w", err)
	}

	records := hierarchy.ParseRecords(doc, markup.MarginDepth)
	if len(records) == 0 {
		return nil, fmt.Errorf("hierarchy page for %s has no recognizable nodes", corpus.ID)
	}
	root, err := hierarchy.NewBuilder(logger).Build(records)
	if err != nil {
		return nil, fmt.Errorf("failed to build hierarchy: %w", err)
	}
	stats := hierarchy.Stats(root)
	logger.Info("hierarchy built",
		"corpus", corpus.ID, "nodes", stats.NodeCount, "max_depth", stats.MaxDepth, "inherited", stats.InheritedKind)

	entries, err := manifest.Extract(doc, manifest.Options{CorpusID: corpus.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to extract manifest: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("hierarchy page for %s lists no sections", corpus.ID)
	}

	if err := e.database.UpsertCorpus(corpus.ID, corpus.Name, corpus.HierarchyURL); err != nil {
		return nil, err
	}
	if err := persistHierarchy(e, corpus.ID, root, stats); err != nil {
		return nil, err
	}
	if err := e.database.UpsertManifest(corpus.ID, entries); err != nil {
		return nil, err
	}
	logger.Info("manifest built", "corpus", corpus.ID, "sections", len(entries))

	extractor := e.extractor(force)
	if _, err := extractor.Extract(ctx, corpus.ID, entries, e.workers); err != nil {
		return nil, err
	}

	// Sweep whatever the first pass left behind.
	controller := &reconcile.Controller{Extractor: extractor, Store: e.database, Logger: logger}
	report, err := controller.Reconcile(ctx, corpus.ID, entries, e.config.MaxAttempts, e.config.ConcurrencySchedule)
	if err != nil {
		return nil, err
	}

	states := make(map[models.OutcomeState]int)
	final, err := e.database.GetOutcomes(corpus.ID)
	if err != nil {
		return nil, err
	}
	for _, outcome := range final {
		states[outcome.State]++
	}

	return &RunReport{
		CorpusID:       corpus.ID,
		Name:           corpus.Name,
		StartedAt:      start,
		Duration:       time.Since(start).Round(time.Millisecond).String(),
		Hierarchy:      stats,
		ManifestCount:  len(entries),
		States:         states,
		Reconciliation: report,
	}, nil
}

// persistHierarchy stores the tree and its stats as YAML, both in the
// database and as a corpus artifact.
func persistHierarchy(e *env, corpusID string, root *models.HierarchyNode, stats models.TreeStats) error {
	treeYAML, err := yaml.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to marshal hierarchy: %w", err)
	}
	statsYAML, err := yaml.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal tree stats: %w", err)
	}
	if err := e.database.UpsertHierarchy(corpusID, treeYAML, statsYAML); err != nil {
		return err
	}
	if _, _, err := e.manager.WriteCorpusArtifact(corpusID, "hierarchy.yaml", treeYAML); err != nil {
		return err
	}
	return nil
}

// resolvingExtractor runs the worker pool and then resolves any section
// the pool flagged as multi-version, so a single Extract call always
// drives sections to a terminal state. It satisfies the reconcile
// controller's extraction boundary.
type resolvingExtractor struct {
	pool     *extract.Pool
	resolver *versions.Resolver
	store    *db.DB
	logger   *slog.Logger
}

func (e *resolvingExtractor) Extract(ctx context.Context, corpusID string, entries []models.ManifestEntry, concurrency int) (map[string]models.SectionOutcome, error) {
	outcomes, err := e.pool.Extract(ctx, corpusID, entries, concurrency)
	if err != nil {
		return nil, err
	}

	addresses := make(map[string]string, len(entries))
	for _, entry := range entries {
		addresses[entry.SectionID] = entry.FetchAddress
	}

	for id, outcome := range outcomes {
		if outcome.State != models.StateMultiVersionDetected {
			continue
		}
		if err := outcome.Transition(models.StateResolvingVersions); err != nil {
			return nil, err
		}

		records, resolveErr := e.resolver.Resolve(ctx, id, addresses[id])
		if resolveErr != nil {
			_ = outcome.Fail(models.FailureSession, resolveErr.Error())
		} else {
			_ = outcome.Transition(models.StateMultiVersionComplete)
			outcome.Versions = records
		}

		if err := e.store.UpsertOutcome(corpusID, outcome); err != nil {
			e.logger.Error("failed to persist resolved outcome", "section", id, "error", err)
		}
		outcomes[id] = outcome
	}
	return outcomes, nil
}
