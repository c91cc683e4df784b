// Package harvest wires the CLI verbs: harvest runs the full pipeline for
// the configured corpora, reconcile closes gaps in a previous run, and
// status reports per-corpus progress.
package harvest

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/artifacts"
	"github.com/statutelab/lexharvest/pkg/db"
	"github.com/statutelab/lexharvest/pkg/extract"
	"github.com/statutelab/lexharvest/pkg/fetcher"
	"github.com/statutelab/lexharvest/pkg/reconcile"
	"github.com/statutelab/lexharvest/pkg/renderer"
	"github.com/statutelab/lexharvest/pkg/versions"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func newLogger(c *cli.Context) *slog.Logger {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// env is the shared runtime every verb needs: config, database, artifact
// store, and fetcher.
type env struct {
	logger   *slog.Logger
	config   *models.Config
	database *db.DB
	manager  *artifacts.Manager
	fetch    *fetcher.Fetcher
	workers  int
}

func setup(c *cli.Context, logger *slog.Logger) (*env, error) {
	config, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	database, err := db.Open(c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.InitSchema(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	outputDir := config.OutputDir
	if c.IsSet("output-dir") {
		outputDir = c.String("output-dir")
	}
	maxAge, err := config.ParseMaxAge()
	if err != nil {
		database.Close()
		return nil, err
	}
	manager, err := artifacts.NewManager(outputDir, maxAge)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	workers := config.Workers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}

	return &env{
		logger:   logger,
		config:   config,
		database: database,
		manager:  manager,
		fetch:    fetcher.NewFetcher(),
		workers:  workers,
	}, nil
}

// selectedCorpora resolves the --corpus flag against the config; no flag
// means every configured corpus.
func (e *env) selectedCorpora(c *cli.Context) ([]models.CorpusConfig, error) {
	if !c.IsSet("corpus") {
		if len(e.config.Corpora) == 0 {
			return nil, fmt.Errorf("no corpora configured")
		}
		return e.config.Corpora, nil
	}
	corpus, err := e.config.Corpus(c.String("corpus"))
	if err != nil {
		return nil, err
	}
	return []models.CorpusConfig{*corpus}, nil
}

// extractor builds the reconcile-capable extraction pass: the worker pool
// plus a version resolver for sections that land on a selector page.
func (e *env) extractor(force bool) *resolvingExtractor {
	return &resolvingExtractor{
		pool: &extract.Pool{
			Fetch:      e.fetch,
			Store:      e.database,
			Logger:     e.logger,
			Cache:      e.manager,
			ForceFetch: force,
		},
		resolver: &versions.Resolver{
			Fetch:    e.fetch,
			Renderer: renderer.NewHTTPRenderer(),
			Logger:   e.logger,
		},
		store:  e.database,
		logger: e.logger,
	}
}

// HarvestAction runs the full pipeline for each selected corpus: hierarchy
// page, tree, manifest, extraction pool, version resolution, and a
// reconciliation sweep, finishing with a run report artifact.
func HarvestAction(c *cli.Context) error {
	logger := newLogger(c)

	e, err := setup(c, logger)
	if err != nil {
		logger.Error("harvest setup failed", "error", err)
		os.Exit(2)
	}
	defer e.database.Close()

	corpora, err := e.selectedCorpora(c)
	if err != nil {
		return err
	}

	failures := 0
	for _, corpus := range corpora {
		report, err := harvestCorpus(c.Context, e, corpus, c.Bool("force-fetch"))
		if err != nil {
			// A hierarchy-level failure sinks only this corpus.
			logger.Error("corpus harvest failed", "corpus", corpus.ID, "error", err)
			failures++
			continue
		}

		data, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal run report: %w", err)
		}
		path, hash, err := e.manager.WriteCorpusArtifact(corpus.ID, "run_report.yaml", data)
		if err != nil {
			return fmt.Errorf("failed to write run report: %w", err)
		}
		logger.Info("corpus harvested",
			"corpus", corpus.ID, "report", path, "hash", hash, "complete", report.Reconciliation.Complete)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d corpora failed", failures, len(corpora))
	}
	return nil
}

// ReconcileAction re-runs only the gap of an already-harvested corpus and
// prints the resulting report as YAML.
func ReconcileAction(c *cli.Context) error {
	logger := newLogger(c)

	e, err := setup(c, logger)
	if err != nil {
		logger.Error("reconcile setup failed", "error", err)
		os.Exit(2)
	}
	defer e.database.Close()

	corpora, err := e.selectedCorpora(c)
	if err != nil {
		return err
	}

	maxAttempts := e.config.MaxAttempts
	if c.IsSet("max-attempts") {
		maxAttempts = c.Int("max-attempts")
	}

	controller := &reconcile.Controller{
		Extractor: e.extractor(c.Bool("force-fetch")),
		Store:     e.database,
		Logger:    logger,
	}

	for _, corpus := range corpora {
		entries, err := e.database.GetManifest(corpus.ID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("corpus %s has no manifest; run harvest first", corpus.ID)
		}

		report, err := controller.Reconcile(c.Context, corpus.ID, entries, maxAttempts, e.config.ConcurrencySchedule)
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		fmt.Print(string(out))
	}
	return nil
}

// StatusAction prints a YAML status summary per corpus.
func StatusAction(c *cli.Context) error {
	logger := newLogger(c)

	database, err := db.Open(c.String("db"))
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(2)
	}
	defer database.Close()
	if err := database.InitSchema(); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	var ids []string
	if c.IsSet("corpus") {
		ids = []string{c.String("corpus")}
	} else {
		ids, err = database.ListCorpora()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No corpora stored yet. Run harvest first.")
			return nil
		}
	}

	type statusLine struct {
		CorpusID       string                         `yaml:"corpus_id"`
		Name           string                         `yaml:"name,omitempty"`
		ManifestCount  int                            `yaml:"manifest_count"`
		States         map[models.OutcomeState]int    `yaml:"states,omitempty"`
		CompletionRate float64                        `yaml:"completion_rate"`
		Reconciled     bool                           `yaml:"reconciled"`
		LastAttempts   []models.ReconciliationAttempt `yaml:"last_attempts,omitempty"`
	}

	var lines []statusLine
	for _, id := range ids {
		summary, err := database.GetCorpusSummary(id)
		if err != nil {
			return err
		}
		attempts, err := database.GetReconciliationAttempts(id)
		if err != nil {
			return err
		}
		if len(attempts) > 5 {
			attempts = attempts[len(attempts)-5:]
		}
		lines = append(lines, statusLine{
			CorpusID:       summary.CorpusID,
			Name:           summary.Name,
			ManifestCount:  summary.ManifestCount,
			States:         summary.StateCounts,
			CompletionRate: summary.CompletionRate,
			Reconciled:     summary.Reconciled,
			LastAttempts:   attempts,
		})
	}

	out, err := yaml.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// RunReport is the per-corpus YAML artifact summarizing one harvest run.
type RunReport struct {
	CorpusID       string                       `yaml:"corpus_id"`
	Name           string                       `yaml:"name"`
	StartedAt      time.Time                    `yaml:"started_at"`
	Duration       string                       `yaml:"duration"`
	Hierarchy      models.TreeStats             `yaml:"hierarchy"`
	ManifestCount  int                          `yaml:"manifest_count"`
	States         map[models.OutcomeState]int  `yaml:"states"`
	Reconciliation *models.ReconciliationReport `yaml:"reconciliation"`
}
