package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/fetcher"
)

// fakeFetch serves canned pages keyed by URL and can fail chosen URLs.
type fakeFetch struct {
	mu          sync.Mutex
	pages       map[string]fakePage
	failures    map[string]error
	calls       int
	maxInFlight int
	inFlight    atomic.Int64
	rateLimit   int64 // fail transiently when in-flight exceeds this (0 = off)
}

type fakePage struct {
	body        string
	resolvedURL string
}

func (f *fakeFetch) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.calls++
	if int(cur) > f.maxInFlight {
		f.maxInFlight = int(cur)
	}
	failure := f.failures[url]
	page, ok := f.pages[url]
	rateLimit := f.rateLimit
	f.mu.Unlock()

	if rateLimit > 0 && cur > rateLimit {
		return nil, fmt.Errorf("%w: rate limited (status 429)", fetcher.ErrTransient)
	}
	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, fmt.Errorf("%w: status 404 for %s", fetcher.ErrPermanent, url)
	}
	resolved := page.resolvedURL
	if resolved == "" {
		resolved = url
	}
	return &fetcher.Result{ResolvedURL: resolved, Body: []byte(page.body), Status: 200}, nil
}

// memStore is an in-memory OutcomeStore that counts persist calls and can
// reject writes for chosen sections.
type memStore struct {
	mu          sync.Mutex
	outcomes    map[string]models.SectionOutcome
	accesses    int
	failUpserts map[string]bool
}

func newMemStore() *memStore {
	return &memStore{outcomes: make(map[string]models.SectionOutcome)}
}

func (s *memStore) UpsertOutcome(corpusID string, outcome models.SectionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpserts[outcome.SectionID] {
		return fmt.Errorf("disk full writing %s", outcome.SectionID)
	}
	s.outcomes[outcome.SectionID] = outcome
	return nil
}

func (s *memStore) RecordAccess(corpusID, sectionID string, statusCode int, errorClass string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accesses++
	return nil
}

func sectionPage(id string) string {
	return fmt.Sprintf(`<html><body><div class="section-content">%s. Text of section %s. (Added by Stats. 1990, Ch. 1.)</div></body></html>`, id, id)
}

func entryFor(id string) models.ManifestEntry {
	return models.ManifestEntry{
		CorpusID:     "tst",
		SectionID:    id,
		FetchAddress: "https://pub.test/section?sectionNum=" + id,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtract_MixedOutcomes(t *testing.T) {
	fetch := &fakeFetch{
		pages: map[string]fakePage{
			"https://pub.test/section?sectionNum=1": {body: sectionPage("1")},
			"https://pub.test/section?sectionNum=2": {
				body:        "<html>selector</html>",
				resolvedURL: "https://pub.test/versionSelectionMenu?sectionNum=2",
			},
			"https://pub.test/section?sectionNum=4": {body: "<html><body></body></html>"},
		},
		failures: map[string]error{
			"https://pub.test/section?sectionNum=3": fmt.Errorf("%w: rate limited (status 429)", fetcher.ErrTransient),
		},
	}
	store := newMemStore()
	pool := &Pool{Fetch: fetch, Store: store, Logger: testLogger()}

	entries := []models.ManifestEntry{entryFor("1"), entryFor("2"), entryFor("3"), entryFor("4")}
	outcomes, err := pool.Extract(context.Background(), "tst", entries, 2)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("got %d outcomes, want 4", len(outcomes))
	}

	if got := outcomes["1"]; got.State != models.StateSingleVersionComplete {
		t.Errorf("section 1 state = %q, want single-version complete", got.State)
	}
	if got := outcomes["1"]; got.History == "" {
		t.Errorf("section 1 history empty, want amendment trailer")
	}
	if got := outcomes["2"]; got.State != models.StateMultiVersionDetected {
		t.Errorf("section 2 state = %q, want multi-version detected", got.State)
	}
	if got := outcomes["3"]; got.State != models.StateFailed || got.FailureClass != models.FailureTransient {
		t.Errorf("section 3 = %+v, want transient failure", got)
	}
	if got := outcomes["4"]; got.State != models.StateFailed || got.FailureClass != models.FailureParse {
		t.Errorf("section 4 = %+v, want parse failure", got)
	}

	// One failure never aborts the pool, and every outcome is persisted.
	if len(store.outcomes) != 4 {
		t.Errorf("store has %d outcomes, want 4", len(store.outcomes))
	}
	if pool.Processed() != 4 {
		t.Errorf("Processed() = %d, want 4", pool.Processed())
	}
}

func TestExtract_BoundedConcurrency(t *testing.T) {
	fetch := &fakeFetch{pages: map[string]fakePage{}}
	var entries []models.ManifestEntry
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("%d", i)
		fetch.pages["https://pub.test/section?sectionNum="+id] = fakePage{body: sectionPage(id)}
		entries = append(entries, entryFor(id))
	}

	pool := &Pool{Fetch: fetch, Store: newMemStore(), Logger: testLogger()}
	if _, err := pool.Extract(context.Background(), "tst", entries, 4); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if fetch.maxInFlight > 4 {
		t.Errorf("max in-flight fetches = %d, want <= 4", fetch.maxInFlight)
	}
}

func TestExtract_PermanentFailureNotTransient(t *testing.T) {
	fetch := &fakeFetch{pages: map[string]fakePage{}} // everything 404s
	pool := &Pool{Fetch: fetch, Store: newMemStore(), Logger: testLogger()}

	outcomes, err := pool.Extract(context.Background(), "tst", []models.ManifestEntry{entryFor("9")}, 1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got := outcomes["9"]; got.FailureClass != models.FailurePermanent {
		t.Errorf("failure class = %q, want permanent", got.FailureClass)
	}
}

// An outcome whose durable write fails must not be reported as processed:
// gap detection works off the store, and a result the store cannot back
// would let a reconcile pass declare completion the database denies.
func TestExtract_PersistFailureStaysInGap(t *testing.T) {
	fetch := &fakeFetch{
		pages: map[string]fakePage{
			"https://pub.test/section?sectionNum=1": {body: sectionPage("1")},
			"https://pub.test/section?sectionNum=2": {body: sectionPage("2")},
		},
	}
	store := newMemStore()
	store.failUpserts = map[string]bool{"2": true}
	pool := &Pool{Fetch: fetch, Store: store, Logger: testLogger()}

	outcomes, err := pool.Extract(context.Background(), "tst", []models.ManifestEntry{entryFor("1"), entryFor("2")}, 1)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if _, ok := outcomes["2"]; ok {
		t.Error("unpersisted section 2 reported in results")
	}
	if got := outcomes["1"]; got.State != models.StateSingleVersionComplete {
		t.Errorf("section 1 state = %q, want single-version complete", got.State)
	}
	if pool.Processed() != 1 {
		t.Errorf("Processed() = %d, want 1", pool.Processed())
	}
}

func TestExtract_CancellationKeepsWrittenOutcomes(t *testing.T) {
	fetch := &fakeFetch{pages: map[string]fakePage{}}
	var entries []models.ManifestEntry
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("%d", i)
		fetch.pages["https://pub.test/section?sectionNum="+id] = fakePage{body: sectionPage(id)}
		entries = append(entries, entryFor(id))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel before the pool starts: workers take no jobs

	store := newMemStore()
	pool := &Pool{Fetch: fetch, Store: store, Logger: testLogger()}
	outcomes, err := pool.Extract(ctx, "tst", entries, 3)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	// Nothing was attempted, and the store matches what was returned:
	// resumption is gap detection over persisted outcomes.
	if len(outcomes) != len(store.outcomes) {
		t.Errorf("returned %d outcomes but persisted %d", len(outcomes), len(store.outcomes))
	}
	if len(outcomes) == len(entries) {
		t.Errorf("cancelled pool processed all %d entries", len(entries))
	}
}

func TestExtract_InvalidConcurrency(t *testing.T) {
	pool := &Pool{Fetch: &fakeFetch{}, Store: newMemStore(), Logger: testLogger()}
	if _, err := pool.Extract(context.Background(), "tst", nil, 0); err == nil {
		t.Fatal("Extract() error = nil, want error for concurrency 0")
	}
}
