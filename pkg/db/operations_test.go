package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/statutelab/lexharvest/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.UpsertCorpus("tst", "Test Code", "https://example.test/codes"); err != nil {
		t.Fatalf("UpsertCorpus() error = %v", err)
	}
	return db
}

func TestUpsertManifest_PreservesOrder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entries := []models.ManifestEntry{
		{CorpusID: "tst", SectionID: "5", FetchAddress: "?sectionNum=5"},
		{CorpusID: "tst", SectionID: "5.5", FetchAddress: "?sectionNum=5.5",
			AncestorLabels: map[string]string{"division": "DIVISION 1."}},
		{CorpusID: "tst", SectionID: "6", FetchAddress: "?sectionNum=6"},
	}
	if err := db.UpsertManifest("tst", entries); err != nil {
		t.Fatalf("UpsertManifest() error = %v", err)
	}

	got, err := db.GetManifest("tst")
	if err != nil {
		t.Fatalf("GetManifest() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i, want := range []string{"5", "5.5", "6"} {
		if got[i].SectionID != want {
			t.Errorf("entry %d = %q, want %q", i, got[i].SectionID, want)
		}
	}
	if got[1].AncestorLabels["division"] != "DIVISION 1." {
		t.Errorf("ancestor labels not round-tripped: %v", got[1].AncestorLabels)
	}

	// Re-upserting is idempotent, not additive.
	if err := db.UpsertManifest("tst", entries); err != nil {
		t.Fatalf("UpsertManifest() second call error = %v", err)
	}
	got, err = db.GetManifest("tst")
	if err != nil {
		t.Fatalf("GetManifest() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("after re-upsert got %d entries, want 3", len(got))
	}
}

func TestUpsertOutcome_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	outcome := models.SectionOutcome{
		SectionID: "22",
		State:     models.StateSingleVersionComplete,
		Body:      "22. Body text.",
		History:   "(Added by Stats. 1990, Ch. 12.)",
	}
	if err := db.UpsertOutcome("tst", outcome); err != nil {
		t.Fatalf("UpsertOutcome() error = %v", err)
	}
	if err := db.UpsertOutcome("tst", outcome); err != nil {
		t.Fatalf("UpsertOutcome() retry error = %v", err)
	}

	outcomes, err := db.GetOutcomes("tst")
	if err != nil {
		t.Fatalf("GetOutcomes() error = %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	got := outcomes["22"]
	if got.State != models.StateSingleVersionComplete || got.Body != "22. Body text." {
		t.Errorf("outcome = %+v", got)
	}
}

func TestUpsertOutcome_FailureThenRetrySuccess(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	failed := models.SectionOutcome{
		SectionID:     "7",
		State:         models.StateFailed,
		FailureReason: "rate limited (status 429)",
		FailureClass:  models.FailureTransient,
	}
	if err := db.UpsertOutcome("tst", failed); err != nil {
		t.Fatalf("UpsertOutcome() error = %v", err)
	}

	retried := models.SectionOutcome{
		SectionID: "7",
		State:     models.StateSingleVersionComplete,
		Body:      "7. Body.",
	}
	if err := db.UpsertOutcome("tst", retried); err != nil {
		t.Fatalf("UpsertOutcome() retry error = %v", err)
	}

	outcomes, err := db.GetOutcomes("tst")
	if err != nil {
		t.Fatalf("GetOutcomes() error = %v", err)
	}
	got := outcomes["7"]
	if got.State != models.StateSingleVersionComplete {
		t.Errorf("state = %q, want success after retry", got.State)
	}
	if got.FailureReason != "" {
		t.Errorf("failure reason survived retry: %q", got.FailureReason)
	}
}

func TestUpsertOutcome_Versions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	outcome := models.SectionOutcome{
		SectionID: "25",
		State:     models.StateMultiVersionComplete,
		Versions: []models.VersionRecord{
			{Ordinal: 0, OperativeDate: "2024-01-01", Content: "current text", Status: models.VersionCurrent},
			{Ordinal: 1, Content: "future text", Status: models.VersionFuture,
				History: "(Becomes operative on a date to be determined.)"},
		},
	}
	if err := db.UpsertOutcome("tst", outcome); err != nil {
		t.Fatalf("UpsertOutcome() error = %v", err)
	}

	outcomes, err := db.GetOutcomes("tst")
	if err != nil {
		t.Fatalf("GetOutcomes() error = %v", err)
	}
	got := outcomes["25"]
	if len(got.Versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(got.Versions))
	}
	if got.Versions[0].OperativeDate != "2024-01-01" || got.Versions[0].Status != models.VersionCurrent {
		t.Errorf("version 0 = %+v", got.Versions[0])
	}
	if got.Versions[1].OperativeDate != "" || got.Versions[1].Status != models.VersionFuture {
		t.Errorf("version 1 = %+v", got.Versions[1])
	}
}

func TestUpsertOutcome_ReextractionClearsVersions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	multi := models.SectionOutcome{
		SectionID: "31",
		State:     models.StateMultiVersionComplete,
		Versions: []models.VersionRecord{
			{Ordinal: 0, Content: "old v0", Status: models.VersionCurrent},
		},
	}
	if err := db.UpsertOutcome("tst", multi); err != nil {
		t.Fatalf("UpsertOutcome() error = %v", err)
	}

	// The publisher dropped the selector page; the section now extracts as
	// single-version. The old version rows must not survive.
	single := models.SectionOutcome{
		SectionID: "31",
		State:     models.StateSingleVersionComplete,
		Body:      "31. Body.",
	}
	if err := db.UpsertOutcome("tst", single); err != nil {
		t.Fatalf("UpsertOutcome() re-extraction error = %v", err)
	}

	outcomes, err := db.GetOutcomes("tst")
	if err != nil {
		t.Fatalf("GetOutcomes() error = %v", err)
	}
	got := outcomes["31"]
	if got.State != models.StateSingleVersionComplete {
		t.Errorf("state = %q, want single-version complete", got.State)
	}
	if len(got.Versions) != 0 {
		t.Errorf("outcome carries %d stale version rows: %+v", len(got.Versions), got.Versions)
	}
}

func TestReconciliationAttempts_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	first := models.ReconciliationAttempt{
		AttemptNumber:   1,
		ConcurrencyUsed: 15,
		SectionsRetried: []string{"7", "42", "88"},
		Succeeded:       []string{"42"},
		Failed:          []string{"7", "88"},
		Duration:        3 * time.Second,
	}
	second := models.ReconciliationAttempt{
		AttemptNumber:   2,
		ConcurrencyUsed: 8,
		SectionsRetried: []string{"7", "88"},
		Succeeded:       []string{"7", "88"},
		Failed:          []string{},
		Duration:        2 * time.Second,
	}

	if err := db.AppendReconciliationAttempt("tst", "run-1", first); err != nil {
		t.Fatalf("AppendReconciliationAttempt() error = %v", err)
	}
	if err := db.AppendReconciliationAttempt("tst", "run-1", second); err != nil {
		t.Fatalf("AppendReconciliationAttempt() error = %v", err)
	}

	attempts, err := db.GetReconciliationAttempts("tst")
	if err != nil {
		t.Fatalf("GetReconciliationAttempts() error = %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(attempts))
	}
	if attempts[0].AttemptNumber != 1 || attempts[0].ConcurrencyUsed != 15 {
		t.Errorf("attempt 0 = %+v", attempts[0])
	}
	if len(attempts[0].Failed) != 2 || attempts[0].Failed[0] != "7" {
		t.Errorf("attempt 0 failed set = %v", attempts[0].Failed)
	}
	if attempts[1].Duration != 2*time.Second {
		t.Errorf("attempt 1 duration = %v", attempts[1].Duration)
	}
}

func TestCorpusSummary(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	entries := []models.ManifestEntry{
		{CorpusID: "tst", SectionID: "1", FetchAddress: "?sectionNum=1"},
		{CorpusID: "tst", SectionID: "2", FetchAddress: "?sectionNum=2"},
	}
	if err := db.UpsertManifest("tst", entries); err != nil {
		t.Fatalf("UpsertManifest() error = %v", err)
	}
	if err := db.UpsertOutcome("tst", models.SectionOutcome{
		SectionID: "1", State: models.StateSingleVersionComplete,
	}); err != nil {
		t.Fatalf("UpsertOutcome() error = %v", err)
	}
	if err := db.UpsertOutcome("tst", models.SectionOutcome{
		SectionID: "2", State: models.StateFailed,
		FailureClass: models.FailureTransient, FailureReason: "timeout",
	}); err != nil {
		t.Fatalf("UpsertOutcome() error = %v", err)
	}

	summary, err := db.GetCorpusSummary("tst")
	if err != nil {
		t.Fatalf("GetCorpusSummary() error = %v", err)
	}
	if summary.ManifestCount != 2 {
		t.Errorf("ManifestCount = %d, want 2", summary.ManifestCount)
	}
	if summary.StateCounts[models.StateFailed] != 1 {
		t.Errorf("failed count = %d, want 1", summary.StateCounts[models.StateFailed])
	}
	if summary.CompletionRate != 0.5 {
		t.Errorf("CompletionRate = %v, want 0.5", summary.CompletionRate)
	}
}

func TestSaveReconciliationReport(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	report := &models.ReconciliationReport{
		CorpusID:       "tst",
		RunID:          "run-1",
		Complete:       false,
		CompletionRate: 0.97,
		Remaining:      []string{"88"},
	}
	if err := db.SaveReconciliationReport(report); err != nil {
		t.Fatalf("SaveReconciliationReport() error = %v", err)
	}

	// A later run overwrites the report.
	report.RunID = "run-2"
	report.Complete = true
	report.CompletionRate = 1.0
	report.Remaining = nil
	if err := db.SaveReconciliationReport(report); err != nil {
		t.Fatalf("SaveReconciliationReport() second call error = %v", err)
	}
}
