package versions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/fetcher"
	"github.com/statutelab/lexharvest/pkg/renderer"
)

const selectorPage = `<html><body><div id="versionList">
<a href="?sectionNum=25&versionID=101">Amended version, operative January 1, 2026</a>
<a href="?sectionNum=25&versionID=100">Current version</a>
</div></body></html>`

type selectorFetch struct{}

func (selectorFetch) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	return &fetcher.Result{
		ResolvedURL: "https://pub.test/versionSelectionMenu?sectionNum=25",
		Body:        []byte(selectorPage),
		Status:      200,
	}, nil
}

// fakeRenderer hands out fake sessions and records how many were opened
// and closed. failOrdinals forces Activate to fail for chosen versions.
type fakeRenderer struct {
	opened       int
	closed       int
	failVersions map[string]bool // keyed by versionID param
}

func (r *fakeRenderer) Open(ctx context.Context) (renderer.Session, error) {
	r.opened++
	return &fakeSession{renderer: r}, nil
}

type fakeSession struct {
	renderer  *fakeRenderer
	navigated bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.navigated = true
	return nil
}

func (s *fakeSession) Activate(ctx context.Context, d renderer.Descriptor) ([]byte, error) {
	if !s.navigated {
		return nil, errors.New("activate before navigate")
	}
	versionID := d.Params["versionID"]
	if s.renderer.failVersions[versionID] {
		return nil, errors.New("renderer session crashed")
	}
	page := fmt.Sprintf(`<html><body><div class="section-content">Version %s text. (Amended by Stats. 2024, Ch. 1. Section operative January 1, 2026.)</div></body></html>`, versionID)
	if versionID == "100" {
		page = `<html><body><div class="section-content">Current text. (Amended by Stats. 2019, Ch. 497.)</div></body></html>`
	}
	return []byte(page), nil
}

func (s *fakeSession) Close() error {
	s.renderer.closed++
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
}

func testResolver(r renderer.Renderer) *Resolver {
	return &Resolver{
		Fetch:    selectorFetch{},
		Renderer: r,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      fixedNow,
	}
}

func TestParseDescriptors_DocumentOrder(t *testing.T) {
	descriptors, err := ParseDescriptors([]byte(selectorPage))
	if err != nil {
		t.Fatalf("ParseDescriptors() error = %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descriptors))
	}
	// Document order, not date order: the future version is listed first.
	if descriptors[0].Params["versionID"] != "101" {
		t.Errorf("descriptor 0 versionID = %q, want 101", descriptors[0].Params["versionID"])
	}
	if descriptors[1].Params["versionID"] != "100" {
		t.Errorf("descriptor 1 versionID = %q, want 100", descriptors[1].Params["versionID"])
	}
	if descriptors[0].Ordinal != 0 || descriptors[1].Ordinal != 1 {
		t.Errorf("ordinals = %d, %d, want 0, 1", descriptors[0].Ordinal, descriptors[1].Ordinal)
	}
}

func TestResolve(t *testing.T) {
	fake := &fakeRenderer{}
	records, err := testResolver(fake).Resolve(context.Background(), "25", "https://pub.test/section?sectionNum=25")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	if records[0].Status != models.VersionFuture || records[0].OperativeDate != "2026-01-01" {
		t.Errorf("record 0 = status %q date %q, want future 2026-01-01", records[0].Status, records[0].OperativeDate)
	}
	if records[1].Status != models.VersionCurrent || records[1].OperativeDate != "" {
		t.Errorf("record 1 = status %q date %q, want current with no date", records[1].Status, records[1].OperativeDate)
	}
	if !strings.Contains(records[1].Content, "Current text.") {
		t.Errorf("record 1 content = %q", records[1].Content)
	}

	// One isolated session per version, each closed.
	if fake.opened != 2 || fake.closed != 2 {
		t.Errorf("sessions opened=%d closed=%d, want 2/2", fake.opened, fake.closed)
	}
}

// A failure while resolving one version must not prevent the other from
// resolving.
func TestResolve_VersionFailureIsolated(t *testing.T) {
	fake := &fakeRenderer{failVersions: map[string]bool{"101": true}}
	records, err := testResolver(fake).Resolve(context.Background(), "25", "https://pub.test/section?sectionNum=25")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 surviving version", len(records))
	}
	if records[0].Ordinal != 1 {
		t.Errorf("surviving ordinal = %d, want 1", records[0].Ordinal)
	}
	// The failed version's session was still closed.
	if fake.opened != 2 || fake.closed != 2 {
		t.Errorf("sessions opened=%d closed=%d, want 2/2", fake.opened, fake.closed)
	}
}

func TestResolve_AllVersionsFailed(t *testing.T) {
	fake := &fakeRenderer{failVersions: map[string]bool{"100": true, "101": true}}
	_, err := testResolver(fake).Resolve(context.Background(), "25", "https://pub.test/section?sectionNum=25")
	if err == nil {
		t.Fatal("Resolve() error = nil, want failure when every version fails")
	}
}
