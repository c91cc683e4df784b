// Package versions resolves multi-version sections: it enumerates the
// version descriptors on the publisher's selector page, fetches each
// version through an isolated renderer session, and classifies each
// version's operative date and status from its history text.
package versions

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/statutelab/lexharvest/models"
	"github.com/statutelab/lexharvest/pkg/content"
	"github.com/statutelab/lexharvest/pkg/extract"
	"github.com/statutelab/lexharvest/pkg/renderer"
)

// DescriptorSelector matches the version rows on a selector page.
const DescriptorSelector = "#versionList a, a.version-link"

// Resolver fetches and classifies every version of a flagged section.
type Resolver struct {
	Fetch    extract.FetchService
	Renderer renderer.Renderer
	Logger   *slog.Logger

	// Now is injectable for status classification tests; zero means
	// time.Now.
	Now func() time.Time
}

// Resolve returns the section's versions in selector-page document order.
// Failures on individual versions are isolated: the resolve succeeds if at
// least one version was extracted, and only fails outright when the
// selector page itself is unusable or every version failed.
func (r *Resolver) Resolve(ctx context.Context, sectionID, fetchAddress string) ([]models.VersionRecord, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res, err := r.Fetch.Fetch(ctx, fetchAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch version selector for %s: %w", sectionID, err)
	}

	descriptors, err := ParseDescriptors(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version selector for %s: %w", sectionID, err)
	}
	logger.Info("resolving section versions", "section", sectionID, "versions", len(descriptors))

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	var records []models.VersionRecord
	var lastErr error
	for _, d := range descriptors {
		record, err := r.resolveOne(ctx, res.ResolvedURL, d)
		if err != nil {
			// Session instability on one version must not abort its
			// siblings.
			logger.Warn("version resolution failed",
				"section", sectionID, "version", d.Ordinal, "label", d.Label, "error", err)
			lastErr = err
			continue
		}

		record.OperativeDate = OperativeDate(record.History)
		record.Status = StatusOf(record.History, record.OperativeDate, now)
		records = append(records, *record)
	}

	if len(records) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("all %d versions of %s failed: %w", len(descriptors), sectionID, lastErr)
		}
		return nil, fmt.Errorf("version selector for %s lists no versions", sectionID)
	}
	return records, nil
}

// resolveOne extracts a single version through its own session. The
// session is never shared with another version and is closed on every
// exit path.
func (r *Resolver) resolveOne(ctx context.Context, selectorURL string, d renderer.Descriptor) (*models.VersionRecord, error) {
	session, err := r.Renderer.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	if err := session.Navigate(ctx, selectorURL); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	body, err := session.Activate(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to activate version %d: %w", d.Ordinal, err)
	}

	section, err := content.Parse(selectorURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version %d content: %w", d.Ordinal, err)
	}

	return &models.VersionRecord{
		Ordinal: d.Ordinal,
		Content: section.Body,
		History: section.History,
	}, nil
}

// ParseDescriptors reads the version rows of a selector page in document
// order. Each row's link target query parameters become the activation
// parameters.
func ParseDescriptors(body []byte) ([]renderer.Descriptor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	var descriptors []renderer.Descriptor
	doc.Find(DescriptorSelector).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}

		params := make(map[string]string)
		for key, values := range u.Query() {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}

		descriptors = append(descriptors, renderer.Descriptor{
			Label:   strings.Join(strings.Fields(s.Text()), " "),
			Ordinal: len(descriptors),
			Params:  params,
		})
	})
	return descriptors, nil
}
