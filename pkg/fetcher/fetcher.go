// Package fetcher is the HTTP fetch boundary: it turns a URL into a
// resolved address, a body and a status, and classifies failures into
// transient (retriable) and permanent classes.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Failure classes. Transient failures (timeouts, rate limits, 5xx) drive
// reconciliation retries; permanent failures (malformed URLs, 4xx) are
// surfaced immediately and never retried.
var (
	ErrTransient = errors.New("transient fetch failure")
	ErrPermanent = errors.New("permanent fetch failure")
)

// IsTransient reports whether the error is retriable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Result is a successful fetch. ResolvedURL is the final URL after
// redirects; the extraction pool uses it to detect version-selector
// redirects.
type Result struct {
	ResolvedURL string
	Body        []byte
	Status      int
}

type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewFetcherWithClient allows tests to supply their own client.
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch performs a GET and classifies the outcome.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %v", ErrPermanent, rawURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Network errors, timeouts, cancellation: all retriable.
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited (status %d)", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: server error (status %d)", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d for %s", ErrPermanent, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}

	return &Result{
		ResolvedURL: resp.Request.URL.String(),
		Body:        body,
		Status:      resp.StatusCode,
	}, nil
}

// FetchDocument fetches a URL and parses the body as HTML.
func (f *Fetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, *Result, error) {
	result, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(result.Body)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML from %s: %w", rawURL, err)
	}
	return doc, result, nil
}
