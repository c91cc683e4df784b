package renderer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPRenderer implements Renderer against publishers whose version
// selector is a form-postback page. Each session gets its own cookie jar,
// so server-side view state never leaks between sessions.
type HTTPRenderer struct {
	Timeout time.Duration
}

func NewHTTPRenderer() *HTTPRenderer {
	return &HTTPRenderer{Timeout: 30 * time.Second}
}

func (r *HTTPRenderer) Open(ctx context.Context) (Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &httpSession{
		client: &http.Client{Jar: jar, Timeout: r.Timeout},
	}, nil
}

type httpSession struct {
	client *http.Client

	// State captured by Navigate: the page URL to post back to and the
	// hidden form fields the server expects echoed.
	currentURL   string
	hiddenFields url.Values
	closed       bool
}

func (s *httpSession) Navigate(ctx context.Context, pageURL string) error {
	if s.closed {
		return fmt.Errorf("session is closed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("invalid selector URL %q: %w", pageURL, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to load selector page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("selector page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse selector page: %w", err)
	}

	s.currentURL = resp.Request.URL.String()
	s.hiddenFields = url.Values{}
	doc.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := input.Attr("value")
		s.hiddenFields.Set(name, value)
	})

	return nil
}

func (s *httpSession) Activate(ctx context.Context, d Descriptor) ([]byte, error) {
	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}
	if s.currentURL == "" {
		return nil, fmt.Errorf("activate before navigate")
	}

	form := url.Values{}
	for name, values := range s.hiddenFields {
		for _, v := range values {
			form.Add(name, v)
		}
	}
	for name, value := range d.Params {
		form.Set(name, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.currentURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build postback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("version postback failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("version postback returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read version content: %w", err)
	}
	return body, nil
}

func (s *httpSession) Close() error {
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}
