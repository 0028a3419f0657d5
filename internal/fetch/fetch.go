// Package fetch retrieves web pages for the model, reducing HTML to
// readable text so responses fit in a tool turn.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/marlowe-agent/marlowe/internal/httpkit"
)

const (
	requestTimeout = 30 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes int64 = 5 * 1024 * 1024

	// defaultMaxChars caps the text handed back to the model.
	defaultMaxChars = 20000
)

// Page is the reduced form of a fetched URL.
type Page struct {
	URL        string
	Title      string
	Text       string
	StatusCode int
	Truncated  bool
}

// Fetcher downloads pages over a shared HTTP client.
type Fetcher struct {
	client *http.Client
}

func New() *Fetcher {
	return &Fetcher{
		client: httpkit.NewClient(httpkit.WithTimeout(requestTimeout)),
	}
}

// Get downloads a URL and extracts its readable text. maxChars of
// zero applies the default cap.
func (f *Fetcher) Get(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	req, err := f.newRequest(ctx, http.MethodGet, rawURL, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	return f.do(req, maxChars)
}

// Post sends a body to a URL and returns the reduced response. The
// content type defaults to JSON when the body looks like it.
func (f *Fetcher) Post(ctx context.Context, rawURL, body, contentType string, maxChars int) (*Page, error) {
	req, err := f.newRequest(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "text/plain"
		if strings.HasPrefix(strings.TrimSpace(body), "{") || strings.HasPrefix(strings.TrimSpace(body), "[") {
			contentType = "application/json"
		}
	}
	req.Header.Set("Content-Type", contentType)
	return f.do(req, maxChars)
}

func (f *Fetcher) newRequest(ctx context.Context, method, rawURL, body string) (*http.Request, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	return req, nil
}

func (f *Fetcher) do(req *http.Request, maxChars int) (*Page, error) {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	page := &Page{
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "application/xhtml"):
		page.Title, page.Text = Extract(string(body))
	case utf8.Valid(body):
		page.Text = string(body)
	default:
		page.Text = fmt.Sprintf("binary content (%s), %d bytes", contentType, len(body))
	}

	if len(page.Text) > maxChars {
		page.Text = cutRunes(page.Text, maxChars)
		page.Truncated = true
	}
	return page, nil
}

// cutRunes shortens s to at most max bytes without splitting a rune.
func cutRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for i := max; i > 0; i-- {
		if utf8.RuneStart(s[i]) {
			return s[:i]
		}
	}
	return ""
}
