package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marlowe-agent/marlowe/internal/tools"
)

// Toolset exposes web access to the model.
type Toolset struct {
	fetcher *Fetcher
}

func NewToolset(fetcher *Fetcher) *Toolset {
	return &Toolset{fetcher: fetcher}
}

// Methods implements tools.Toolset.
func (t *Toolset) Methods() []tools.Method {
	return []tools.Method{
		{
			Name: "http_get",
			Doc: `Fetch a web page and return its readable text.

Args:
    url: The address to fetch.
    max_chars: Truncate the text to this many characters.`,
			Args: getArgs{},
			Call: t.httpGet,
		},
		{
			Name: "http_post",
			Doc: `Send an HTTP POST request and return the response text.

Args:
    url: The address to post to.
    body: The request body.
    content_type: The request content type. Leave empty to infer.`,
			Args: postArgs{},
			Call: t.httpPost,
		},
	}
}

type getArgs struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars"`
}

type postArgs struct {
	URL         string `json:"url"`
	Body        string `json:"body"`
	ContentType string `json:"content_type"`
}

func (t *Toolset) httpGet(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a getArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	page, err := t.fetcher.Get(ctx, a.URL, a.MaxChars)
	if err != nil {
		return nil, err
	}
	return renderPage(page), nil
}

func (t *Toolset) httpPost(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a postArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	page, err := t.fetcher.Post(ctx, a.URL, a.Body, a.ContentType, 0)
	if err != nil {
		return nil, err
	}
	return renderPage(page), nil
}

func renderPage(p *Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %d\n", p.StatusCode)
	if p.Title != "" {
		fmt.Fprintf(&b, "title: %s\n", p.Title)
	}
	if p.Truncated {
		b.WriteString("(truncated)\n")
	}
	b.WriteString(p.Text)
	return strings.TrimRight(b.String(), "\n")
}
