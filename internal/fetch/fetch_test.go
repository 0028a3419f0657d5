package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	raw := `<html>
<head><title>Example Page</title><style>body { color: red }</style></head>
<body>
<nav>Home | About</nav>
<h1>Welcome</h1>
<p>First paragraph with <b>bold</b> text.</p>
<script>alert("hi")</script>
<ul><li>one</li><li>two</li></ul>
<footer>copyright</footer>
</body>
</html>`

	title, text := Extract(raw)
	if title != "Example Page" {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"Welcome", "First paragraph with bold text.", "one", "two"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
	for _, banned := range []string{"alert", "color: red", "Home | About", "copyright"} {
		if strings.Contains(text, banned) {
			t.Errorf("text should not contain %q:\n%s", banned, text)
		}
	}
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><title>T</title></head><body><p>hello page</p></body></html>`)
	}))
	defer srv.Close()

	page, err := New().Get(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if page.StatusCode != 200 {
		t.Errorf("status = %d", page.StatusCode)
	}
	if page.Title != "T" {
		t.Errorf("title = %q", page.Title)
	}
	if !strings.Contains(page.Text, "hello page") {
		t.Errorf("text = %q", page.Text)
	}
}

func TestGetTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, strings.Repeat("a", 500))
	}))
	defer srv.Close()

	page, err := New().Get(context.Background(), srv.URL, 100)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !page.Truncated {
		t.Error("page should be marked truncated")
	}
	if len(page.Text) != 100 {
		t.Errorf("text length = %d, want 100", len(page.Text))
	}
}

func TestPost(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "accepted")
	}))
	defer srv.Close()

	page, err := New().Post(context.Background(), srv.URL, `{"k":"v"}`, "", 0)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotBody != `{"k":"v"}` {
		t.Errorf("posted body = %q", gotBody)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q, want inferred JSON", gotType)
	}
	if page.Text != "accepted" {
		t.Errorf("response text = %q", page.Text)
	}
}

func TestGetRequiresURL(t *testing.T) {
	if _, err := New().Get(context.Background(), "", 0); err == nil {
		t.Fatal("empty url should be rejected")
	}
}
