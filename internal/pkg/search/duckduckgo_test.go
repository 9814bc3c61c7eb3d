package search

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const duckDuckGoPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> Programming Language</a>
  </h2>
  <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Documentation for <b>Go</b> &amp; friends.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  </h2>
  <a class="result__snippet" href="https://pkg.go.dev/">Discover packages.</a>
</div>
</body></html>`

func TestParseDuckDuckGoHTML(t *testing.T) {
	results := parseDuckDuckGoHTML(duckDuckGoPage, 5)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	want := []Result{
		{Title: "The Go Programming Language", URL: "https://go.dev/doc/", Snippet: "Documentation for Go & friends."},
		{Title: "Go Packages", URL: "https://pkg.go.dev/", Snippet: "Discover packages."},
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result %d: expected %+v, got %+v", i, want[i], results[i])
		}
	}
}

func TestParseDuckDuckGoHTMLRespectsLimit(t *testing.T) {
	if got := parseDuckDuckGoHTML(duckDuckGoPage, 1); len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
}

func TestParseDuckDuckGoHTMLResultWithoutSnippet(t *testing.T) {
	page := `<div class="result">
  <a class="result__a" href="https://a.example/">A</a>
</div>
<div class="result">
  <a class="result__a" href="https://b.example/">B</a>
  <a class="result__snippet" href="https://b.example/">snippet of B</a>
</div>`

	results := parseDuckDuckGoHTML(page, 5)
	want := []Result{
		{Title: "A", URL: "https://a.example/"},
		{Title: "B", URL: "https://b.example/", Snippet: "snippet of B"},
	}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %+v", len(want), results)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result %d: expected %+v, got %+v", i, want[i], results[i])
		}
	}
}

func TestDuckDuckGoSearch(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotAgent = r.Header.Get("User-Agent")
		io.WriteString(w, duckDuckGoPage)
	}))
	defer srv.Close()

	ddg := NewDuckDuckGo(srv.Client(), srv.URL+"/html/")
	results, err := ddg.Search(context.Background(), "golang docs", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
	if gotQuery != "golang docs" {
		t.Errorf("expected query 'golang docs', got %q", gotQuery)
	}
	if gotAgent != duckDuckGoUserAgent {
		t.Errorf("expected user agent to be set, got %q", gotAgent)
	}
}

func TestDuckDuckGoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tool := NewTool(ProviderDDGS, "", WithKeywordEngine(NewDuckDuckGo(srv.Client(), srv.URL)))
	results := tool.Search(context.Background(), "q", 5, nil)
	if len(results) != 1 || results[0].Error != "DuckDuckGo returned HTTP 403" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestResolveRedirect(t *testing.T) {
	tests := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%3Fb%3D1&rut=x": "https://example.com/a?b=1",
		"https://example.com/plain": "https://example.com/plain",
	}
	for in, want := range tests {
		if got := resolveRedirect(in); got != want {
			t.Errorf("resolveRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}
