package search

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"
	duckDuckGoUserAgent  = "Mozilla/5.0 (compatible; lightbot/1.0)"
)

var (
	resultLinkRe = regexp.MustCompile(`(?s)<a([^>]*class="result__a"[^>]*)>(.*?)</a>`)
	snippetRe    = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.*?)</a>`)
	hrefRe       = regexp.MustCompile(`href="([^"]*)"`)
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
)

// DuckDuckGo scrapes the HTML-only DuckDuckGo endpoint.
type DuckDuckGo struct {
	client   *http.Client
	endpoint string
}

// NewDuckDuckGo uses the public HTML endpoint when endpoint is empty.
func NewDuckDuckGo(client *http.Client, endpoint string) *DuckDuckGo {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if endpoint == "" {
		endpoint = defaultDuckDuckGoURL
	}
	return &DuckDuckGo{client: client, endpoint: endpoint}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", duckDuckGoUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DuckDuckGo request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DuckDuckGo returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	results := parseDuckDuckGoHTML(string(body), maxResults)
	log.Debugf("DuckDuckGo parsed %d results for '%s'", len(results), query)
	return results, nil
}

// parseDuckDuckGoHTML splits the page at each result link and looks for a
// snippet only between that link and the next one, so a result without a
// snippet never borrows its neighbour's.
func parseDuckDuckGoHTML(page string, maxResults int) []Result {
	links := resultLinkRe.FindAllStringSubmatchIndex(page, -1)

	results := make([]Result, 0, len(links))
	for i, m := range links {
		if maxResults > 0 && len(results) >= maxResults {
			break
		}
		blockEnd := len(page)
		if i+1 < len(links) {
			blockEnd = links[i+1][0]
		}

		href := ""
		if h := hrefRe.FindStringSubmatch(page[m[2]:m[3]]); h != nil {
			href = resolveRedirect(html.UnescapeString(h[1]))
		}
		r := Result{
			Title: cleanText(page[m[4]:m[5]]),
			URL:   href,
		}
		if sm := snippetRe.FindStringSubmatch(page[m[1]:blockEnd]); sm != nil {
			r.Snippet = cleanText(sm[1])
		}
		if r.Title == "" && r.URL == "" {
			continue
		}
		results = append(results, r)
	}
	return results
}

func cleanText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

// resolveRedirect unwraps DuckDuckGo's //duckduckgo.com/l/?uddg=<target> links.
func resolveRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	raw := href
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
