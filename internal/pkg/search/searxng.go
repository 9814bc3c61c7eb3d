package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

// filter keys forwarded to SearXNG as query parameters
var searxngFilterKeys = []string{"categories", "time_range", "limit"}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

func (t *Tool) searchSearXNG(ctx context.Context, baseURL, query string, maxResults int, filters Filters) []Result {
	if baseURL == "" {
		baseURL = DefaultSearXNGURL
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/search"

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	for _, k := range searxngFilterKeys {
		if v, ok := filters[k]; ok && v != "" {
			params.Set(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return []Result{{Error: err.Error()}}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		log.Errorf("SearXNG request to %s failed: %v", endpoint, err)
		return []Result{{Error: err.Error()}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("SearXNG at %s answered HTTP %d", endpoint, resp.StatusCode)
		return []Result{{Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}}
	}

	var data searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Errorf("SearXNG returned unreadable JSON: %v", err)
		return []Result{{Error: fmt.Sprintf("invalid SearXNG response: %v", err)}}
	}

	results := make([]Result, 0, min(len(data.Results), maxResults))
	for _, r := range data.Results {
		if len(results) == maxResults {
			break
		}
		snippet := r.Content
		if snippet == "" {
			snippet = r.Snippet
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: snippet})
	}
	return results
}
