package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"lightbot/internal/pkg/search_cache"
)

const (
	ProviderDDGS    = "ddgs"
	ProviderSearXNG = "searxng"

	DefaultMaxResults = 5
	DefaultSearXNGURL = "http://localhost:8080"
)

// Result is either a hit (Title, URL, Snippet) or an Error record.
type Result struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r Result) IsError() bool {
	return r.Error != ""
}

// Filters are optional provider parameters such as categories,
// time_range and limit. Providers ignore keys they do not understand.
type Filters map[string]string

// KeywordEngine is a plain keyword web search backend.
type KeywordEngine interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// DisplayName maps a provider id to its human-readable name.
func DisplayName(provider string) string {
	if provider == ProviderDDGS {
		return "DDGS"
	}
	return "SearXNG"
}

// Tool dispatches searches to the configured provider. Provider and base
// URL can change at runtime.
type Tool struct {
	mu       sync.RWMutex
	provider string
	baseURL  string

	httpClient *http.Client
	keyword    KeywordEngine
	cache      search_cache.SearchCache
}

type Option func(*Tool)

func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) {
		t.httpClient = c
	}
}

// WithKeywordEngine replaces the DuckDuckGo backend. A nil engine makes
// keyword searches report an error record.
func WithKeywordEngine(e KeywordEngine) Option {
	return func(t *Tool) {
		t.keyword = e
	}
}

func WithCache(c search_cache.SearchCache) Option {
	return func(t *Tool) {
		t.cache = c
	}
}

func NewTool(provider, baseURL string, opts ...Option) *Tool {
	if provider == "" {
		provider = ProviderDDGS
	}
	t := &Tool{
		provider:   provider,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	t.keyword = NewDuckDuckGo(t.httpClient, "")
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tool) Provider() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.provider
}

func (t *Tool) BaseURL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.baseURL
}

func (t *Tool) DisplayName() string {
	return DisplayName(t.Provider())
}

// UpdateSettings changes provider and base URL. Empty arguments leave the
// current value in place.
func (t *Tool) UpdateSettings(provider, baseURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if provider != "" {
		t.provider = provider
	}
	if baseURL != "" {
		t.baseURL = baseURL
	}
	log.Infof("Search tool now using %s (%s)", t.provider, t.baseURL)
}

// Search never fails: provider problems come back as a single error
// record. At most maxResults entries are returned, in provider order.
func (t *Tool) Search(ctx context.Context, query string, maxResults int, filters Filters) []Result {
	startTime := time.Now()
	defer func() {
		log.Debugf("Search for '%s' took %s", query, time.Since(startTime))
	}()

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	t.mu.RLock()
	provider, baseURL := t.provider, t.baseURL
	t.mu.RUnlock()

	key := cacheKey(provider, baseURL, query, maxResults, filters)
	if cached, ok := t.lookup(ctx, key); ok {
		log.Infof("Search cache hit for '%s' via %s", query, provider)
		return cached
	}

	var results []Result
	switch provider {
	case ProviderDDGS:
		results = t.searchKeyword(ctx, query, maxResults)
	case ProviderSearXNG:
		results = t.searchSearXNG(ctx, baseURL, query, maxResults, filters)
	default:
		log.Warnf("Unknown search provider: %s", provider)
		results = []Result{{Error: fmt.Sprintf("Unknown search provider: %s", provider)}}
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	log.Infof("Search for '%s' via %s returned %d results", query, provider, len(results))
	t.store(ctx, key, results)
	return results
}

func (t *Tool) searchKeyword(ctx context.Context, query string, maxResults int) []Result {
	if t.keyword == nil {
		return []Result{{Error: "keyword search engine not configured"}}
	}
	results, err := t.keyword.Search(ctx, query, maxResults)
	if err != nil {
		log.Errorf("Keyword search for '%s' failed: %v", query, err)
		return []Result{{Error: err.Error()}}
	}
	return results
}

func (t *Tool) lookup(ctx context.Context, key string) ([]Result, bool) {
	if t.cache == nil {
		return nil, false
	}
	data, err := t.cache.Get(ctx, key)
	if err != nil {
		if !t.cache.IsNotFoundError(err) {
			log.Warnf("Search cache read failed: %v", err)
		}
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		log.Warnf("Discarding unreadable search cache entry %s: %v", key, err)
		if err := t.cache.Delete(ctx, key); err != nil {
			log.Warnf("Failed to evict search cache entry %s: %v", key, err)
		}
		return nil, false
	}
	return results, true
}

func (t *Tool) store(ctx context.Context, key string, results []Result) {
	if t.cache == nil || len(results) == 0 {
		return
	}
	for _, r := range results {
		if r.IsError() {
			return
		}
	}
	data, err := json.Marshal(results)
	if err != nil {
		log.Warnf("Failed to marshal search results for cache: %v", err)
		return
	}
	if err := t.cache.Set(ctx, key, data); err != nil {
		log.Warnf("Search cache write failed: %v", err)
	}
}

// cacheKey hashes everything that can change the result set. FReD ids must
// be alphanumeric, hence the bare hex.
func cacheKey(provider, baseURL, query string, maxResults int, filters Filters) string {
	h := xxhash.New()
	h.WriteString(provider)
	h.WriteString("\x00")
	h.WriteString(strings.TrimRight(baseURL, "/"))
	h.WriteString("\x00")
	h.WriteString(query)
	h.WriteString("\x00")
	h.WriteString(strconv.Itoa(maxResults))

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.WriteString("\x00")
		h.WriteString(k)
		h.WriteString("=")
		h.WriteString(filters[k])
	}
	return fmt.Sprintf("search%016x", h.Sum64())
}
