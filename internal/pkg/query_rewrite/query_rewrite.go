package query_rewrite

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lightbot/internal/pkg/models"
)

// Search provider identifiers understood by the rewriter.
const (
	ProviderDDGS    = "ddgs"
	ProviderSearXNG = "searxng"
)

// RewriteResult is a standalone search query plus optional filters.
// Params is never nil; an absent key means "no filter".
type RewriteResult struct {
	Query  string            `json:"query"`
	Params map[string]string `json:"params"`
}

// Completer is the slice of the model client the rewriter needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// QueryRewriter turns a context-dependent utterance into a standalone
// search query using one call to the fast model.
type QueryRewriter struct {
	mu       sync.RWMutex
	provider string
}

func New(provider string) *QueryRewriter {
	if provider == "" {
		provider = ProviderDDGS
	}
	return &QueryRewriter{provider: provider}
}

// SetProvider switches the search provider the rewrite is prepared for.
// Empty values are ignored.
func (r *QueryRewriter) SetProvider(provider string) {
	if provider == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.provider = provider
}

func (r *QueryRewriter) Provider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.provider
}

func fallback(message string) RewriteResult {
	return RewriteResult{Query: message, Params: map[string]string{}}
}

// Rewrite never fails: model errors and unparseable answers fall back to
// the original message with no filters.
func (r *QueryRewriter) Rewrite(ctx context.Context, message string, history []models.Message, llm Completer) RewriteResult {
	provider := r.Provider()
	log.Infof("Query rewrite started for provider: %s", provider)

	switch provider {
	case ProviderSearXNG:
		// filters are worth extracting even on the first turn
		return r.rewrite(ctx, message, history, llm)
	case ProviderDDGS:
	default:
		log.Warnf("Unknown search provider '%s', falling back to default rewrite", provider)
	}
	if len(history) == 0 {
		// nothing to resolve against
		return fallback(message)
	}
	return r.rewrite(ctx, message, history, llm)
}

func (r *QueryRewriter) rewrite(ctx context.Context, message string, history []models.Message, llm Completer) RewriteResult {
	startTime := time.Now()
	defer func() {
		log.Debugf("QueryRewriter.rewrite with %d history messages took %s", len(history), time.Since(startTime))
	}()

	if llm == nil {
		log.Warnf("No model available for query rewrite, using original message")
		return fallback(message)
	}

	text, err := llm.Complete(ctx, buildPrompt(message, history))
	if err != nil {
		log.Errorf("Error in query rewrite: %v", err)
		return fallback(message)
	}

	result := ParseRewrite(text, message)
	log.Infof("Rewrote '%s' to '%s' (params: %v)", message, result.Query, result.Params)
	return result
}
