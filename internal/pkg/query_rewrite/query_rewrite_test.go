package query_rewrite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lightbot/internal/pkg/models"
)

type fakeCompleter struct {
	text    string
	err     error
	calls   int
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

func TestParseRewrite(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		message   string
		wantQuery string
		wantParam map[string]string
	}{
		{
			name:      "clean block",
			text:      "QUERY = python tutorial\nCATEGORIES = it\nTIME_RANGE = null",
			message:   "python tutorial",
			wantQuery: "python tutorial",
			wantParam: map[string]string{ParamCategories: "it"},
		},
		{
			name:      "markdown emphasis and colons",
			text:      "\n    **QUERY:** latest AI news\n    CATEGORIES: it,news\n    TIME_RANGE = week\n",
			message:   "latest AI news",
			wantQuery: "latest AI news",
			wantParam: map[string]string{ParamCategories: "it,news", ParamTimeRange: "week"},
		},
		{
			name:      "chatter around the block",
			text:      "Sure, I've optimized that for you:\nQUERY = climate change impact\nCATEGORIES = science,news\nTIME_RANGE = year\nI hope this helps!",
			message:   "climate change",
			wantQuery: "climate change impact",
			wantParam: map[string]string{ParamCategories: "science,news", ParamTimeRange: "year"},
		},
		{
			name:      "quoted values and lower-case keys",
			text:      "query: \"go generics\"\ntime_range = `month`",
			message:   "generics?",
			wantQuery: "go generics",
			wantParam: map[string]string{ParamTimeRange: "month"},
		},
		{
			name:      "null is case-insensitive",
			text:      "QUERY = x\nTIME_RANGE = NULL",
			message:   "x",
			wantQuery: "x",
			wantParam: map[string]string{},
		},
		{
			name:      "filters without query keep the message",
			text:      "CATEGORIES = news\nTIME_RANGE = day",
			message:   "what happened today",
			wantQuery: "what happened today",
			wantParam: map[string]string{ParamCategories: "news", ParamTimeRange: "day"},
		},
		{
			name:      "total failure",
			text:      "I don't know how to rewrite this.",
			message:   "original query",
			wantQuery: "original query",
			wantParam: map[string]string{},
		},
		{
			name:      "chatter on the same line as the key",
			text:      "Sure, here is the query: QUERY = python tutorial\nNote: CATEGORIES = it",
			message:   "m",
			wantQuery: "python tutorial",
			wantParam: map[string]string{ParamCategories: "it"},
		},
		{
			name:      "colon inside the value is kept",
			text:      "QUERY = python: tutorial",
			message:   "m",
			wantQuery: "python: tutorial",
			wantParam: map[string]string{},
		},
		{
			name:      "later line wins",
			text:      "QUERY = first\nQUERY = second",
			message:   "m",
			wantQuery: "second",
			wantParam: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRewrite(tt.text, tt.message)
			if got.Query != tt.wantQuery {
				t.Errorf("expected query %q, got %q", tt.wantQuery, got.Query)
			}
			if len(got.Params) != len(tt.wantParam) {
				t.Errorf("expected params %v, got %v", tt.wantParam, got.Params)
			}
			for k, v := range tt.wantParam {
				if got.Params[k] != v {
					t.Errorf("param %s: expected %q, got %q", k, v, got.Params[k])
				}
			}
		})
	}
}

func TestParseRewriteChatterMatchesCleanBlock(t *testing.T) {
	clean := "QUERY = rust async\nCATEGORIES = it\nTIME_RANGE = month"
	noisy := "Here you go!\n\n" + clean + "\n\nLet me know if you need anything else."

	a := ParseRewrite(clean, "m")
	b := ParseRewrite(noisy, "m")
	if a.Query != b.Query || a.Params[ParamCategories] != b.Params[ParamCategories] || a.Params[ParamTimeRange] != b.Params[ParamTimeRange] {
		t.Errorf("chatter changed the result: clean=%+v noisy=%+v", a, b)
	}
}

func TestTimeRangeNullIsAbsent(t *testing.T) {
	got := ParseRewrite("QUERY = python tutorial\nCATEGORIES = it\nTIME_RANGE = null", "python tutorial")
	if _, ok := got.Params[ParamTimeRange]; ok {
		t.Errorf("expected no time_range, got %q", got.Params[ParamTimeRange])
	}
}

func TestRewriteKeywordProviderFastPath(t *testing.T) {
	llm := &fakeCompleter{text: "QUERY = should not be used"}
	r := New(ProviderDDGS)

	got := r.Rewrite(context.Background(), "Who is he?", nil, llm)

	if got.Query != "Who is he?" {
		t.Errorf("expected original message, got %q", got.Query)
	}
	if len(got.Params) != 0 {
		t.Errorf("expected no params, got %v", got.Params)
	}
	if llm.calls != 0 {
		t.Errorf("expected no model call, got %d", llm.calls)
	}
}

func TestRewriteMetaSearchParsesWithoutHistory(t *testing.T) {
	llm := &fakeCompleter{text: "QUERY = python tutorial\nCATEGORIES = it\nTIME_RANGE = null"}
	r := New(ProviderSearXNG)

	got := r.Rewrite(context.Background(), "python tutorial", nil, llm)

	if llm.calls != 1 {
		t.Fatalf("expected one model call, got %d", llm.calls)
	}
	if got.Query != "python tutorial" || got.Params[ParamCategories] != "it" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestRewriteWithHistoryRendersPrompt(t *testing.T) {
	llm := &fakeCompleter{text: "QUERY = How old is Tim Cook?"}
	r := New(ProviderDDGS)
	history := []models.Message{
		models.UserMessage("Who is Tim Cook?"),
		models.AssistantMessage("He is the CEO of Apple."),
	}

	got := r.Rewrite(context.Background(), "How old is he?", history, llm)

	if got.Query != "How old is Tim Cook?" {
		t.Errorf("unexpected query %q", got.Query)
	}
	prompt := llm.prompts[0]
	if !strings.Contains(prompt, "user: Who is Tim Cook?\nassistant: He is the CEO of Apple.") {
		t.Errorf("history not rendered in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Follow Up Input: How old is he?") {
		t.Errorf("message not in prompt:\n%s", prompt)
	}
}

func TestRewriteModelErrorFallsBack(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("connection refused")}
	r := New(ProviderSearXNG)

	got := r.Rewrite(context.Background(), "latest news", []models.Message{models.UserMessage("hi")}, llm)

	if got.Query != "latest news" || len(got.Params) != 0 {
		t.Errorf("expected fallback, got %+v", got)
	}
}

func TestRewriteNilModelFallsBack(t *testing.T) {
	r := New(ProviderSearXNG)
	got := r.Rewrite(context.Background(), "q", nil, nil)
	if got.Query != "q" || got.Params == nil {
		t.Errorf("expected fallback with empty params, got %+v", got)
	}
}

func TestRewriteUnknownProviderUsesSharedPath(t *testing.T) {
	llm := &fakeCompleter{text: "QUERY = standalone\nCATEGORIES = news"}
	r := New("bing")

	empty := r.Rewrite(context.Background(), "msg", nil, llm)
	if empty.Query != "msg" || llm.calls != 0 {
		t.Errorf("expected fast path for empty history, got %+v after %d calls", empty, llm.calls)
	}

	got := r.Rewrite(context.Background(), "msg", []models.Message{models.UserMessage("earlier")}, llm)
	if got.Query != "standalone" || got.Params[ParamCategories] != "news" {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestSetProviderIgnoresEmpty(t *testing.T) {
	r := New(ProviderSearXNG)
	r.SetProvider("")
	if r.Provider() != ProviderSearXNG {
		t.Errorf("expected provider unchanged, got %s", r.Provider())
	}
	r.SetProvider(ProviderDDGS)
	if r.Provider() != ProviderDDGS {
		t.Errorf("expected ddgs, got %s", r.Provider())
	}
}
