package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lightbot/internal/app/orchestrator"
	"lightbot/internal/app/session_manager"
	"lightbot/internal/app/settings"
	"lightbot/internal/pkg/llm_client"
	"lightbot/internal/pkg/models"
	"lightbot/internal/pkg/query_rewrite"
	"lightbot/internal/pkg/search"
)

type stubLLM struct {
	reply     string
	fragments []string
	err       error
}

func (s *stubLLM) Complete(context.Context, string) (string, error) { return "", s.err }

func (s *stubLLM) Chat(context.Context, []models.Message) (string, error) { return s.reply, s.err }

func (s *stubLLM) StreamChat(context.Context, []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type stubSearcher struct{}

func (stubSearcher) Search(context.Context, string, int, search.Filters) []search.Result { return nil }
func (stubSearcher) DisplayName() string                                                 { return "DDGS" }

type stubSource struct {
	stored  settings.EngineSettings
	saveErr error
}

func (s *stubSource) Load() (settings.EngineSettings, error) { return s.stored, nil }

func (s *stubSource) Save(es settings.EngineSettings) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.stored = es
	return nil
}

func newTestServer(t *testing.T, llm *stubLLM, withModel bool) (*httptest.Server, *stubSource) {
	t.Helper()
	es := settings.Defaults()
	if withModel {
		es.Models = []settings.ModelConfig{{Name: "primary", BaseURL: "http://primary/v1", APIKey: "sk-secret"}}
	}
	src := &stubSource{stored: es}
	mgr, err := settings.NewManager(src, func(settings.ModelConfig) (llm_client.LLM, error) { return llm, nil })
	if err != nil {
		t.Fatal(err)
	}
	engine := orchestrator.New(session_manager.NewMemorySessionManager(0), mgr, query_rewrite.New(""), stubSearcher{})
	ts := httptest.NewServer(NewServer(engine, nil).Router())
	t.Cleanup(ts.Close)
	return ts, src
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{}, false)
	resp := get(t, ts.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	var h HealthResponse
	decode(t, resp, &h)
	if h.Status != "healthy" || h.ModelAvailable {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestChat(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{reply: "hi there"}, true)

	resp := post(t, ts.URL+"/chat", `{"message":"hello","session_id":"s1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var cr ChatResponse
	decode(t, resp, &cr)
	if cr.Response != "hi there" {
		t.Errorf("unexpected response %q", cr.Response)
	}

	var hist struct {
		SessionID string           `json:"session_id"`
		Messages  []models.Message `json:"messages"`
	}
	decode(t, get(t, ts.URL+"/sessions/s1/history"), &hist)
	if len(hist.Messages) != 2 || hist.Messages[1].Content != "hi there" {
		t.Errorf("unexpected history %+v", hist)
	}

	var sessions struct {
		Sessions []session_manager.SessionInfo `json:"sessions"`
	}
	decode(t, get(t, ts.URL+"/sessions"), &sessions)
	if len(sessions.Sessions) != 1 || sessions.Sessions[0].SessionID != "s1" {
		t.Errorf("unexpected sessions %+v", sessions)
	}
}

func TestChatBadRequests(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{reply: "x"}, true)
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"malformed", `{"message":`},
		{"blank message", `{"message":"   "}`},
		{"bad mode", `{"message":"hi","search_mode":"sometimes"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := post(t, ts.URL+"/chat", tt.body); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestChatNoModel(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{}, false)
	var cr ChatResponse
	decode(t, post(t, ts.URL+"/chat", `{"message":"hello"}`), &cr)
	if cr.Response != orchestrator.NoModelConfiguredMessage {
		t.Errorf("unexpected response %q", cr.Response)
	}
}

func TestChatModelError(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{err: errors.New("upstream down")}, true)
	resp := post(t, ts.URL+"/chat", `{"message":"hello"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

func TestChatStream(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{fragments: []string{"Hel", "lo"}}, true)
	resp := post(t, ts.URL+"/chat/stream", `{"message":"hi","session_id":"s2"}`)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("unexpected content type %s", resp.Header.Get("Content-Type"))
	}
	var b bytes.Buffer
	if _, err := b.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if b.String() != "Hello" {
		t.Errorf("unexpected body %q", b.String())
	}
}

func TestChatStreamError(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{fragments: []string{"partial"}, err: errors.New("cut off")}, true)
	resp := post(t, ts.URL+"/chat/stream", `{"message":"hi","session_id":"s3"}`)
	var b bytes.Buffer
	b.ReadFrom(resp.Body)
	if !strings.HasPrefix(b.String(), "partial") || !strings.Contains(b.String(), "Error: ") {
		t.Errorf("unexpected body %q", b.String())
	}

	var hist struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, get(t, ts.URL+"/sessions/s3/history"), &hist)
	if len(hist.Messages) != 0 {
		t.Errorf("failed stream should not be committed, got %+v", hist.Messages)
	}
}

func TestClear(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{reply: "ok"}, true)
	post(t, ts.URL+"/chat", `{"message":"hello","session_id":"s1"}`)

	resp := post(t, ts.URL+"/chat/clear?session_id=s1", ``)
	var out map[string]string
	decode(t, resp, &out)
	if out["status"] != "cleared" {
		t.Errorf("unexpected clear response %v", out)
	}

	var hist struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, get(t, ts.URL+"/sessions/s1/history"), &hist)
	if len(hist.Messages) != 0 {
		t.Errorf("expected empty history, got %+v", hist.Messages)
	}
}

func TestSettings(t *testing.T) {
	ts, src := newTestServer(t, &stubLLM{}, true)

	var es settings.EngineSettings
	decode(t, get(t, ts.URL+"/settings"), &es)
	if es.Models[0].APIKey != settings.RedactedAPIKey {
		t.Errorf("api key should be redacted, got %q", es.Models[0].APIKey)
	}

	resp := post(t, ts.URL+"/settings", `{"system_prompt":"be brief","search_provider":"searxng"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if src.stored.SystemPrompt != "be brief" || src.stored.SearchProvider != "searxng" {
		t.Errorf("settings not persisted: %+v", src.stored)
	}

	src.saveErr = errors.New("disk full")
	resp = post(t, ts.URL+"/settings", `{"hotkey":"Ctrl+K"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 on save failure, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, &stubLLM{}, false)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected preflight %d %v", resp.StatusCode, resp.Header)
	}
}
