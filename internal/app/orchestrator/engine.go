package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"lightbot/internal/app/session_manager"
	"lightbot/internal/app/settings"
	"lightbot/internal/pkg/models"
	"lightbot/internal/pkg/query_rewrite"
	"lightbot/internal/pkg/search"
)

// DefaultSessionID is used when a caller does not name a session.
const DefaultSessionID = "default"

type SearchMode string

const (
	SearchOff SearchMode = "off"
	SearchOn  SearchMode = "on"
	// SearchAuto is accepted but reserved: it never triggers a search yet.
	SearchAuto SearchMode = "auto"
)

var ErrInvalidSearchMode = errors.New("invalid search mode")

// ParseSearchMode accepts off, on and auto. An empty string means off.
func ParseSearchMode(s string) (SearchMode, error) {
	switch mode := SearchMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return SearchOff, nil
	case SearchOff, SearchOn, SearchAuto:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q (expected off, on or auto)", ErrInvalidSearchMode, s)
	}
}

// TurnState tracks a turn through IDLE, AUGMENTING, ANSWERING and COMMITTED.
type TurnState int

const (
	StateIdle TurnState = iota
	StateAugmenting
	StateAnswering
	StateCommitted
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAugmenting:
		return "AUGMENTING"
	case StateAnswering:
		return "ANSWERING"
	case StateCommitted:
		return "COMMITTED"
	}
	return fmt.Sprintf("TurnState(%d)", int(s))
}

// Searcher runs web searches for augmented turns.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, filters search.Filters) []search.Result
	DisplayName() string
}

// searchUpdater is implemented by searchers whose provider can change at
// runtime, such as *search.Tool.
type searchUpdater interface {
	UpdateSettings(provider, baseURL string)
}

// Engine runs chat turns. It is safe for concurrent use across sessions;
// turns on the same session must not overlap.
type Engine struct {
	store      *session_manager.MemorySessionManager
	settings   *settings.Manager
	rewriter   *query_rewrite.QueryRewriter
	searcher   Searcher
	maxResults int
}

type Option func(*Engine)

// WithMaxResults sets how many search results feed an augmented turn.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// New wires the engine and keeps the rewriter and searcher in step with
// the search settings.
func New(store *session_manager.MemorySessionManager, mgr *settings.Manager, rewriter *query_rewrite.QueryRewriter, searcher Searcher, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		settings:   mgr,
		rewriter:   rewriter,
		searcher:   searcher,
		maxResults: search.DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(e)
	}

	current := mgr.Current()
	e.applySearchSettings(current.SearchProvider, current.SearchURL)
	mgr.OnSearchChange(e.applySearchSettings)
	return e
}

func (e *Engine) applySearchSettings(provider, baseURL string) {
	e.rewriter.SetProvider(provider)
	if u, ok := e.searcher.(searchUpdater); ok {
		u.UpdateSettings(provider, baseURL)
	}
}

func sessionOrDefault(sessionID string) string {
	if sessionID == "" {
		return DefaultSessionID
	}
	return sessionID
}

func logTransition(sessionID string, from, to TurnState) {
	log.Debugf("Session '%s': %s -> %s", sessionID, from, to)
}

// turn is a prepared request to the primary model.
type turn struct {
	messages []models.Message
	searched bool
	query    string
	provider string
}

// prepare builds the outbound messages, running the search augmentation
// first when mode asks for it. Search and rewrite failures only degrade the
// turn.
func (e *Engine) prepare(ctx context.Context, message, sessionID string, mode SearchMode, history []models.Message, fast query_rewrite.Completer) turn {
	s := e.settings.Current()
	systemPrompt := s.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = settings.DefaultSystemPrompt
	}

	var t turn
	switch mode {
	case SearchOn:
		logTransition(sessionID, StateIdle, StateAugmenting)
		startTime := time.Now()
		rw := e.rewriter.Rewrite(ctx, message, history, fast)
		results := e.searcher.Search(ctx, rw.Query, e.maxResults, search.Filters(rw.Params))
		systemPrompt = searchSystemPrompt(results)
		t.searched = true
		t.query = rw.Query
		t.provider = e.searcher.DisplayName()
		log.Debugf("Augmentation for session '%s' took %s", sessionID, time.Since(startTime))
		logTransition(sessionID, StateAugmenting, StateAnswering)
	case SearchAuto:
		log.Debugf("Search mode 'auto' is reserved and does not search yet")
		logTransition(sessionID, StateIdle, StateAnswering)
	case SearchOff:
		logTransition(sessionID, StateIdle, StateAnswering)
	default:
		log.Warnf("Unknown search mode '%s', answering without search", mode)
		logTransition(sessionID, StateIdle, StateAnswering)
	}

	t.messages = make([]models.Message, 0, len(history)+2)
	t.messages = append(t.messages, models.SystemMessage(systemPrompt))
	t.messages = append(t.messages, history...)
	t.messages = append(t.messages, models.UserMessage(message))
	return t
}

// Chat answers message in one piece. A missing model yields
// NoModelConfiguredMessage and no error; a failing primary model returns the
// error and leaves history untouched.
func (e *Engine) Chat(ctx context.Context, message, sessionID string, mode SearchMode) (string, error) {
	sid := sessionOrDefault(sessionID)
	startTime := time.Now()
	defer func() {
		log.Debugf("Engine.Chat for session '%s' took %s", sid, time.Since(startTime))
	}()

	primary, fast := e.settings.Clients()
	if primary == nil {
		log.Warnf("Chat on session '%s' rejected: no model configured", sid)
		return NoModelConfiguredMessage, nil
	}

	history := e.store.History(sid)
	t := e.prepare(ctx, message, sid, mode, history, fast)

	answer, err := primary.Chat(ctx, t.messages)
	if err != nil {
		log.Errorf("Primary model failed for session '%s': %v", sid, err)
		return "", fmt.Errorf("primary model: %w", err)
	}

	e.store.AppendTurn(sid, message, answer)
	logTransition(sid, StateAnswering, StateCommitted)
	return answer, nil
}

// ChatStream answers message fragment by fragment. When the turn was
// augmented, a search announcement comes first; it is not stored. The turn
// is committed only after the model's last fragment, so a consumer that
// stops early or a stream that fails leaves history untouched.
func (e *Engine) ChatStream(ctx context.Context, message, sessionID string, mode SearchMode) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sid := sessionOrDefault(sessionID)
		startTime := time.Now()
		defer func() {
			log.Debugf("Engine.ChatStream for session '%s' took %s", sid, time.Since(startTime))
		}()

		primary, fast := e.settings.Clients()
		if primary == nil {
			log.Warnf("Stream on session '%s' rejected: no model configured", sid)
			yield(NoModelConfiguredMessage, nil)
			return
		}

		history := e.store.History(sid)
		t := e.prepare(ctx, message, sid, mode, history, fast)

		if t.searched {
			if !yield(searchAnnouncement(t.provider, t.query), nil) {
				return
			}
		}

		var answer strings.Builder
		for delta, err := range primary.StreamChat(ctx, t.messages) {
			if err != nil {
				log.Errorf("Primary model stream failed for session '%s': %v", sid, err)
				yield("", fmt.Errorf("primary model: %w", err))
				return
			}
			answer.WriteString(delta)
			if !yield(delta, nil) {
				log.Infof("Stream for session '%s' abandoned, turn not committed", sid)
				return
			}
		}

		e.store.AppendTurn(sid, message, answer.String())
		logTransition(sid, StateAnswering, StateCommitted)
	}
}

// ClearMemory forgets one session, or all of them when sessionID is empty.
func (e *Engine) ClearMemory(sessionID string) {
	e.store.Clear(sessionID)
}

// History returns a copy of a session's stored messages.
func (e *Engine) History(sessionID string) []models.Message {
	return e.store.History(sessionOrDefault(sessionID))
}

func (e *Engine) Sessions() []session_manager.SessionInfo {
	return e.store.Sessions()
}

// GetSettings re-reads the settings source before returning.
func (e *Engine) GetSettings() settings.EngineSettings {
	return e.settings.Get()
}

func (e *Engine) UpdateSettings(u settings.Update) error {
	return e.settings.Update(u)
}

func (e *Engine) ModelAvailable() bool {
	return e.settings.ModelAvailable()
}
