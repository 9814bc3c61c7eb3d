package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"lightbot/internal/app/orchestrator"
	"lightbot/internal/app/settings"
)

// Version is reported by /health.
const Version = "1.5.0"

// Server exposes the chat engine over HTTP.
type Server struct {
	engine         *orchestrator.Engine
	allowedOrigins []string
}

func NewServer(engine *orchestrator.Engine, allowedOrigins []string) *Server {
	return &Server{engine: engine, allowedOrigins: allowedOrigins}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(CORS(s.allowedOrigins))
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recovery)

	r.Get("/health", s.handleHealth)

	r.Post("/chat", s.handleChat)
	r.Post("/chat/stream", s.handleChatStream)
	r.Post("/chat/clear", s.handleClear)

	r.Get("/settings", s.handleGetSettings)
	r.Post("/settings", s.handleUpdateSettings)

	r.Get("/sessions", s.handleSessions)
	r.Get("/sessions/{id}/history", s.handleHistory)

	return r
}

// ChatRequest is the body of /chat and /chat/stream.
type ChatRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	SearchMode string `json:"search_mode,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ModelAvailable bool   `json:"model_available"`
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseChatRequest validates the body shared by both chat endpoints.
func parseChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, orchestrator.SearchMode, bool) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, "", false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return req, "", false
	}
	mode, err := orchestrator.ParseSearchMode(req.SearchMode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, "", false
	}
	return req, mode, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Version:        Version,
		ModelAvailable: s.engine.ModelAvailable(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, mode, ok := parseChatRequest(w, r)
	if !ok {
		return
	}
	log.Infof(">> Received chat request from %s for session '%s' (search %s)", r.RemoteAddr, req.SessionID, mode)

	answer, err := s.engine.Chat(r.Context(), req.Message, req.SessionID, mode)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: answer})
}

// handleChatStream writes fragments as plain text, flushing after each. A
// failure after the first byte can only be reported inline.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, mode, ok := parseChatRequest(w, r)
	if !ok {
		return
	}
	log.Infof(">> Received streaming chat request from %s for session '%s' (search %s)", r.RemoteAddr, req.SessionID, mode)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for frag, err := range s.engine.ChatStream(r.Context(), req.Message, req.SessionID, mode) {
		if err != nil {
			fmt.Fprintf(w, "\n\nError: %v", err)
			rc.Flush()
			return
		}
		if _, werr := io.WriteString(w, frag); werr != nil {
			log.Warnf("Client for session '%s' went away: %v", req.SessionID, werr)
			return
		}
		if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
			log.Warnf("Flush failed for session '%s': %v", req.SessionID, ferr)
			return
		}
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearMemory(r.URL.Query().Get("session_id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetSettings().Redacted())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u settings.Update
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.engine.UpdateSettings(u); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.engine.Sessions()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   s.engine.History(id),
	})
}
