package session_manager

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"lightbot/internal/pkg/models"
)

// MemorySessionManager keeps ephemeral per-session chat history in process
// memory. Nothing is persisted; history lives until Clear or process exit.
//
// Different sessions never share storage. Two turns running concurrently on
// the same session are not ordered against each other: callers must let a
// turn commit before starting the next one on that session.
type MemorySessionManager struct {
	mu       sync.RWMutex
	sessions map[string][]models.Message
	maxTurns int
}

// SessionInfo summarizes one live session.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	Messages  int    `json:"messages"`
}

// NewMemorySessionManager creates an empty store. maxTurns caps the number of
// complete user/assistant turns kept per session; 0 keeps everything.
func NewMemorySessionManager(maxTurns int) *MemorySessionManager {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &MemorySessionManager{
		sessions: make(map[string][]models.Message),
		maxTurns: maxTurns,
	}
}

// Append adds a single message to a session, creating it on first use.
func (mgr *MemorySessionManager) Append(sessionID string, msg models.Message) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.sessions[sessionID] = append(mgr.sessions[sessionID], msg)
	mgr.trimLocked(sessionID)
}

// AppendTurn commits a completed turn: the user message and the assistant
// reply are appended together under one lock.
func (mgr *MemorySessionManager) AppendTurn(sessionID, userContent, assistantContent string) {
	startTime := time.Now()
	defer func() {
		log.Debugf("AppendTurn for sessionID '%s' took %v", sessionID, time.Since(startTime))
	}()
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.sessions[sessionID] = append(mgr.sessions[sessionID],
		models.UserMessage(userContent),
		models.AssistantMessage(assistantContent),
	)
	mgr.trimLocked(sessionID)
}

// trimLocked drops the oldest turns beyond maxTurns. mgr.mu must be held.
func (mgr *MemorySessionManager) trimLocked(sessionID string) {
	if mgr.maxTurns == 0 {
		return
	}
	history := mgr.sessions[sessionID]
	limit := mgr.maxTurns * 2
	if len(history) <= limit {
		return
	}
	dropped := len(history) - limit
	trimmed := make([]models.Message, limit)
	copy(trimmed, history[dropped:])
	mgr.sessions[sessionID] = trimmed
	log.Debugf("Trimmed %d messages from session '%s' (max %d turns)", dropped, sessionID, mgr.maxTurns)
}

// History returns a copy of the session's messages in conversation order.
// Unknown sessions yield an empty, non-nil slice.
func (mgr *MemorySessionManager) History(sessionID string) []models.Message {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	history := mgr.sessions[sessionID]
	out := make([]models.Message, len(history))
	copy(out, history)
	return out
}

// Clear drops one session's history, or every session when sessionID is empty.
func (mgr *MemorySessionManager) Clear(sessionID string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if sessionID == "" {
		count := len(mgr.sessions)
		mgr.sessions = make(map[string][]models.Message)
		log.Infof("Cleared memory for all %d sessions", count)
		return
	}
	delete(mgr.sessions, sessionID)
	log.Infof("Cleared memory for session '%s'", sessionID)
}

// Sessions lists live sessions sorted by id.
func (mgr *MemorySessionManager) Sessions() []SessionInfo {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(mgr.sessions))
	for id, history := range mgr.sessions {
		infos = append(infos, SessionInfo{SessionID: id, Messages: len(history)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos
}

// GenerateSessionID creates a short, non-dash-separated unique ID.
func GenerateSessionID() string {
	b := make([]byte, 8)
	_, err := rand.Read(b)
	if err != nil {
		// Fallback to uuid with dashes removed if random generation fails
		log.Warnf("Failed to generate random bytes: %v, falling back to uuid", err)
		return strings.ReplaceAll(uuid.NewString(), "-", "")[0:16]
	}
	return hex.EncodeToString(b)
}
