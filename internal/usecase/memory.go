package usecase

import (
	"sync"
	"time"
)

// Turn is one completed exchange in a conversation session.
type Turn struct {
	Query     string
	Answer    string
	SourceIDs []string
	AskedAt   time.Time
}

type session struct {
	turns      []Turn
	lastActive time.Time
}

// ConversationMemory keeps a bounded window of recent turns per
// conversation id. Sessions are independent; exceeding the window
// evicts the oldest turn, and sessions idle past the sweep cutoff are
// dropped wholesale. Safe for concurrent use.
type ConversationMemory struct {
	mu       sync.RWMutex
	sessions map[string]*session
	maxTurns int
}

func NewConversationMemory(maxTurns int) *ConversationMemory {
	return &ConversationMemory{
		sessions: make(map[string]*session),
		maxTurns: maxTurns,
	}
}

// History returns a copy of the session's turns, oldest first. Unknown
// ids return nil.
func (m *ConversationMemory) History(conversationID string) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[conversationID]
	if !ok || len(s.turns) == 0 {
		return nil
	}
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Append records a completed turn, evicting the oldest if the window is
// full.
func (m *ConversationMemory) Append(conversationID string, turn Turn) {
	if conversationID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[conversationID]
	if !ok {
		s = &session{}
		m.sessions[conversationID] = s
	}
	s.turns = append(s.turns, turn)
	if len(s.turns) > m.maxTurns {
		s.turns = s.turns[len(s.turns)-m.maxTurns:]
	}
	s.lastActive = time.Now()
}

// Clear drops a session entirely.
func (m *ConversationMemory) Clear(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, conversationID)
}

// SweepIdle drops sessions with no activity since the idle window and
// returns how many were removed. Run it periodically from the server
// loop.
func (m *ConversationMemory) SweepIdle(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.lastActive.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Sessions returns the number of live sessions.
func (m *ConversationMemory) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
