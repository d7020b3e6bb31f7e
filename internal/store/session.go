package store

import (
	"sync"
	"time"

	"github.com/i474232898/weather-chat/internal/conversation"
)

// HistoryEntry records one completed turn.
type HistoryEntry struct {
	TurnID      string `json:"turn_id"`
	UserInput   string `json:"user_input"`
	Intent      string `json:"intent"`
	City        string `json:"city,omitempty"`
	WeatherData string `json:"weather_data,omitempty"`

	// Responses holds the final text per backend of the primary variant.
	Responses           map[string]string `json:"responses"`
	ResponsesWithAPI    map[string]string `json:"responses_with_api,omitempty"`
	ResponsesWithoutAPI map[string]string `json:"responses_without_api,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Settings are the per-session switches a user can change between turns.
type Settings struct {
	UseWeatherAPI bool `json:"use_weather_api"`
	DualMode      bool `json:"dual_mode"`
}

// Session is one user's isolated conversation state.
type Session struct {
	ID        string
	CreatedAt time.Time

	// turn is held for the duration of a turn; context and history are only
	// mutated by its holder.
	turn sync.Mutex

	mu         sync.RWMutex
	lastActive time.Time
	settings   Settings
	context    *conversation.Dual
	history    []HistoryEntry
	maxHistory int
}

// TryBeginTurn claims the session for one turn. It returns false if another
// turn is in progress.
func (s *Session) TryBeginTurn() bool {
	if !s.turn.TryLock() {
		return false
	}
	s.Touch()
	return true
}

// EndTurn releases the claim taken by TryBeginTurn.
func (s *Session) EndTurn() {
	s.Touch()
	s.turn.Unlock()
}

// Touch marks the session as active now.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Session) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Context returns the conversation context. Callers must hold the turn.
func (s *Session) Context() *conversation.Dual {
	return s.context
}

// AppendHistory stores a completed turn and enforces retention.
func (s *Session) AppendHistory(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entry)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		over := len(s.history) - s.maxHistory
		s.history = s.history[over:]
	}
}

// History returns a copy of the stored turns, oldest first.
func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}
