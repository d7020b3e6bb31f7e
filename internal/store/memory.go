package store

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-chat/internal/conversation"
)

var (
	// ErrNotFound is returned when no session exists for an id.
	ErrNotFound = errors.New("session not found")
)

// MemoryStore is a concurrency-safe in-memory session store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: session id
	data map[string]*Session

	// retention configuration
	maxHistory int // max number of history entries per session
	defaults   Settings
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, history is unlimited.
func NewMemoryStore(maxHistory int, defaults Settings) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*Session),
		maxHistory: maxHistory,
		defaults:   defaults,
	}
}

// Defaults returns the settings new sessions start with.
func (s *MemoryStore) Defaults() Settings {
	return s.defaults
}

// Create starts a new session with the given settings.
func (s *MemoryStore) Create(settings Settings) *Session {
	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		lastActive: now,
		settings:   settings,
		context:    conversation.NewDual(),
		maxHistory: s.maxHistory,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sess.ID] = sess
	return sess
}

// Get returns the session for id.
func (s *MemoryStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session for id.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Sweep removes sessions idle since before now-maxIdle and returns how many
// were removed. Sessions in the middle of a turn are kept.
func (s *MemoryStore) Sweep(now time.Time, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := now.Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.data {
		if !sess.LastActive().Before(cutoff) {
			continue
		}
		if !sess.turn.TryLock() {
			continue
		}
		delete(s.data, id)
		sess.turn.Unlock()
		removed++
	}
	return removed
}
