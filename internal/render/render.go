// Package render defines where streamed answers are shown. Every sink has
// replace-whole-content semantics: callers pass the full text for a slot.
package render

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/i474232898/weather-chat/internal/conversation"
)

// NoticeSlot carries orchestrator notices such as a degraded weather lookup.
const NoticeSlot = "notice"

// Sink displays text for a logical slot.
type Sink interface {
	Render(slot, text string) error
}

// Slot names the display slot of one backend in one variant, e.g.
// "mistral_api" or "mistral_no_api".
func Slot(backendID string, v conversation.Variant) string {
	return backendID + "_" + v.String()
}

// Func adapts a function to Sink.
type Func func(slot, text string) error

func (f Func) Render(slot, text string) error {
	return f(slot, text)
}

// Memory keeps the latest text per slot.
type Memory struct {
	mu    sync.RWMutex
	slots map[string]string
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]string)}
}

func (m *Memory) Render(slot, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = text
	return nil
}

// Get returns the current text of slot.
func (m *Memory) Get(slot string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slots[slot]
}

// Snapshot returns a copy of all slots.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.slots))
	for k, v := range m.slots {
		out[k] = v
	}
	return out
}

// SSE writes render events in text/event-stream format. Unchanged slot text
// is not re-sent.
type SSE struct {
	mu   sync.Mutex
	w    *bufio.Writer
	last map[string]string
}

func NewSSE(w *bufio.Writer) *SSE {
	return &SSE{w: w, last: make(map[string]string)}
}

type renderEvent struct {
	Slot string `json:"slot"`
	Text string `json:"text"`
}

func (s *SSE) Render(slot, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.last[slot]; ok && prev == text {
		return nil
	}
	if err := s.event("render", renderEvent{Slot: slot, Text: text}); err != nil {
		return err
	}
	s.last[slot] = text
	return nil
}

// Event writes an arbitrary named event, used for turn start/end markers.
func (s *SSE) Event(name string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event(name, payload)
}

func (s *SSE) event(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return s.w.Flush()
}
