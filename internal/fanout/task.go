package fanout

import (
	"fmt"
	"strings"
	"sync"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusStreaming Status = "STREAMING"
	StatusDone      Status = "DONE"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

func (s Status) canTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusStreaming || to == StatusDone || to == StatusFailed
	case StatusStreaming:
		return to == StatusDone || to == StatusFailed
	default:
		return false
	}
}

// Task is one backend's response to one prompt. Its text only grows.
type Task struct {
	BackendID   string
	DisplayName string
	Prompt      string

	mu     sync.Mutex
	status Status
	text   strings.Builder
	err    error
}

func newTask(backendID, displayName, prompt string) *Task {
	return &Task{
		BackendID:   backendID,
		DisplayName: displayName,
		Prompt:      prompt,
		status:      StatusPending,
	}
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text.String()
}

// Err is the error that failed the task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) transition(to Status) error {
	if t.status == to {
		return nil
	}
	if !t.status.canTransition(to) {
		return fmt.Errorf("task %s: invalid transition %s -> %s", t.BackendID, t.status, to)
	}
	t.status = to
	return nil
}

// appendDelta records an increment and returns the accumulated text.
func (t *Task) appendDelta(delta string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.transition(StatusStreaming); err != nil {
		return t.text.String(), err
	}
	t.text.WriteString(delta)
	return t.text.String(), nil
}

// complete marks the task DONE.
func (t *Task) complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transition(StatusDone)
}

// fail appends the error notice, marks the task FAILED and returns the
// notice and the accumulated text.
func (t *Task) fail(cause error) (string, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return "", t.text.String(), fmt.Errorf("task %s: already %s", t.BackendID, t.status)
	}

	// llm.Backend prefixes errors with its id; the notice already names it.
	msg := strings.TrimPrefix(cause.Error(), t.BackendID+": ")
	notice := fmt.Sprintf("Error from %s: %s", t.DisplayName, msg)
	if t.text.Len() > 0 {
		notice = "\n\n" + notice
	}
	t.text.WriteString(notice)
	t.err = cause
	t.status = StatusFailed
	return notice, t.text.String(), nil
}
