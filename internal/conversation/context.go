// Package conversation tracks the rolling window of prior turns used to
// ground follow-up questions and resolve references like "disana".
package conversation

import (
	"strings"
)

// DefaultTurns is the number of entries rendered into prompts.
const DefaultTurns = 5

// Role is the speaker of a context entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the role name surfaced to prompts.
func (r Role) Label() string {
	if r == RoleAssistant {
		return "Assistant"
	}
	return "Human"
}

// Entry is one line of conversation.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is an append-only sequence of entries. It is not safe for
// concurrent mutation; the session orchestrator is its only writer.
type Context struct {
	entries []Entry
	// filter, when set, rewrites assistant content at render time.
	filter func(string) string
}

// New returns an empty context.
func New() *Context {
	return &Context{}
}

// Append adds an entry to the end of the context.
func (c *Context) Append(role Role, text string) {
	c.entries = append(c.entries, Entry{Role: role, Content: text})
}

// Len returns the number of entries.
func (c *Context) Len() int {
	return len(c.entries)
}

// Entries returns a copy of all entries in chronological order.
func (c *Context) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Render formats the most recent maxTurns entries as "<Role>: <content>"
// lines in chronological order. It returns "" for an empty context.
// A non-positive maxTurns renders DefaultTurns.
func (c *Context) Render(maxTurns int) string {
	if maxTurns <= 0 {
		maxTurns = DefaultTurns
	}

	recent := c.entries
	if len(recent) > maxTurns {
		recent = recent[len(recent)-maxTurns:]
	}

	lines := make([]string, 0, len(recent))
	for _, e := range recent {
		content := e.Content
		if e.Role == RoleAssistant && c.filter != nil {
			content = c.filter(content)
		}
		content = strings.TrimSpace(content)
		if content == "" && e.Role == RoleAssistant && c.filter != nil {
			// Fully scrubbed reply; drop the line instead of emitting an empty one.
			continue
		}
		lines = append(lines, e.Role.Label()+": "+content)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
