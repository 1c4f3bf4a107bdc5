// Package memory holds the append-only conversation log an agent session
// accumulates across iterations.
//
// Entries are never rewritten. The log has a single writer, the session's
// agent loop, and is projected into chat messages on every turn.
package memory

import (
	"encoding/json"
	"fmt"
)

// EntryType tags a log entry with its conversational role.
type EntryType string

const (
	EntrySystem      EntryType = "system"
	EntryUser        EntryType = "user"
	EntryAssistant   EntryType = "assistant"
	EntryEnvironment EntryType = "environment"
	// EntryPrompt records what was sent to the LLM for provenance.
	// Prompt entries are never projected back into later prompts.
	EntryPrompt EntryType = "prompt"
)

// Entry is one record in the log. Content is the primary text; when it is
// empty the structured Payload stands in and is serialized on demand.
type Entry struct {
	Type    EntryType      `json:"type"`
	Content string         `json:"content,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Text returns the entry's content, falling back to an indented JSON
// rendering of the payload when no content string was set.
func (e Entry) Text() string {
	if e.Content != "" {
		return e.Content
	}
	if len(e.Payload) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(e.Payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", e.Payload)
	}
	return string(data)
}

// Skipped reports whether this assistant entry records a skipped step and,
// if so, the tool name and skip reason.
func (e Entry) Skipped() (tool, reason string, ok bool) {
	if e.Type != EntryAssistant || e.Payload == nil {
		return "", "", false
	}
	raw, present := e.Payload["skipped"]
	if !present {
		return "", "", false
	}
	reason = fmt.Sprintf("%v", raw)
	if t, has := e.Payload["tool"]; has {
		tool = fmt.Sprintf("%v", t)
	}
	return tool, reason, true
}

// Log is the ordered, append-only entry sequence for one session.
// It is owned by exactly one agent loop and is not safe for concurrent
// mutation; readers receive copies.
type Log struct {
	entries []Entry
}

// New creates an empty log.
func New() *Log {
	return &Log{}
}

// Seeded creates a log pre-populated with entries, preserving order.
func Seeded(entries ...Entry) *Log {
	l := &Log{entries: make([]Entry, len(entries))}
	copy(l.entries, entries)
	return l
}

// Append adds an entry to the end of the log.
func (l *Log) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// AppendText is shorthand for appending a plain string entry.
func (l *Log) AppendText(t EntryType, content string) {
	l.entries = append(l.entries, Entry{Type: t, Content: content})
}

// Entries returns a copy of the log in order.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Task returns the first user entry, the session's originating task,
// or false if none exists yet.
func (l *Log) Task() (Entry, bool) {
	for _, e := range l.entries {
		if e.Type == EntryUser {
			return e, true
		}
	}
	return Entry{}, false
}
