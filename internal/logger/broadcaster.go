package logger

import (
	"encoding/json"
	"sync"
)

const defaultTailSize = 500

// Broadcaster pushes typed messages to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// Entry is a decoded log line as exposed over the API.
type Entry struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Tail is an io.Writer that keeps the most recent log entries in memory
// and forwards each one to a Broadcaster.
type Tail struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	hub     Broadcaster
}

// NewTail creates a Tail retaining up to size entries.
func NewTail(size int) *Tail {
	if size <= 0 {
		size = defaultTailSize
	}
	return &Tail{entries: make([]Entry, size)}
}

// SetHub attaches the broadcaster. It may be called after logging has started.
func (t *Tail) SetHub(hub Broadcaster) {
	t.mu.Lock()
	t.hub = hub
	t.mu.Unlock()
}

// Write implements io.Writer for zerolog JSON output.
func (t *Tail) Write(p []byte) (int, error) {
	entry, ok := decodeEntry(p)
	if !ok {
		return len(p), nil
	}

	t.mu.Lock()
	t.entries[t.next] = entry
	t.next = (t.next + 1) % len(t.entries)
	if t.next == 0 {
		t.full = true
	}
	hub := t.hub
	t.mu.Unlock()

	if hub != nil {
		hub.Broadcast("log:entry", entry)
	}
	return len(p), nil
}

// Recent returns retained entries from oldest to newest.
func (t *Tail) Recent() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		out := make([]Entry, t.next)
		copy(out, t.entries[:t.next])
		return out
	}
	out := make([]Entry, 0, len(t.entries))
	out = append(out, t.entries[t.next:]...)
	out = append(out, t.entries[:t.next]...)
	return out
}

func decodeEntry(data []byte) (Entry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, false
	}

	take := func(key string) string {
		s, _ := raw[key].(string)
		delete(raw, key)
		return s
	}

	e := Entry{
		Time:      take("time"),
		Level:     take("level"),
		Component: take("component"),
		Message:   take("message"),
	}
	if len(raw) > 0 {
		e.Fields = raw
	}
	return e, true
}
