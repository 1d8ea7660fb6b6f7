package core

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// ToolCall describes a tool invocation requested by the model within one
// round. IDs are unique per round; providers that omit them get a generated
// UUID so request/response correlation never breaks.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"` // JSON object payload
}

// DedupKey returns the (name, canonical-arguments) pair that identifies
// semantically identical calls. Arguments are canonicalized by decoding into a
// map and re-encoding, which sorts object keys; malformed or empty payloads
// fall back to the raw bytes so distinct garbage never collides.
func (c ToolCall) DedupKey() string {
	return c.Name + "\x00" + canonicalArgs(c.Arguments)
}

func canonicalArgs(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return string(raw)
	}
	return string(b)
}

// ToolCallResult captures the outcome of one executed ToolCall. Content and
// ErrorMessage are mutually informative: a failed call may still carry partial
// content worth showing to the model.
type ToolCallResult struct {
	ID           string  `json:"id"`   // echoes ToolCall.ID
	Name         string  `json:"name"` // echoes ToolCall.Name
	Content      string  `json:"content,omitempty"`
	Chunks       []Chunk `json:"chunks,omitempty"`
	Debug        any     `json:"debug,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// IsError reports whether the result carries an execution failure.
func (r ToolCallResult) IsError() bool { return r.ErrorMessage != "" }

// NewID generates a unique identifier for tool calls and turns.
func NewID() string { return uuid.NewString() }

// SortedNames returns the distinct tool names referenced by calls in
// lexicographic order. Useful for logging and evaluation selection.
func SortedNames(calls []ToolCall) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, c := range calls {
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}
