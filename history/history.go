// Package history provides the turn-scoped, append-only conversation record.
// Entries are never edited after insertion; display/persistence transforms
// operate on copies only, preserving auditability of what the model was
// actually shown.
package history

import (
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// TransformFunc maps an entry to its display/persistence form. It is never
// applied to the entries used for model-call reconstruction.
type TransformFunc func(core.Message) core.Message

// Store is an append-only ordered record of tool-call requests and results
// accumulated during one turn. It is owned exclusively by the orchestrator
// for the turn's lifetime; the internal lock only guards against incidental
// concurrent readers (logging, inspection).
type Store struct {
	mu      sync.RWMutex
	entries []core.Message
}

// NewStore constructs an empty history store.
func NewStore() *Store { return &Store{} }

// AppendToolCalls records an assistant planning entry carrying the requested
// tool calls plus any planning text emitted in the same response.
func (s *Store) AppendToolCalls(text string, calls []core.ToolCall) {
	if len(calls) == 0 && text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, core.NewToolCallMessage(text, append([]core.ToolCall(nil), calls...)))
}

// AppendToolCallResults records one tool-role entry per result, in order,
// each correlated to its request via the echoed call id.
func (s *Store) AppendToolCallResults(results []core.ToolCallResult) {
	if len(results) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		s.entries = append(s.entries, core.NewToolResultMessage(r))
	}
}

// Len returns the number of recorded entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a defensive copy of the raw record.
func (s *Store) Entries() []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// ForModelCall produces the ordered message list for one completion call:
// exactly one system message, the accumulated entries in insertion order
// (tool-call/tool-result pairs retaining their correlating ids) and exactly
// one final user message. When entries exist, the original user text leads
// them so the conversation opens with the user turn the tool calls answered;
// providers reject a history that starts with the assistant role. The list
// is built from raw entries; no transform is ever applied here.
func (s *Store) ForModelCall(originalUserText, renderedSystemPrompt, renderedUserPrompt string) []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Message, 0, len(s.entries)+3)
	out = append(out, core.NewSystemMessage(renderedSystemPrompt))
	if len(s.entries) > 0 {
		out = append(out, core.NewUserMessage(originalUserText))
	}
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	out = append(out, core.NewUserMessage(renderedUserPrompt))
	return out
}

// Rendered returns transformed copies of all entries for display or
// persistence. The stored entries are untouched.
func (s *Store) Rendered(transform TransformFunc) []core.Message {
	entries := s.Entries()
	if transform == nil {
		return entries
	}
	out := make([]core.Message, len(entries))
	for i, e := range entries {
		out[i] = transform(e)
	}
	return out
}
