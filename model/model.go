// Package model defines the provider-agnostic abstractions for driving
// language model completions inside AgentLoop.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool definitions, forced tool selection and returned tool calls
//   - Carry citable reference chunks alongside the conversation so the model
//     cites only already-known plus newly supplied material
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface so the
// orchestration layer remains decoupled from vendor SDKs.
package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the orchestrator.
// A nil/empty Tools slice disallows tool use entirely; a non-empty ForceTool
// instructs the provider that exactly that tool must be called.
type Request struct {
	System    string            `json:"system"`
	Messages  []core.Message    `json:"messages"`
	Tools     []ToolDefinition  `json:"tools,omitempty"`
	ForceTool string            `json:"force_tool,omitempty"`
	Chunks    []core.Chunk      `json:"chunks,omitempty"`
	Stream    bool              `json:"stream,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) frame emitted by a streaming model. The
// final frame (Partial=false) is the orchestrator's decision input.
type Response struct {
	Text      string          `json:"text,omitempty"`
	ToolCalls []core.ToolCall `json:"tool_calls,omitempty"`
	Chunks    []core.Chunk    `json:"chunks,omitempty"`
	Partial   bool            `json:"partial,omitempty"`
	Usage     *TokenUsage     `json:"usage,omitempty"`
}

// Empty reports whether a final response carries neither text nor tool calls.
// An empty response is a recognized terminal condition, not a failure.
func (r Response) Empty() bool { return r.Text == "" && len(r.ToolCalls) == 0 }

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Generate
// returns paired channels: zero or more partial frames followed by exactly one
// final frame on success, or an error on the error channel. Both channels are
// closed when generation finishes.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Notifier is the downstream sink for partial/final content and the durable
// completion marker. Nil fields mean "leave unchanged"; consumers (chat
// transport, polling clients) treat completed=true as the stable done signal.
type Notifier interface {
	ModifyMessage(content *string, completed *bool) error
}

// NoOpNotifier discards all sink updates.
type NoOpNotifier struct{}

// ModifyMessage implements Notifier.
func (NoOpNotifier) ModifyMessage(*string, *bool) error { return nil }

// ReferenceBlock renders the accumulated reference chunks as a numbered
// context block for the system prompt, so the model cites by the same
// bracketed ordinals shown to the user. Returns "" when there are no chunks.
func ReferenceBlock(chunks []core.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Reference material (cite by bracketed number):")
	for _, c := range chunks {
		title := c.Title
		if title == "" {
			title = c.Locator
		}
		fmt.Fprintf(&b, "\n[%d] %s (%s)", c.Ordinal, title, c.Locator)
		if c.Text != "" {
			b.WriteString("\n")
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// MockModel is a scripted in-memory Model for tests & examples. Responses are
// consumed in order; the optional RespondFunc overrides the queue entirely.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	queue    []Response
	err      error
	requests []Request

	// RespondFunc, when set, computes the final response from the call index
	// (0-based) and the request. It takes precedence over queued responses.
	RespondFunc func(call int, req Request) (Response, error)
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock", SupportsTools: true}}
}

// EnqueueResponse appends a canned final response to the script.
func (m *MockModel) EnqueueResponse(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resp)
}

// FailWith makes every subsequent call fail with err.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns a copy of all requests observed so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model; optionally emits per-rune partial frames before
// the scripted final frame when streaming is requested.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	call := len(m.requests)
	m.requests = append(m.requests, req)
	err := m.err
	var final Response
	var scripted bool
	if m.RespondFunc == nil && len(m.queue) > 0 {
		final, scripted = m.queue[0], true
		m.queue = m.queue[1:]
	}
	respond := m.RespondFunc
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if err != nil {
			errCh <- err
			return
		}
		if respond != nil {
			var rerr error
			final, rerr = respond(call, req)
			if rerr != nil {
				errCh <- rerr
				return
			}
		} else if !scripted {
			errCh <- fmt.Errorf("mock model: no scripted response for call %d", call)
			return
		}

		if req.Stream && final.Text != "" {
			for _, r := range final.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Text: string(r), Partial: true}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- final:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
