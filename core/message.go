package core

// Role tags a history entry with its conversational origin.
type Role string

// Conversation roles recognized by the history store and model adapters.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one append-only history entry. Exactly one of the payload groups
// is populated depending on the role:
//
//   - system/user: Text
//   - assistant: Text and/or ToolCalls (a planning response may carry both)
//   - tool: ToolResult, correlated to its request via ToolResult.ID
//
// Entries are never mutated after insertion; display transforms operate on
// copies only.
type Message struct {
	Role       Role            `json:"role"`
	Text       string          `json:"text,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolResult *ToolCallResult `json:"tool_result,omitempty"`
}

// NewSystemMessage builds a system-role entry.
func NewSystemMessage(text string) Message { return Message{Role: RoleSystem, Text: text} }

// NewUserMessage builds a user-role entry.
func NewUserMessage(text string) Message { return Message{Role: RoleUser, Text: text} }

// NewAssistantMessage builds an assistant text entry.
func NewAssistantMessage(text string) Message { return Message{Role: RoleAssistant, Text: text} }

// NewToolCallMessage builds an assistant entry carrying requested tool calls,
// optionally alongside planning text emitted in the same response.
func NewToolCallMessage(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// NewToolResultMessage builds a tool-role entry wrapping one execution result.
func NewToolResultMessage(result ToolCallResult) Message {
	r := result
	return Message{Role: RoleTool, ToolResult: &r}
}

// Clone returns a deep copy safe for display transforms.
func (m Message) Clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	if m.ToolResult != nil {
		r := *m.ToolResult
		if len(r.Chunks) > 0 {
			r.Chunks = append([]Chunk(nil), r.Chunks...)
		}
		out.ToolResult = &r
	}
	return out
}
