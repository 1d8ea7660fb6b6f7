// Package tool implements the capability subsystem that lets the orchestrator
// invoke structured external functions (search, lookups, sub-agent handoffs)
// with schema validated arguments, consistent error handling and rich
// metadata for LLM guidance.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// PromptFragments holds the prompt text a tool contributes to composition:
// system-level guidance, user-facing instructions and output formatting hints.
// Empty fields contribute nothing.
type PromptFragments struct {
	System     string `json:"system,omitempty"`
	User       string `json:"user,omitempty"`
	Formatting string `json:"formatting,omitempty"`
}

// Descriptor is the immutable, registration-time description of a tool.
// Built-in categories (exclusivity, control-taking) are explicit flags on this
// shared type rather than subclass hierarchies, so an open-ended tool set can
// be registered per session without a closed enum.
type Descriptor struct {
	// Name is the unique key used in model tool definitions and call routing
	// (snake_case recommended).
	Name string `json:"name"`
	// DisplayName is the human-readable name for UI and logs.
	DisplayName string `json:"display_name,omitempty"`
	// Description is exposed to the model to guide tool selection.
	Description string `json:"description"`
	// Enabled gates session-level availability; disabled tools never enter
	// the active set.
	Enabled bool `json:"enabled"`
	// Exclusive collapses the active set to exactly this tool when selected.
	Exclusive bool `json:"exclusive,omitempty"`
	// TakesControl declares that a call to this tool hands the remainder of
	// the interaction to the tool (e.g. a specialized sub-agent) and ends the
	// base loop.
	TakesControl bool `json:"takes_control,omitempty"`
	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`
	// Prompts are the fragments this tool contributes to prompt composition.
	Prompts PromptFragments `json:"prompts,omitempty"`
	// EvaluationChecks names the evaluation checks that should run over a
	// final answer whenever this tool was used during a turn.
	EvaluationChecks []string `json:"evaluation_checks,omitempty"`
}

// Definition converts the descriptor into its model-facing shape.
func (d Descriptor) Definition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
	}
}

// Output is the structured result of a successful (or partially successful)
// tool run. Chunks carry citable material folded into the reference store.
type Output struct {
	Content string       `json:"content,omitempty"`
	Chunks  []core.Chunk `json:"chunks,omitempty"`
	Debug   any          `json:"debug,omitempty"`
}

// Tool defines the interface implemented by every capability exposed to the
// orchestrator.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully (partial Output plus error is allowed)
//   - Be safe for concurrent use; calls within a round run in parallel
type Tool interface {
	// Descriptor returns the immutable registration-time description.
	Descriptor() Descriptor

	// Run executes the tool with decoded arguments. It must respect
	// cancellation via the Context and may return partial Output alongside a
	// non-nil error.
	Run(tc *Context, args map[string]any) (*Output, error)
}

// Context scopes one tool call execution: cancellation, the correlating call
// id and a logger. It is created by the tool manager per call.
type Context struct {
	ctx    context.Context
	callID string
	logger logging.Logger
}

// NewContext builds a tool execution context.
func NewContext(ctx context.Context, callID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{ctx: ctx, callID: callID, logger: logger}
}

// Context returns the cancellation context for this call.
func (c *Context) Context() context.Context { return c.ctx }

// CallID returns the id of the originating tool call.
func (c *Context) CallID() string { return c.callID }

// Logger returns the logger scoped to this call.
func (c *Context) Logger() logging.Logger { return c.logger }

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
