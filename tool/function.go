package tool

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as an
// AgentLoop tool.
//
// Responsibilities:
//   - Holds the tool's Descriptor (flags, schema, prompt fragments, checks)
//   - Validates model supplied arguments against the schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent
//     codes: VALIDATION_ERROR for schema mismatches, EXECUTION_ERROR for
//     wrapped function failures (custom codes preserved when the function
//     returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	desc Descriptor
	fn   func(tc *Context, args map[string]any) (*Output, error)
}

// FunctionToolOptions configures optional Descriptor fields of a FunctionTool.
type FunctionToolOptions struct {
	DisplayName      string
	Enabled          bool
	Exclusive        bool
	TakesControl     bool
	Prompts          PromptFragments
	EvaluationChecks []string
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
// Tools are enabled by default; use the options to flip flags or attach
// prompt fragments and evaluation checks.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *tool.Context, args map[string]any) (*tool.Output, error) {
//	    sum := args["a"].(float64) + args["b"].(float64)
//	    return &tool.Output{Content: fmt.Sprintf("%v", sum)}, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(tc *Context, args map[string]any) (*Output, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{Enabled: true}
	for _, f := range optFns {
		f(&opts)
	}

	return &FunctionTool{
		desc: Descriptor{
			Name:             name,
			DisplayName:      opts.DisplayName,
			Description:      description,
			Enabled:          opts.Enabled,
			Exclusive:        opts.Exclusive,
			TakesControl:     opts.TakesControl,
			Parameters:       parameters,
			Prompts:          opts.Prompts,
			EvaluationChecks: opts.EvaluationChecks,
		},
		fn: fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection, producing a schema equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(tc *Context, args map[string]any) (*Output, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Descriptor returns the tool's registration-time description.
func (t *FunctionTool) Descriptor() Descriptor { return t.desc }

// Run validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Run(tc *Context, args map[string]any) (*Output, error) {
	logger := tc.Logger()
	start := time.Now()

	logger.Debug("tool.run.start", "tool", t.desc.Name, "call_id", tc.CallID())

	if err := util.ValidateParameters(args, t.desc.Parameters); err != nil {
		logger.Warn("tool.run.validation_failed", "tool", t.desc.Name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.desc.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	out, err := t.fn(tc, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return out, toolErr
		}
		return out, &ToolError{
			Tool:    t.desc.Name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	logger.Debug("tool.run.done", "tool", t.desc.Name, "call_id", tc.CallID(), "duration_ms", time.Since(start).Milliseconds())

	return out, nil
}
