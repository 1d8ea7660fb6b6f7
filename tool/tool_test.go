package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/stretchr/testify/assert"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	req, _ := schema["required"].([]string)
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Contains(t, vErr.Message, "expected type integer")
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

// -------------------- FunctionTool Tests --------------------

func testContext() *Context {
	return NewContext(context.Background(), "call-1", logging.NoOpLogger{})
}

func TestFunctionTool_Success(t *testing.T) {
	ft := NewFunctionTool(
		"echo",
		"Echo the input back",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(tc *Context, args map[string]any) (*Output, error) {
			return &Output{Content: args["text"].(string)}, nil
		},
	)

	assert.Equal(t, "echo", ft.Descriptor().Name)
	assert.True(t, ft.Descriptor().Enabled)
	assert.False(t, ft.Descriptor().TakesControl)

	out, err := ft.Run(testContext(), map[string]any{"text": "hi"})
	assert.NoError(t, err)
	assert.Equal(t, "hi", out.Content)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	ft := NewFunctionTool(
		"strict",
		"Requires a field",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"n": map[string]any{"type": "integer"},
			},
			"required": []string{"n"},
		},
		func(tc *Context, args map[string]any) (*Output, error) {
			return &Output{}, nil
		},
	)

	_, err := ft.Run(testContext(), map[string]any{})
	var toolErr *ToolError
	assert.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Equal(t, "strict", toolErr.Tool)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	ft := NewFunctionTool(
		"boom",
		"Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *Context, args map[string]any) (*Output, error) {
			return &Output{Content: "partial"}, errors.New("backend unavailable")
		},
	)

	out, err := ft.Run(testContext(), map[string]any{})
	var toolErr *ToolError
	assert.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	// Partial content survives alongside the error.
	assert.Equal(t, "partial", out.Content)
}

func TestFunctionTool_CustomToolErrorPassthrough(t *testing.T) {
	ft := NewFunctionTool(
		"quota",
		"Fails with custom code",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *Context, args map[string]any) (*Output, error) {
			return nil, NewToolError("quota", "limit reached", "RATE_LIMITED")
		},
	)

	_, err := ft.Run(testContext(), map[string]any{})
	var toolErr *ToolError
	assert.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

func TestFunctionTool_Options(t *testing.T) {
	ft := NewFunctionTool(
		"special",
		"Exclusive disabled tool",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *Context, args map[string]any) (*Output, error) { return &Output{}, nil },
		func(o *FunctionToolOptions) {
			o.Enabled = false
			o.Exclusive = true
			o.Prompts = PromptFragments{System: "Use sparingly."}
			o.EvaluationChecks = []string{"grounded"}
		},
	)

	d := ft.Descriptor()
	assert.False(t, d.Enabled)
	assert.True(t, d.Exclusive)
	assert.Equal(t, "Use sparingly.", d.Prompts.System)
	assert.Equal(t, []string{"grounded"}, d.EvaluationChecks)
}

// -------------------- Handoff Tool Tests --------------------

func TestHandoffTool(t *testing.T) {
	ht := NewHandoffTool("researcher", "coder")
	d := ht.Descriptor()
	assert.True(t, d.TakesControl)
	assert.Equal(t, "handoff_to_agent", d.Name)

	out, err := ht.Run(testContext(), map[string]any{"agent": "coder"})
	assert.NoError(t, err)
	assert.Contains(t, out.Content, "coder")

	_, err = ht.Run(testContext(), map[string]any{"agent": "unknown"})
	assert.Error(t, err)

	_, err = ht.Run(testContext(), map[string]any{})
	assert.Error(t, err)
}
