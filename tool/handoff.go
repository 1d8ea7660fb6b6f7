package tool

import (
	"fmt"
)

// handoffTool requests that a named sub-agent take over the remainder of the
// interaction. Its TakesControl flag makes the orchestrator terminate the
// turn without authoring further text.
type handoffTool struct {
	agents []string
}

// NewHandoffTool constructs the built-in control-handoff tool. The optional
// agent names constrain the valid targets; an empty list accepts any name.
func NewHandoffTool(agents ...string) Tool {
	return &handoffTool{agents: agents}
}

func (t *handoffTool) Descriptor() Descriptor {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent": map[string]any{"type": "string", "description": "Target sub-agent name"},
		},
		"required": []string{"agent"},
	}
	if len(t.agents) > 0 {
		props := params["properties"].(map[string]any)
		props["agent"].(map[string]any)["enum"] = t.agents
	}
	return Descriptor{
		Name:         "handoff_to_agent",
		DisplayName:  "Hand off to sub-agent",
		Description:  "Hand the conversation over to another sub-agent by name. Use when a specialized agent is better suited to continue.",
		Enabled:      true,
		TakesControl: true,
		Parameters:   params,
	}
}

func (t *handoffTool) Run(tc *Context, args map[string]any) (*Output, error) {
	raw, ok := args["agent"]
	if !ok {
		return nil, fmt.Errorf("missing required field 'agent'")
	}
	agentName, ok := raw.(string)
	if !ok || agentName == "" {
		return nil, fmt.Errorf("field 'agent' must be non-empty string")
	}
	if len(t.agents) > 0 && !contains(t.agents, agentName) {
		return nil, fmt.Errorf("unknown sub-agent %q", agentName)
	}

	tc.Logger().Info("tool.handoff", "agent", agentName, "call_id", tc.CallID())

	return &Output{
		Content: fmt.Sprintf("Control handed off to agent %q.", agentName),
		Debug:   map[string]any{"agent": agentName},
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
