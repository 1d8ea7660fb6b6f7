package core

// TurnState tracks the orchestrator's loop bookkeeping for one turn. It is
// created at turn start, mutated only by the orchestrator and discarded at
// turn end.
type TurnState struct {
	// Iteration is the 0-based round counter, bounded by the configured
	// maximum loop iterations.
	Iteration int
	// ForcedTools lists tool names the caller mandates for round 0.
	ForcedTools []string
	// Checklist is the running union of evaluation check names declared by
	// tools executed so far this turn.
	Checklist map[string]struct{}
	// Completed marks the turn as having reached a durable terminal state.
	Completed bool
}

// NewTurnState initializes the per-turn bookkeeping.
func NewTurnState(forcedTools []string) *TurnState {
	return &TurnState{
		ForcedTools: append([]string(nil), forcedTools...),
		Checklist:   map[string]struct{}{},
	}
}

// MergeChecklist unions the given check names into the running checklist.
func (s *TurnState) MergeChecklist(names []string) {
	for _, n := range names {
		s.Checklist[n] = struct{}{}
	}
}

// TurnOutcome is the terminal signal returned to the caller. Completed is the
// sole durable "done" marker: a canceled turn never reports Completed=true.
type TurnOutcome struct {
	// Completed reports that the turn reached a normal terminal state
	// (final answer, empty-response notice or max-iterations notice).
	Completed bool `json:"completed"`
	// HandedOff reports that a takes-control tool assumed responsibility for
	// further interaction; Text is empty in that case.
	HandedOff bool `json:"handed_off,omitempty"`
	// HandoffTool names the tool that took control when HandedOff is set.
	HandoffTool string `json:"handoff_tool,omitempty"`
	// Text is the final orchestrator-authored answer, post-processed.
	Text string `json:"text,omitempty"`
	// References holds the accumulated citable chunks in stable ordinal order.
	References []Chunk `json:"references,omitempty"`
}
