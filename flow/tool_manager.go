package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// ErrToolNotFound is returned when a forced tool name does not resolve to an
// active tool. It is raised at configuration time, before the loop starts.
var ErrToolNotFound = errors.New("tool not found in active set")

// ToolManagerConfig bounds per-round tool execution.
type ToolManagerConfig struct {
	// MaxToolCallsPerRound truncates the deduplicated call list; 0 executes
	// nothing.
	MaxToolCallsPerRound int
	// MaxParallel caps concurrent executions; 0 or <1 means no explicit limit.
	MaxParallel int
	// Logger receives dedup/truncation/execution telemetry.
	Logger logging.Logger
}

// ToolManager owns the active tool set for one turn. The active set is built
// once from the full candidate list (built-in and externally discovered tools
// are treated identically):
//
//  1. Exclusivity: the first enabled exclusive candidate collapses the set to
//     exactly that tool.
//  2. Enablement: disabled candidates are dropped.
//  3. Forced tools: caller-designated names validated against the active set.
//
// ExecuteSelected deduplicates, truncates and runs calls concurrently with
// per-call fault isolation, returning results index-aligned with the
// deduplicated/truncated input order.
type ToolManager struct {
	active   map[string]tool.Tool
	order    []string // active set in candidate order
	forced   []string
	maxCalls int
	maxPar   int
	logger   logging.Logger

	mu        sync.Mutex
	checklist map[string]struct{}
}

// NewToolManager builds the active set from candidates and config.
func NewToolManager(candidates []tool.Tool, cfg ToolManagerConfig) *ToolManager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	m := &ToolManager{
		active:    make(map[string]tool.Tool),
		maxCalls:  cfg.MaxToolCallsPerRound,
		maxPar:    cfg.MaxParallel,
		logger:    logger,
		checklist: map[string]struct{}{},
	}

	// Exclusivity collapse happens before enablement filtering so that a
	// disabled exclusive tool cannot hollow out the session.
	for _, c := range candidates {
		d := c.Descriptor()
		if d.Enabled && d.Exclusive {
			m.logger.Info("toolmanager.exclusive", "tool", d.Name)
			m.active[d.Name] = c
			m.order = []string{d.Name}
			return m
		}
	}

	for _, c := range candidates {
		d := c.Descriptor()
		if !d.Enabled {
			m.logger.Debug("toolmanager.disabled", "tool", d.Name)
			continue
		}
		if _, dup := m.active[d.Name]; dup {
			m.logger.Warn("toolmanager.duplicate_name", "tool", d.Name)
			continue
		}
		m.active[d.Name] = c
		m.order = append(m.order, d.Name)
	}

	return m
}

// Definitions returns the model-facing schemas for all active tools in
// candidate order.
func (m *ToolManager) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(m.order))
	for _, name := range m.order {
		defs = append(defs, m.active[name].Descriptor().Definition())
	}
	return defs
}

// Prompts returns the prompt fragments of all active tools in candidate
// order for prompt composition.
func (m *ToolManager) Prompts() []tool.PromptFragments {
	out := make([]tool.PromptFragments, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.active[name].Descriptor().Prompts)
	}
	return out
}

// AddForcedTool appends a "must call this tool" directive for round 0.
// Forcing a name outside the active set fails with ErrToolNotFound; forcing
// the same name twice is a deduplicated no-op.
func (m *ToolManager) AddForcedTool(name string) error {
	if _, ok := m.active[name]; !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	for _, f := range m.forced {
		if f == name {
			return nil
		}
	}
	m.forced = append(m.forced, name)
	return nil
}

// ForcedSelectors returns one forced-tool directive per forced name, in the
// order they were added.
func (m *ToolManager) ForcedSelectors() []string {
	return append([]string(nil), m.forced...)
}

// DoesAnyToolTakeControl reports whether any call resolves to a tool whose
// descriptor declares TakesControl.
func (m *ToolManager) DoesAnyToolTakeControl(calls []core.ToolCall) bool {
	for _, c := range calls {
		if t, ok := m.active[c.Name]; ok && t.Descriptor().TakesControl {
			return true
		}
	}
	return false
}

// ControllingToolFromResults returns the name of the first executed call
// whose tool takes control, if any.
func (m *ToolManager) ControllingToolFromResults(results []core.ToolCallResult) (string, bool) {
	for _, r := range results {
		if t, ok := m.active[r.Name]; ok && t.Descriptor().TakesControl {
			return r.Name, true
		}
	}
	return "", false
}

// ChecklistNames returns the running union of evaluation check names declared
// by tools executed so far this turn, in sorted order.
func (m *ToolManager) ChecklistNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.checklist))
	for n := range m.checklist {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ExecuteSelected deduplicates calls by (name, canonical arguments) keeping
// first-seen order, truncates to the per-round bound, then executes the
// remainder concurrently. A fault in one call becomes an error-carrying
// result for that call only; siblings and the round are never aborted.
// Results are index-aligned with the deduplicated/truncated input order.
func (m *ToolManager) ExecuteSelected(ctx context.Context, calls []core.ToolCall) []core.ToolCallResult {
	if len(calls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(calls))
	unique := make([]core.ToolCall, 0, len(calls))
	for _, c := range calls {
		key := c.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}
	if removed := len(calls) - len(unique); removed > 0 {
		m.logger.Info("toolmanager.dedup", "requested", len(calls), "removed", removed)
	}

	if len(unique) > m.maxCalls {
		m.logger.Warn("toolmanager.truncated", "unique", len(unique), "max_per_round", m.maxCalls)
		unique = unique[:m.maxCalls]
	}
	if len(unique) == 0 {
		return nil
	}

	maxPar := m.maxPar
	if maxPar <= 0 || maxPar > len(unique) {
		maxPar = len(unique)
	}

	results := make([]core.ToolCallResult, len(unique))
	sem := make(chan struct{}, maxPar)
	var wg sync.WaitGroup

	batchStart := time.Now()
	for i := range unique {
		if ctx.Err() != nil { // pre-check cancellation
			results[i] = canceledResult(unique[i])
			continue
		}
		wg.Add(1)
		go func(idx int, call core.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = canceledResult(call)
				return
			}

			results[idx] = m.executeOne(ctx, call)
		}(i, unique[i])
	}
	wg.Wait()

	// Union the executed tools' declared checks into the running checklist.
	m.mu.Lock()
	for _, c := range unique {
		if t, ok := m.active[c.Name]; ok {
			for _, check := range t.Descriptor().EvaluationChecks {
				m.checklist[check] = struct{}{}
			}
		}
	}
	m.mu.Unlock()

	m.logger.Debug(
		"toolmanager.batch.complete",
		"count", len(unique),
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// executeOne runs a single call with panic safety, converting every failure
// mode into an error-carrying result.
func (m *ToolManager) executeOne(ctx context.Context, call core.ToolCall) core.ToolCallResult {
	if call.ID == "" {
		call.ID = core.NewID()
	}

	res := core.ToolCallResult{ID: call.ID, Name: call.Name}

	impl, ok := m.active[call.Name]
	if !ok {
		res.ErrorMessage = fmt.Sprintf("tool %s not found", call.Name)
		return res
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			res.ErrorMessage = fmt.Sprintf("failed to unmarshal args: %v", err)
			return res
		}
	}

	tc := tool.NewContext(ctx, call.ID, m.logger)

	start := time.Now()
	var (
		out *tool.Output
		err error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic recovered: %v", r)
				m.logger.Error("toolmanager.tool.panic", "tool", call.Name, "recover", r, "stack", string(debug.Stack()))
			}
		}()
		out, err = impl.Run(tc, args)
	}()

	m.logger.Info(
		"toolmanager.tool.executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if out != nil {
		res.Content = out.Content
		res.Chunks = out.Chunks
		res.Debug = out.Debug
	}
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	return res
}

func canceledResult(call core.ToolCall) core.ToolCallResult {
	id := call.ID
	if id == "" {
		id = core.NewID()
	}
	return core.ToolCallResult{ID: id, Name: call.Name, ErrorMessage: context.Canceled.Error()}
}
