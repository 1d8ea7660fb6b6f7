package flow

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/tool"
)

type tmMockTool struct {
	desc     tool.Descriptor
	delay    time.Duration
	output   *tool.Output
	err      error
	panicMsg any
	runs     int32
}

func (mt *tmMockTool) Descriptor() tool.Descriptor { return mt.desc }

func (mt *tmMockTool) Run(tc *tool.Context, _ map[string]any) (*tool.Output, error) {
	atomic.AddInt32(&mt.runs, 1)
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	return mt.output, mt.err
}

func newMock(name string, mutate ...func(d *tool.Descriptor)) *tmMockTool {
	d := tool.Descriptor{
		Name:        name,
		Description: "mock tool",
		Enabled:     true,
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
	for _, m := range mutate {
		m(&d)
	}
	return &tmMockTool{desc: d, output: &tool.Output{Content: name + " ok"}}
}

func newManager(cfg ToolManagerConfig, tools ...tool.Tool) *ToolManager {
	if cfg.MaxToolCallsPerRound == 0 {
		cfg.MaxToolCallsPerRound = 8
	}
	return NewToolManager(tools, cfg)
}

func call(id, name, args string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestToolManager_EnablementFilter(t *testing.T) {
	m := newManager(ToolManagerConfig{},
		newMock("on"),
		newMock("off", func(d *tool.Descriptor) { d.Enabled = false }),
	)
	defs := m.Definitions()
	if len(defs) != 1 || defs[0].Name != "on" {
		t.Fatalf("expected only enabled tool, got %v", defs)
	}
}

func TestToolManager_ExclusivityCollapse(t *testing.T) {
	m := newManager(ToolManagerConfig{},
		newMock("a"),
		newMock("solo", func(d *tool.Descriptor) { d.Exclusive = true }),
		newMock("b"),
	)
	defs := m.Definitions()
	if len(defs) != 1 || defs[0].Name != "solo" {
		t.Fatalf("expected active set collapsed to exclusive tool, got %v", defs)
	}
}

func TestToolManager_DisabledExclusiveIgnored(t *testing.T) {
	m := newManager(ToolManagerConfig{},
		newMock("a"),
		newMock("solo", func(d *tool.Descriptor) { d.Exclusive = true; d.Enabled = false }),
	)
	defs := m.Definitions()
	if len(defs) != 1 || defs[0].Name != "a" {
		t.Fatalf("disabled exclusive tool must not collapse the set, got %v", defs)
	}
}

func TestToolManager_AddForcedTool(t *testing.T) {
	m := newManager(ToolManagerConfig{}, newMock("x"), newMock("y"))

	if err := m.AddForcedTool("x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Forcing the same name twice stays a single directive.
	if err := m.AddForcedTool("x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sel := m.ForcedSelectors()
	if len(sel) != 1 || sel[0] != "x" {
		t.Fatalf("expected exactly one selector for x, got %v", sel)
	}

	err := m.AddForcedTool("ghost")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestExecuteSelected_DedupWithoutTruncation(t *testing.T) {
	search := newMock("search")
	m := newManager(ToolManagerConfig{MaxToolCallsPerRound: 2}, search)

	// Five identical calls: dedup leaves one unique call, so the bound of two
	// is never exceeded and no truncation occurs.
	calls := make([]core.ToolCall, 5)
	for i := range calls {
		calls[i] = call("c"+string(rune('0'+i)), "search", `{"q":"go"}`)
	}

	results := m.ExecuteSelected(context.Background(), calls)
	if len(results) != 1 {
		t.Fatalf("expected 1 result after dedup, got %d", len(results))
	}
	if got := atomic.LoadInt32(&search.runs); got != 1 {
		t.Fatalf("expected exactly 1 execution, got %d", got)
	}
}

func TestExecuteSelected_DedupRespectsArguments(t *testing.T) {
	search := newMock("search")
	m := newManager(ToolManagerConfig{}, search)

	results := m.ExecuteSelected(context.Background(), []core.ToolCall{
		call("c1", "search", `{"q":"go","limit":3}`),
		call("c2", "search", `{"limit":3,"q":"go"}`), // same args, different key order
		call("c3", "search", `{"q":"rust"}`),
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 unique calls, got %d", len(results))
	}
	if results[0].ID != "c1" || results[1].ID != "c3" {
		t.Fatalf("expected first-seen order preserved, got %v", results)
	}
}

func TestExecuteSelected_Truncation(t *testing.T) {
	a, b, c := newMock("a"), newMock("b"), newMock("c")
	m := newManager(ToolManagerConfig{MaxToolCallsPerRound: 2}, a, b, c)

	results := m.ExecuteSelected(context.Background(), []core.ToolCall{
		call("1", "a", `{}`), call("2", "b", `{}`), call("3", "c", `{}`),
	})
	if len(results) != 2 {
		t.Fatalf("expected truncation to 2 results, got %d", len(results))
	}
	if atomic.LoadInt32(&c.runs) != 0 {
		t.Fatal("truncated call must not execute")
	}
}

func TestExecuteSelected_ZeroBudget(t *testing.T) {
	a := newMock("a")
	m := NewToolManager([]tool.Tool{a}, ToolManagerConfig{MaxToolCallsPerRound: 0})

	results := m.ExecuteSelected(context.Background(), []core.ToolCall{
		call("1", "a", `{}`),
	})
	if results != nil {
		t.Fatalf("zero budget must execute nothing, got %d results", len(results))
	}
	if atomic.LoadInt32(&a.runs) != 0 {
		t.Fatal("tool must not run with a zero budget")
	}
}

func TestExecuteSelected_FaultIsolation(t *testing.T) {
	ok1 := newMock("ok1")
	boom := newMock("boom")
	boom.err = errors.New("backend down")
	ok2 := newMock("ok2")
	m := newManager(ToolManagerConfig{}, ok1, boom, ok2)

	results := m.ExecuteSelected(context.Background(), []core.ToolCall{
		call("1", "ok1", `{}`), call("2", "boom", `{}`), call("3", "ok2", `{}`),
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].IsError() || results[2].IsError() {
		t.Fatalf("siblings must be unaffected: %v", results)
	}
	if !results[1].IsError() || results[1].ErrorMessage == "" {
		t.Fatalf("expected error-carrying result for boom, got %+v", results[1])
	}
}

func TestExecuteSelected_PanicIsolation(t *testing.T) {
	steady := newMock("steady")
	wild := newMock("wild")
	wild.panicMsg = "kaboom"
	m := newManager(ToolManagerConfig{}, steady, wild)

	results := m.ExecuteSelected(context.Background(), []core.ToolCall{
		call("1", "wild", `{}`), call("2", "steady", `{}`),
	})
	if !results[0].IsError() {
		t.Fatal("panicking tool must yield an error result")
	}
	if results[1].IsError() {
		t.Fatal("sibling of panicking tool must succeed")
	}
}

func TestExecuteSelected_ResultsIndexAligned(t *testing.T) {
	slow := newMock("slow")
	slow.delay = 50 * time.Millisecond
	fast := newMock("fast")
	m := newManager(ToolManagerConfig{MaxParallel: 2}, slow, fast)

	results := m.ExecuteSelected(context.Background(), []core.ToolCall{
		call("1", "slow", `{}`), call("2", "fast", `{}`),
	})
	// Completion order is irrelevant; result positions are not.
	if results[0].Name != "slow" || results[1].Name != "fast" {
		t.Fatalf("results not index-aligned: %v", results)
	}
}

func TestExecuteSelected_UnknownTool(t *testing.T) {
	m := newManager(ToolManagerConfig{}, newMock("known"))
	results := m.ExecuteSelected(context.Background(), []core.ToolCall{call("1", "mystery", `{}`)})
	if len(results) != 1 || !results[0].IsError() {
		t.Fatalf("expected error result for unknown tool, got %v", results)
	}
}

func TestExecuteSelected_ChecklistUnion(t *testing.T) {
	a := newMock("a", func(d *tool.Descriptor) { d.EvaluationChecks = []string{"grounded", "cited"} })
	b := newMock("b", func(d *tool.Descriptor) { d.EvaluationChecks = []string{"cited", "concise"} })
	m := newManager(ToolManagerConfig{}, a, b)

	m.ExecuteSelected(context.Background(), []core.ToolCall{call("1", "a", `{}`)})
	m.ExecuteSelected(context.Background(), []core.ToolCall{call("2", "b", `{}`)})

	names := m.ChecklistNames()
	want := []string{"cited", "concise", "grounded"}
	if len(names) != len(want) {
		t.Fatalf("expected checklist union %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected checklist union %v, got %v", want, names)
		}
	}
}

func TestExecuteSelected_Cancellation(t *testing.T) {
	slow := newMock("slow")
	slow.delay = time.Second
	m := newManager(ToolManagerConfig{}, slow)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results := m.ExecuteSelected(ctx, []core.ToolCall{call("1", "slow", `{}`)})
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("cancellation did not propagate into tool execution")
	}
	if len(results) != 1 || !results[0].IsError() {
		t.Fatalf("canceled call must carry an error result, got %v", results)
	}
}

func TestToolManager_TakesControlDetection(t *testing.T) {
	plain := newMock("plain")
	handoff := newMock("handoff", func(d *tool.Descriptor) { d.TakesControl = true })
	m := newManager(ToolManagerConfig{}, plain, handoff)

	if m.DoesAnyToolTakeControl([]core.ToolCall{call("1", "plain", `{}`)}) {
		t.Fatal("plain tool must not take control")
	}
	if !m.DoesAnyToolTakeControl([]core.ToolCall{call("1", "plain", `{}`), call("2", "handoff", `{}`)}) {
		t.Fatal("handoff tool must take control")
	}

	name, ok := m.ControllingToolFromResults([]core.ToolCallResult{{ID: "2", Name: "handoff"}})
	if !ok || name != "handoff" {
		t.Fatalf("expected controlling tool handoff, got %q %v", name, ok)
	}
}

func TestExecuteSelected_GeneratesMissingIDs(t *testing.T) {
	m := newManager(ToolManagerConfig{}, newMock("x"))
	results := m.ExecuteSelected(context.Background(), []core.ToolCall{{Name: "x"}})
	if len(results) != 1 || results[0].ID == "" {
		t.Fatalf("expected generated id, got %v", results)
	}
}
