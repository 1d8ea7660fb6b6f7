// Package evaluation provides pluggable final-answer checks. Checks are
// registered per session, selected per turn by which tools were used, and
// executed concurrently on the final-answer path. A negative verdict is
// reported, never retried.
package evaluation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentloop/core"
)

// Invocation is the material a check inspects: the originating user text, the
// candidate final answer and the turn's accumulated context.
type Invocation struct {
	UserText   string
	FinalText  string
	References []core.Chunk
	ToolsUsed  []string
}

// Result is one check's verdict over a final answer.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"` // set when the check itself failed to run
}

// Check evaluates a final answer. Implementations must be safe for concurrent
// use and respect ctx cancellation.
type Check interface {
	// Name returns the unique check identifier referenced by tool descriptors.
	Name() string

	// Evaluate produces a verdict for the invocation.
	Evaluate(ctx context.Context, inv Invocation) Result
}

// CheckFunc adapts a plain function to the Check interface.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context, inv Invocation) Result
}

// Name implements Check.
func (c CheckFunc) Name() string { return c.CheckName }

// Evaluate implements Check.
func (c CheckFunc) Evaluate(ctx context.Context, inv Invocation) Result {
	return c.Fn(ctx, inv)
}

// Registry holds the registered checks for a session.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry constructs an empty check registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds a check; registering a duplicate name is an error.
func (r *Registry) Register(c Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checks[c.Name()]; ok {
		return fmt.Errorf("evaluation check %q already registered", c.Name())
	}
	r.checks[c.Name()] = c
	return nil
}

// Names returns the registered check names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for n := range r.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunSelected executes the registered subset named by selected concurrently
// and returns all results in deterministic (sorted name) order. Names with no
// registered check are skipped; a check that panics or errors yields a
// negative Result with Err set rather than aborting its siblings.
func (r *Registry) RunSelected(ctx context.Context, selected map[string]struct{}, inv Invocation) []Result {
	r.mu.RLock()
	var run []Check
	for name := range selected {
		if c, ok := r.checks[name]; ok {
			run = append(run, c)
		}
	}
	r.mu.RUnlock()

	if len(run) == 0 {
		return nil
	}
	sort.Slice(run, func(i, j int) bool { return run[i].Name() < run[j].Name() })

	results := make([]Result, len(run))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range run {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					results[i] = Result{
						Name:   c.Name(),
						Passed: false,
						Reason: "check panicked",
						Err:    fmt.Errorf("evaluation check %q panicked: %v", c.Name(), rec),
					}
				}
			}()
			results[i] = c.Evaluate(gctx, inv)
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures live in results

	return results
}
