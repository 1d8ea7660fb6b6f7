package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/evaluation"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/postprocess"
	"github.com/hupe1980/agentloop/tool"
)

// ErrTurnInFlight is returned when a session already has an active turn.
var ErrTurnInFlight = fmt.Errorf("session already has a turn in flight")

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Evaluations holds the registered post-answer checks.
	Evaluations *evaluation.Registry
	// Postprocessors holds the ordered final-text transforms.
	Postprocessors *postprocess.Registry
	// Notifier receives partial/final content and the completion marker.
	Notifier model.Notifier
	// Logging services.
	Logger logging.Logger
}

// Runner coordinates turn execution across sessions. It owns the long-lived
// pieces (model, tool list, registries, configuration) and builds a fresh
// tool manager and orchestrator for every turn. Public methods are safe for
// concurrent use; each session admits one turn at a time.
type Runner struct {
	llm   model.Model
	tools []tool.Tool
	cfg   config.TurnConfig

	evals    *evaluation.Registry
	posts    *postprocess.Registry
	notifier model.Notifier
	logger   logging.Logger

	activeTurns map[string]context.CancelFunc
	mu          sync.Mutex
}

// New constructs a Runner with optional overrides. The configuration is
// validated up front so misconfigured bounds fail here rather than mid-turn.
func New(llm model.Model, tools []tool.Tool, cfg config.TurnConfig, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		Evaluations:    evaluation.NewRegistry(),
		Postprocessors: postprocess.NewRegistry(),
		Notifier:       model.NoOpNotifier{},
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		llm:         llm,
		tools:       tools,
		cfg:         cfg,
		evals:       opts.Evaluations,
		posts:       opts.Postprocessors,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		activeTurns: make(map[string]context.CancelFunc),
	}, nil
}

// RunTurn executes one turn for the session and blocks until it terminates.
// A second call for the same session while a turn is in flight returns
// ErrTurnInFlight.
func (r *Runner) RunTurn(ctx context.Context, sessionID, userText string) (core.TurnOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if _, busy := r.activeTurns[sessionID]; busy {
		r.mu.Unlock()
		cancel()
		return core.TurnOutcome{}, fmt.Errorf("session %q: %w", sessionID, ErrTurnInFlight)
	}
	r.activeTurns[sessionID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeTurns, sessionID)
		r.mu.Unlock()
		cancel()
	}()

	orch, err := r.buildOrchestrator()
	if err != nil {
		return core.TurnOutcome{}, err
	}

	r.logger.Info("runner.turn.start", "sessionId", sessionID)

	outcome, err := orch.RunTurn(ctx, userText)
	if err != nil {
		r.logger.Error("runner.turn.failed", "sessionId", sessionID, "error", err.Error())
		return core.TurnOutcome{}, err
	}

	r.logger.Info("runner.turn.done",
		"sessionId", sessionID,
		"completed", outcome.Completed,
		"handedOff", outcome.HandedOff,
	)
	return outcome, nil
}

// Cancel aborts the session's in-flight turn, if any, and reports whether one
// was active.
func (r *Runner) Cancel(sessionID string) bool {
	r.mu.Lock()
	cancel, ok := r.activeTurns[sessionID]
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// buildOrchestrator assembles the per-turn tool manager and orchestrator from
// the runner's configuration.
func (r *Runner) buildOrchestrator() (*flow.Orchestrator, error) {
	manager := flow.NewToolManager(r.tools, flow.ToolManagerConfig{
		MaxToolCallsPerRound: r.cfg.MaxToolCallsPerRound,
		MaxParallel:          r.cfg.MaxParallel,
		Logger:               r.logger,
	})
	for _, name := range r.cfg.ForcedTools {
		if err := manager.AddForcedTool(name); err != nil {
			return nil, err
		}
	}

	return flow.NewOrchestrator(r.llm, manager, r.evals, r.posts, func(o *flow.OrchestratorOptions) {
		o.MaxLoopIterations = r.cfg.MaxLoopIterations
		o.Instructions = r.cfg.Instructions
		o.CustomInstructions = r.cfg.CustomInstructions
		o.Stream = r.cfg.Stream
		o.Notifier = r.notifier
		o.Logger = r.logger
	})
}
