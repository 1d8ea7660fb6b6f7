// Package agentloop provides a high-level façade over the turn runner and
// its supporting services (tools, models, evaluation checks, postprocessors
// & logging) enabling rapid construction of bounded plan/act agents. Most
// applications interact with this package by:
//  1. Creating an AgentLoop via New() with a model and tools (optionally
//     overriding the turn configuration and registries)
//  2. Running turns per session via RunTurn
//
// The façade delegates orchestration to runner.Runner while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a real provider model, a
// structured logger and a durable notifier.
package agentloop

import (
	"context"

	"github.com/hupe1980/agentloop/config"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/evaluation"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/postprocess"
	"github.com/hupe1980/agentloop/runner"
	"github.com/hupe1980/agentloop/tool"
)

// Options configures the AgentLoop instance.
type Options struct {
	// Config declares the per-turn loop bounds and tool policy.
	Config config.TurnConfig

	// Evaluations holds the post-answer checks tools may select.
	Evaluations *evaluation.Registry

	// Postprocessors holds the ordered final-text transforms.
	Postprocessors *postprocess.Registry

	// Notifier receives partial/final content and the completion marker
	// (defaults to a no-op sink if nil).
	Notifier model.Notifier

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentLoop is the high-level façade aggregating the underlying runner and services.
type AgentLoop struct {
	opts   Options
	runner *runner.Runner
}

// New creates a new AgentLoop instance with optional overrides. Unset
// registries are initialized empty; the configuration defaults to
// config.New().
func New(llm model.Model, tools []tool.Tool, optFns ...func(o *Options)) (*AgentLoop, error) {
	opts := Options{
		Config:         config.New(),
		Evaluations:    evaluation.NewRegistry(),
		Postprocessors: postprocess.NewRegistry(),
		Notifier:       model.NoOpNotifier{},
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r, err := runner.New(llm, tools, opts.Config, func(o *runner.Options) {
		o.Evaluations = opts.Evaluations
		o.Postprocessors = opts.Postprocessors
		o.Notifier = opts.Notifier
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &AgentLoop{opts: opts, runner: r}, nil
}

// RunTurn executes one turn for the session and blocks until it completes,
// hands off control or terminates with a notice.
func (l *AgentLoop) RunTurn(ctx context.Context, sessionID, userText string) (core.TurnOutcome, error) {
	return l.runner.RunTurn(ctx, sessionID, userText)
}

// Cancel aborts the session's in-flight turn, if any, and reports whether one
// was active.
func (l *AgentLoop) Cancel(sessionID string) bool {
	return l.runner.Cancel(sessionID)
}
