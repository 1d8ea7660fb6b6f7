package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/evaluation"
	"github.com/hupe1980/agentloop/history"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/postprocess"
	"github.com/hupe1980/agentloop/reference"
)

// User-visible notices for the recognized terminal conditions. These are
// normal outcomes, not failures.
const (
	EmptyResponseNotice = "I was unable to produce a response for this request. Please try rephrasing it."
	MaxIterationsNotice = "The maximum number of reasoning steps was reached without a conclusive answer. Please refine your request."
)

// DefaultInstructions is the base system prompt when the caller supplies none.
const DefaultInstructions = "You are a helpful AI assistant. Use the available tools when they improve your answer, and cite the provided reference material by its bracketed number."

// phase models the orchestrator's state machine:
// planning -> {toolExecution | finalizing} -> terminated.
type phase int

const (
	phasePlanning phase = iota
	phaseToolExecution
	phaseFinalizing
	phaseTerminated
)

func (p phase) String() string {
	switch p {
	case phasePlanning:
		return "PLANNING"
	case phaseToolExecution:
		return "TOOL_EXECUTION"
	case phaseFinalizing:
		return "FINALIZING"
	case phaseTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// OrchestratorOptions configures a single-turn Orchestrator.
type OrchestratorOptions struct {
	// MaxLoopIterations bounds the plan/act rounds per turn; must be >= 1.
	MaxLoopIterations int
	// Instructions is the base system prompt; DefaultInstructions when empty.
	Instructions string
	// CustomInstructions is caller-supplied text appended to the system prompt.
	CustomInstructions string
	// Stream requests partial frames from the model, forwarded to the Notifier.
	Stream bool
	// Notifier receives partial/final content and the durable completion
	// marker; defaults to model.NoOpNotifier.
	Notifier model.Notifier
	// Logger defaults to logging.NoOpLogger.
	Logger logging.Logger
}

// Orchestrator drives the bounded loop composing the tool manager, history
// and reference stores and the evaluation/postprocessor registries with a
// model. It owns its stores exclusively for the turn's duration; one
// in-flight turn per conversation is assumed.
type Orchestrator struct {
	llm      model.Model
	tools    *ToolManager
	history  *history.Store
	refs     *reference.Store
	evals    *evaluation.Registry
	posts    *postprocess.Registry
	notifier model.Notifier
	logger   logging.Logger
	opts     OrchestratorOptions
}

// NewOrchestrator wires a turn orchestrator. The registries may be nil when a
// session registers no checks or transforms.
func NewOrchestrator(
	llm model.Model,
	tools *ToolManager,
	evals *evaluation.Registry,
	posts *postprocess.Registry,
	optFns ...func(o *OrchestratorOptions),
) (*Orchestrator, error) {
	opts := OrchestratorOptions{
		MaxLoopIterations: 5,
		Instructions:      DefaultInstructions,
		Notifier:          model.NoOpNotifier{},
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxLoopIterations < 1 {
		return nil, fmt.Errorf("max loop iterations must be >= 1, got %d", opts.MaxLoopIterations)
	}
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	if opts.Notifier == nil {
		opts.Notifier = model.NoOpNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if evals == nil {
		evals = evaluation.NewRegistry()
	}
	if posts == nil {
		posts = postprocess.NewRegistry()
	}

	return &Orchestrator{
		llm:      llm,
		tools:    tools,
		history:  history.NewStore(),
		refs:     reference.NewStore(opts.Logger),
		evals:    evals,
		posts:    posts,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		opts:     opts,
	}, nil
}

// History exposes the turn's append-only record for display/persistence.
func (o *Orchestrator) History() *history.Store { return o.history }

// References exposes the turn's reference store.
func (o *Orchestrator) References() *reference.Store { return o.refs }

// RunTurn executes one turn: from user input to completion or control
// handoff. A canceled context aborts in-flight work and never yields a
// Completed outcome.
func (o *Orchestrator) RunTurn(ctx context.Context, userText string) (core.TurnOutcome, error) {
	state := core.NewTurnState(o.tools.ForcedSelectors())
	usedTools := map[string]struct{}{}

	systemPrompt, err := o.composeSystemPrompt()
	if err != nil {
		return core.TurnOutcome{}, err
	}
	userPrompt := o.composeUserPrompt(userText)

	for {
		if err := ctx.Err(); err != nil {
			return core.TurnOutcome{}, err
		}

		o.logger.Debug("orchestrator.phase", "phase", phasePlanning.String(), "iteration", state.Iteration)

		resp, err := o.plan(ctx, state, userText, systemPrompt, userPrompt)
		if err != nil {
			return core.TurnOutcome{}, fmt.Errorf("model completion failed: %w", err)
		}
		o.refs.Add(resp.Chunks)

		if resp.Empty() {
			o.logger.Warn("orchestrator.empty_response", "iteration", state.Iteration)
			return o.finishWithNotice(ctx, state, EmptyResponseNotice)
		}

		if len(resp.ToolCalls) == 0 {
			return o.finalize(ctx, state, userText, resp.Text, usedTools)
		}

		o.logger.Debug("orchestrator.phase", "phase", phaseToolExecution.String(), "iteration", state.Iteration, "calls", len(resp.ToolCalls))

		o.history.AppendToolCalls(resp.Text, resp.ToolCalls)
		results := o.tools.ExecuteSelected(ctx, resp.ToolCalls)
		if err := ctx.Err(); err != nil {
			return core.TurnOutcome{}, err
		}
		o.history.AppendToolCallResults(results)
		o.refs.ExtractFromResults(results)
		state.MergeChecklist(o.tools.ChecklistNames())
		for _, r := range results {
			usedTools[r.Name] = struct{}{}
		}

		if name, ok := o.tools.ControllingToolFromResults(results); ok {
			o.logger.Info("orchestrator.handoff", "tool", name, "iteration", state.Iteration)
			o.signalCompleted(nil)
			o.logger.Debug("orchestrator.phase", "phase", phaseTerminated.String())
			return core.TurnOutcome{
				HandedOff:   true,
				HandoffTool: name,
				References:  o.refs.Chunks(),
			}, nil
		}

		state.Iteration++
		if state.Iteration >= o.opts.MaxLoopIterations {
			return o.exhausted(ctx, state, systemPrompt, userPrompt, userText, usedTools)
		}
	}
}

// plan issues the model call(s) for the current iteration following the
// per-iteration tool-definition policy.
func (o *Orchestrator) plan(ctx context.Context, state *core.TurnState, userText, systemPrompt, userPrompt string) (model.Response, error) {
	messages := o.history.ForModelCall(userText, systemPrompt, userPrompt)

	// Round 0 with forced tools: one completion per forced tool under a
	// "must call exactly this tool" directive, merged into one logical
	// response.
	if state.Iteration == 0 && len(state.ForcedTools) > 0 {
		var merged model.Response
		for _, forced := range state.ForcedTools {
			resp, err := o.complete(ctx, model.Request{
				System:    systemPrompt,
				Messages:  messages,
				Tools:     o.tools.Definitions(),
				ForceTool: forced,
				Chunks:    o.refs.Chunks(),
				Stream:    o.opts.Stream,
			})
			if err != nil {
				return model.Response{}, err
			}
			if merged.Text == "" {
				merged.Text = resp.Text
			}
			merged.ToolCalls = append(merged.ToolCalls, resp.ToolCalls...)
			merged.Chunks = append(merged.Chunks, resp.Chunks...)
		}
		return merged, nil
	}

	req := model.Request{
		System:   systemPrompt,
		Messages: messages,
		Chunks:   o.refs.Chunks(),
		Stream:   o.opts.Stream,
	}
	// Last allowed iteration: omit tool definitions, forcing a direct answer.
	if state.Iteration < o.opts.MaxLoopIterations-1 {
		req.Tools = o.tools.Definitions()
	}
	return o.complete(ctx, req)
}

// complete drains one generation, forwarding accumulated partial text to the
// notifier and returning the final frame.
func (o *Orchestrator) complete(ctx context.Context, req model.Request) (model.Response, error) {
	respCh, errCh := o.llm.Generate(ctx, req)

	var (
		final    model.Response
		gotFinal bool
		partial  strings.Builder
	)

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				partial.WriteString(resp.Text)
				text := partial.String()
				if err := o.notifier.ModifyMessage(&text, nil); err != nil {
					o.logger.Warn("orchestrator.notify.partial", "error", err.Error())
				}
				continue
			}
			final = resp
			gotFinal = true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return model.Response{}, err
			}
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		}
	}

	if !gotFinal {
		return model.Response{}, fmt.Errorf("model closed stream without a final response")
	}
	return final, nil
}

// exhausted handles the iteration bound: one additional no-tools attempt,
// then termination regardless of outcome.
func (o *Orchestrator) exhausted(ctx context.Context, state *core.TurnState, systemPrompt, userPrompt, userText string, usedTools map[string]struct{}) (core.TurnOutcome, error) {
	o.logger.Warn("orchestrator.max_iterations", "max", o.opts.MaxLoopIterations)

	resp, err := o.complete(ctx, model.Request{
		System:   systemPrompt,
		Messages: o.history.ForModelCall(userText, systemPrompt, userPrompt),
		Chunks:   o.refs.Chunks(),
		Stream:   o.opts.Stream,
	})
	if err != nil {
		return core.TurnOutcome{}, fmt.Errorf("model completion failed: %w", err)
	}
	o.refs.Add(resp.Chunks)

	// Still inconclusive: no direct answer despite omitted tool definitions.
	if resp.Text == "" || len(resp.ToolCalls) > 0 {
		return o.finishWithNotice(ctx, state, MaxIterationsNotice)
	}
	return o.finalize(ctx, state, userText, resp.Text, usedTools)
}

// finalize runs the tool-selected evaluation checks and the postprocessor
// chain over the final text, then terminates the turn.
func (o *Orchestrator) finalize(ctx context.Context, state *core.TurnState, userText, text string, usedTools map[string]struct{}) (core.TurnOutcome, error) {
	o.logger.Debug("orchestrator.phase", "phase", phaseFinalizing.String(), "iteration", state.Iteration)

	toolsUsed := make([]string, 0, len(usedTools))
	for name := range usedTools {
		toolsUsed = append(toolsUsed, name)
	}

	results := o.evals.RunSelected(ctx, state.Checklist, evaluation.Invocation{
		UserText:   userText,
		FinalText:  text,
		References: o.refs.Chunks(),
		ToolsUsed:  toolsUsed,
	})
	for _, r := range results {
		if r.Err != nil {
			o.logger.Error("orchestrator.evaluation.failed", "check", r.Name, "error", r.Err.Error())
			continue
		}
		if !r.Passed {
			o.logger.Warn("orchestrator.evaluation.negative", "check", r.Name, "reason", r.Reason)
		}
	}

	processed, err := o.posts.Apply(ctx, text)
	if err != nil {
		return core.TurnOutcome{}, err
	}

	if err := ctx.Err(); err != nil {
		return core.TurnOutcome{}, err
	}

	state.Completed = true
	o.signalCompleted(&processed)
	o.logger.Debug("orchestrator.phase", "phase", phaseTerminated.String())

	return core.TurnOutcome{
		Completed:  true,
		Text:       processed,
		References: o.refs.Chunks(),
	}, nil
}

// finishWithNotice terminates the turn with a standard user-visible notice.
func (o *Orchestrator) finishWithNotice(ctx context.Context, state *core.TurnState, notice string) (core.TurnOutcome, error) {
	if err := ctx.Err(); err != nil {
		return core.TurnOutcome{}, err
	}

	state.Completed = true
	o.signalCompleted(&notice)
	o.logger.Debug("orchestrator.phase", "phase", phaseTerminated.String())

	return core.TurnOutcome{
		Completed:  true,
		Text:       notice,
		References: o.refs.Chunks(),
	}, nil
}

// signalCompleted marks the downstream message done, optionally with final
// content, so polling clients observe a stable done marker on every terminal
// path.
func (o *Orchestrator) signalCompleted(content *string) {
	completed := true
	if err := o.notifier.ModifyMessage(content, &completed); err != nil {
		o.logger.Warn("orchestrator.notify.completed", "error", err.Error())
	}
}

// composeSystemPrompt joins the base instruction, caller-supplied custom
// instructions and the active tools' system fragments, then renders template
// markers.
func (o *Orchestrator) composeSystemPrompt() (string, error) {
	parts := []string{o.opts.Instructions}
	if o.opts.CustomInstructions != "" {
		parts = append(parts, o.opts.CustomInstructions)
	}
	for _, p := range o.tools.Prompts() {
		if p.System != "" {
			parts = append(parts, p.System)
		}
	}

	joined := strings.Join(parts, "\n\n")
	rendered, err := util.RenderTemplate(joined, map[string]any{})
	if err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return rendered, nil
}

// composeUserPrompt appends the active tools' user and formatting fragments
// to the raw user text.
func (o *Orchestrator) composeUserPrompt(userText string) string {
	parts := []string{userText}
	for _, p := range o.tools.Prompts() {
		if p.User != "" {
			parts = append(parts, p.User)
		}
	}
	for _, p := range o.tools.Prompts() {
		if p.Formatting != "" {
			parts = append(parts, p.Formatting)
		}
	}
	return strings.Join(parts, "\n\n")
}
