// Package runner provides the per-session façade over the turn orchestrator.
//
// A Runner owns the pieces that outlive a single turn: the tool list, the
// model, the evaluation and postprocessor registries, and the turn
// configuration. For each turn it builds a fresh tool manager and
// orchestrator from that configuration, enforcing one in-flight turn per
// session.
//
// See runner.go for the operational implementation details.
package runner
