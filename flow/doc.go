// Package flow implements the turn execution pipeline of AgentLoop: the
// ToolManager that owns the active tool set and executes selected calls
// concurrently, and the Orchestrator that drives the bounded plan/act loop
// against a model until it produces a final answer or hands control to a
// takes-control tool.
//
// A turn executes as one strictly sequential pipeline of rounds. The only
// true parallelism is tool execution within a single round; the model
// completion call is the sole suspension point.
package flow
