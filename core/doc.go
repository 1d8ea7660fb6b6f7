// Package core provides the foundational domain types used by AgentLoop. It
// defines the shared vocabulary of a single orchestrated turn:
//
//   - ToolCall / ToolCallResult (model-requested invocations and their outcomes)
//   - Chunk (deduplicated, citable reference material)
//   - Message (append-only conversation history entries)
//   - TurnState / TurnOutcome (loop bookkeeping and the terminal signal)
//
// The package intentionally keeps implementation concerns (tool execution,
// model transport, the orchestration loop itself) out of scope so that every
// higher layer can depend on it without cycles. All exported identifiers
// include concise documentation to aid discoverability and external
// consumption.
package core
