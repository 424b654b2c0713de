// Package agent orchestrates session-aware LLM runs with tool loops and provider failover.
//
// Invariants:
// - Runs sharing a session key are serialized on one commandqueue lane.
// - The transcript is loaded before execution; the user prompt and final
//   assistant reply are persisted after execution.
// - Tool calls route through toolexecutor only.
// - Provider errors retry with backoff; exhausted profiles fail over by priority.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{...})
//	result, _ := runner.Run(ctx, agent.RunParams{
//		Prompt:     "hello",
//		SessionKey: "session:1",
//		Config:     agent.DefaultConfig(),
//	})
//	_ = result
package agent
