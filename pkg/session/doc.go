// Package session persists conversation transcripts as JSONL files.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized.
// - Corrupt transcript lines are skipped on load, never fatal.
//
// Usage:
//
//	store, _ := session.New("/tmp/vesper/sessions", logger)
//	_ = store.Append(ctx, "session:1", session.Message{Role: "user", Content: "hello"})
//	entries, _ := store.Load(ctx, "session:1")
//	_ = entries
package session
