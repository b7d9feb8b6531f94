// Package pipeline sequences a file's progress through the processing
// stages. The orchestrator owns the monotonic stage invariant and the
// idempotency contract that makes at-least-once delivery safe.
package pipeline
