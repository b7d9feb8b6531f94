// Package logging configures slog handlers and shared structured field names.
//
// The console handler renders human-readable single-line output with the
// component name folded into the message prefix; the JSON handler emits
// machine-parseable entries for log sinks. Field name constants keep delivery
// and pipeline log entries queryable across components.
package logging
