// Package daemon assembles the long-running eduscale process: object-store
// watching, rule matching, delivery, stage orchestration, and the status
// HTTP API, guarded by a single-instance lock.
package daemon
