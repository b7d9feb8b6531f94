// Package status holds the per-file pipeline record and the process-wide
// aggregator store queried by the presentation layer.
package status
