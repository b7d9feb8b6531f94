// Package rules implements the routing filter that selects a processing
// destination for each storage-finalize notification. Rules are loaded at
// startup and immutable during a run; evaluation is first-match-wins in
// declaration order.
package rules
