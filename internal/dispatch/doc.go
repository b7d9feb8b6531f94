// Package dispatch fans storage notifications out to bounded delivery
// goroutines after rule matching.
package dispatch
