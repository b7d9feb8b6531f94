// Package services provides shared error classification and context helpers
// used across pipeline stages and the delivery coordinator.
package services
