// Package delivery performs at-least-once delivery of matched notifications
// to their processing destinations with exponential backoff and outcome
// classification.
package delivery
