package delivery

import (
	"context"
	"errors"
	"math"
	"time"

	"eduscale/internal/event"
)

// Outcome is the classified result of one delivery attempt.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable-failure"
	OutcomePermanent Outcome = "permanent-failure"
)

var (
	// ErrRejected marks a client-error response: the payload itself is
	// invalid and retrying cannot help.
	ErrRejected = errors.New("delivery rejected by destination")
	// ErrExhausted marks a delivery that failed every scheduled attempt.
	ErrExhausted = errors.New("delivery attempts exhausted")
)

// Attempt records one invocation of a destination.
type Attempt struct {
	Number      int       `json:"number"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExecutedAt  time.Time `json:"executed_at"`
	Outcome     Outcome   `json:"outcome"`
	StatusCode  int       `json:"status_code"`
	Error       string    `json:"error,omitempty"`
}

// Destination is one invocation target for a matched notification. Invoke
// returns an HTTP-like status code; a zero code means the call never
// produced a response (transport failure or timeout) and is retryable.
type Destination interface {
	Name() string
	Invoke(ctx context.Context, n event.Notification) (int, error)
}

// Policy holds the retry schedule. The delay before attempt n+1 is
// BaseDelay * Multiplier^(n-1); MaxAttempts bounds the total number of
// invocations including the first.
type Policy struct {
	BaseDelay      time.Duration
	Multiplier     float64
	MaxAttempts    int
	RequestTimeout time.Duration
}

// DefaultPolicy matches the documented schedule: 10s base, doubling, six
// attempts total.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      10 * time.Second,
		Multiplier:     2,
		MaxAttempts:    6,
		RequestTimeout: 30 * time.Second,
	}
}

// Delay returns the backoff before the attempt following the given number
// of completed attempts.
func (p Policy) Delay(completedAttempts int) time.Duration {
	if completedAttempts < 1 {
		completedAttempts = 1
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(completedAttempts-1)))
}

// classify maps a destination response to an outcome. Success and client
// rejection are terminal; everything else is worth retrying.
func classify(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode >= 400 && statusCode < 500:
		return OutcomePermanent
	default:
		return OutcomeRetryable
	}
}
