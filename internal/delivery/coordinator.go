package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eduscale/internal/event"
	"eduscale/internal/logging"
)

// WaitFunc suspends the calling delivery until the delay elapses or the
// context ends. Tests substitute an instant implementation.
type WaitFunc func(ctx context.Context, delay time.Duration) error

// ExhaustedFunc observes deliveries that failed every attempt.
type ExhaustedFunc func(ctx context.Context, n event.Notification, destination string, attempts []Attempt)

// Coordinator drives the per-(notification, destination) attempt state
// machine: invoke, classify, back off, retry, until success or a permanent
// failure. It holds no record locks; backoff waits suspend only the one
// delivery.
type Coordinator struct {
	policy      Policy
	wait        WaitFunc
	onExhausted ExhaustedFunc
	logger      *slog.Logger
}

// Option adjusts coordinator construction.
type Option func(*Coordinator)

// WithWaitFunc replaces the timer-based backoff wait.
func WithWaitFunc(wait WaitFunc) Option {
	return func(c *Coordinator) { c.wait = wait }
}

// WithExhaustedHook registers a callback for exhausted deliveries.
func WithExhaustedHook(hook ExhaustedFunc) Option {
	return func(c *Coordinator) { c.onExhausted = hook }
}

// NewCoordinator builds a coordinator for the given retry policy.
func NewCoordinator(policy Policy, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	c := &Coordinator{
		policy: policy,
		wait:   timerWait,
		logger: logger.With(logging.String(logging.FieldComponent, "delivery")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver runs the attempt sequence for one matched notification. It returns
// every attempt made plus a nil error on success, ErrRejected on a client
// error, ErrExhausted when retries ran out, or the context error when the
// process is shutting down mid-backoff.
func (c *Coordinator) Deliver(ctx context.Context, n event.Notification, dest Destination) ([]Attempt, error) {
	log := c.logger.With(
		logging.String(logging.FieldEventID, n.ID),
		logging.String(logging.FieldDestination, dest.Name()),
		logging.String("object_path", n.ObjectPath),
	)

	attempts := make([]Attempt, 0, c.policy.MaxAttempts)
	scheduledAt := time.Now().UTC()

	for number := 1; number <= c.policy.MaxAttempts; number++ {
		attempt := Attempt{Number: number, ScheduledAt: scheduledAt, Outcome: OutcomePending}

		invokeCtx := ctx
		cancel := context.CancelFunc(func() {})
		if c.policy.RequestTimeout > 0 {
			invokeCtx, cancel = context.WithTimeout(ctx, c.policy.RequestTimeout)
		}
		statusCode, invokeErr := dest.Invoke(invokeCtx, n)
		cancel()

		attempt.ExecutedAt = time.Now().UTC()
		attempt.StatusCode = statusCode
		if invokeErr != nil {
			attempt.Error = invokeErr.Error()
		}
		if statusCode == 0 {
			attempt.Outcome = OutcomeRetryable
		} else {
			attempt.Outcome = classify(statusCode)
		}

		exhausted := false
		if attempt.Outcome == OutcomeRetryable && number == c.policy.MaxAttempts {
			attempt.Outcome = OutcomePermanent
			exhausted = true
		}
		attempts = append(attempts, attempt)

		log.Info("delivery attempt",
			logging.Int("attempt", number),
			logging.Int("status_code", statusCode),
			logging.String("outcome", string(attempt.Outcome)),
		)

		switch attempt.Outcome {
		case OutcomeSuccess:
			return attempts, nil
		case OutcomePermanent:
			if exhausted {
				c.logExhausted(log, n, dest.Name(), attempts)
				if c.onExhausted != nil {
					c.onExhausted(ctx, n, dest.Name(), attempts)
				}
				return attempts, fmt.Errorf("%w after %d attempts: %s", ErrExhausted, len(attempts), attempt.Error)
			}
			log.Warn("delivery rejected",
				logging.Int("status_code", statusCode),
				logging.String("error", attempt.Error),
			)
			return attempts, fmt.Errorf("%w: status %d: %s", ErrRejected, statusCode, attempt.Error)
		}

		delay := c.policy.Delay(number)
		log.Debug("delivery backoff scheduled",
			logging.Int("attempt", number),
			logging.Duration("delay", delay),
		)
		if err := c.wait(ctx, delay); err != nil {
			return attempts, err
		}
		scheduledAt = time.Now().UTC()
	}

	// Unreachable: the final retryable attempt converts to permanent above.
	return attempts, ErrExhausted
}

// logExhausted emits the single enriched failure record an operator needs to
// replay the notification by hand.
func (c *Coordinator) logExhausted(log *slog.Logger, n event.Notification, destination string, attempts []Attempt) {
	last := attempts[len(attempts)-1]
	log.Error("delivery exhausted",
		logging.String(logging.FieldEventID, n.ID),
		logging.String("bucket", n.Bucket),
		logging.String("object_path", n.ObjectPath),
		logging.String("content_type", n.ContentType),
		logging.Int64("size_bytes", n.SizeBytes),
		logging.String(logging.FieldDestination, destination),
		logging.String("last_error", last.Error),
		logging.Int("last_status_code", last.StatusCode),
		logging.Int("attempt_count", len(attempts)),
		logging.Time("first_attempt_at", attempts[0].ScheduledAt),
		logging.Time("final_attempt_at", last.ExecutedAt),
		logging.Bool("manual_reprocessing_required", true),
	)
}

func timerWait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
