package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"eduscale/internal/delivery"
	"eduscale/internal/event"
	"eduscale/internal/logging"
	"eduscale/internal/rules"
)

// Dispatcher is the entry point for storage-finalize notifications. Each
// ingested notification is matched against the rule set and, when a rule
// fires, delivered on its own goroutine; a semaphore bounds how many
// deliveries run at once so a burst of uploads cannot exhaust the process.
type Dispatcher struct {
	engine       *rules.Engine
	coordinator  *delivery.Coordinator
	destinations map[string]delivery.Destination
	sem          chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// NewDispatcher builds a dispatcher. maxInFlight bounds concurrent
// deliveries; values below one fall back to one.
func NewDispatcher(engine *rules.Engine, coordinator *delivery.Coordinator, maxInFlight int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Dispatcher{
		engine:       engine,
		coordinator:  coordinator,
		destinations: make(map[string]delivery.Destination),
		sem:          make(chan struct{}, maxInFlight),
		logger:       logger.With(logging.String(logging.FieldComponent, "dispatch")),
	}
}

// RegisterDestination binds a rule destination name to its invocation
// target.
func (d *Dispatcher) RegisterDestination(name string, dest delivery.Destination) {
	d.destinations[name] = dest
}

// Ingest routes one notification. Unmatched notifications are dropped
// without error; matched ones are handed to the delivery coordinator
// asynchronously. Ingest never blocks.
func (d *Dispatcher) Ingest(ctx context.Context, n event.Notification) {
	rule, ok := d.engine.Match(n)
	if !ok {
		d.logger.Debug("notification matched no rule, dropped",
			logging.String(logging.FieldEventID, n.ID),
			logging.String("bucket", n.Bucket),
			logging.String("object_path", n.ObjectPath),
		)
		return
	}

	dest, ok := d.destinations[rule.Destination]
	if !ok {
		d.logger.Warn("rule names an unregistered destination",
			logging.String("rule", rule.Name),
			logging.String(logging.FieldDestination, rule.Destination),
		)
		return
	}

	// The slot is taken inside the goroutine: Ingest is also called from
	// delivery goroutines when stages forward notifications, and blocking
	// there could wedge every slot on a burst.
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-d.sem }()
		d.deliver(ctx, n, rule, dest)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, n event.Notification, rule rules.Rule, dest delivery.Destination) {
	log := d.logger.With(
		logging.String(logging.FieldEventID, n.ID),
		logging.String("rule", rule.Name),
		logging.String(logging.FieldDestination, dest.Name()),
		logging.String("service_identity", rule.ServiceIdentity),
	)

	attempts, err := d.coordinator.Deliver(ctx, n, dest)
	switch {
	case err == nil:
		log.Debug("delivery complete", logging.Int("attempts", len(attempts)))
	case errors.Is(err, delivery.ErrRejected):
		// Already logged by the coordinator; the stage recorded the failure.
	case errors.Is(err, delivery.ErrExhausted):
		// The coordinator emitted the enriched exhaustion record.
	case errors.Is(err, context.Canceled):
		log.Debug("delivery abandoned at shutdown", logging.Int("attempts", len(attempts)))
	default:
		log.Error("delivery ended unexpectedly", logging.Error(err))
	}
}

// Close waits for all in-flight deliveries to finish.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}
