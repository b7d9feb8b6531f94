package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eduscale/internal/event"
	"eduscale/internal/logging"
	"eduscale/internal/services"
	"eduscale/internal/status"
)

// Output is what a stage handler produces on success.
type Output struct {
	// Metadata entries are merged into the record.
	Metadata map[string]any
	// TextURI, when set, replaces the record's text artifact location.
	TextURI string
	// Warnings are appended to the record's audit trail.
	Warnings []string
	// Forward notifications re-enter the filter engine for the next stage.
	Forward []event.Notification
	// Final marks the file done instead of advancing to the next stage.
	Final bool
}

// Handler runs one stage's computation. Process is invoked outside any
// record lock and must be safe to call more than once for the same file.
type Handler interface {
	Stage() status.Stage
	Process(ctx context.Context, n event.Notification) (Output, error)
}

// Orchestrator sequences stage invocations against the aggregator store. It
// enforces the monotonic stage invariant: per-file critical sections are
// held only around record transitions, stage work runs unlocked, and
// monotonicity is re-checked when a result is applied.
type Orchestrator struct {
	store      *status.Store
	handlers   map[status.Stage]Handler
	emit       func(event.Notification)
	onTerminal func(*status.Record)
	logger     *slog.Logger
}

// NewOrchestrator wires an orchestrator over the given store. emit receives
// forwarded notifications; a nil emit discards them.
func NewOrchestrator(store *status.Store, emit func(event.Notification), logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:    store,
		handlers: make(map[status.Stage]Handler),
		emit:     emit,
		logger:   logger.With(logging.String(logging.FieldComponent, "orchestrator")),
	}
}

// Register installs a stage handler.
func (o *Orchestrator) Register(h Handler) {
	o.handlers[h.Stage()] = h
}

// OnTerminal registers a callback invoked whenever a record reaches done or
// failed. The callback runs outside the record lock with a private copy.
func (o *Orchestrator) OnTerminal(fn func(*status.Record)) {
	o.onTerminal = fn
}

// Advance runs the named stage for the file behind the notification.
//
// Duplicate invocations, where the file is already past the stage or in a
// terminal state, are no-ops returning the current record and forwarding
// nothing. Transient handler errors leave the record at its stage so a
// delivery retry can re-invoke it; permanent ones mark the record failed.
func (o *Orchestrator) Advance(ctx context.Context, stage status.Stage, n event.Notification) (*status.Record, error) {
	handler, ok := o.handlers[stage]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, string(stage), "advance", "no handler registered", nil)
	}

	fileID, regionID, _ := event.ParseObjectPath(n.ObjectPath)
	if fileID == "" {
		return nil, services.Wrap(services.ErrValidation, string(stage), "advance", fmt.Sprintf("no file id derivable from %q", n.ObjectPath), nil)
	}
	log := o.logger.With(
		logging.String(logging.FieldFileID, fileID),
		logging.String(logging.FieldStage, string(stage)),
		logging.String(logging.FieldEventID, n.ID),
	)

	proceed := false
	record, err := o.store.Locked(fileID, func(current *status.Record) (*status.Record, error) {
		switch {
		case current == nil:
			rec := status.NewRecord(fileID, regionID, stage)
			if stage != status.StageClassify {
				rec.AddWarning(fmt.Sprintf("pipeline entered at %s with no prior stage history", stage))
			}
			proceed = true
			return rec, nil
		case current.CurrentStage.Terminal():
			return nil, nil
		case stage.Before(current.CurrentStage):
			return nil, nil
		case current.CurrentStage.Before(stage):
			current.AddWarning(fmt.Sprintf("stage jumped forward from %s to %s", current.CurrentStage, stage))
			current.CurrentStage = stage
			current.LastUpdated = time.Now().UTC()
			proceed = true
			return current, nil
		default:
			proceed = true
			return nil, nil
		}
	})
	if err != nil {
		return record, err
	}
	if !proceed {
		log.Debug("duplicate stage invocation ignored",
			logging.String("current_stage", string(record.CurrentStage)))
		return record, nil
	}

	output, handlerErr := handler.Process(ctx, n)
	if handlerErr != nil {
		return o.applyFailure(log, fileID, stage, handlerErr)
	}
	return o.applySuccess(log, fileID, stage, output)
}

func (o *Orchestrator) applyFailure(log *slog.Logger, fileID string, stage status.Stage, handlerErr error) (*status.Record, error) {
	permanent := services.IsPermanent(handlerErr)
	applied := false
	record, _ := o.store.Locked(fileID, func(current *status.Record) (*status.Record, error) {
		if current == nil || current.CurrentStage != stage {
			return nil, nil
		}
		current.AddWarning(fmt.Sprintf("%s failed: %v", stage, handlerErr))
		if permanent {
			current.CurrentStage = status.StageFailed
		}
		current.LastUpdated = time.Now().UTC()
		applied = true
		return current, nil
	})
	log.Error("stage failed",
		logging.Error(handlerErr),
		logging.Bool("permanent", permanent))
	if applied && permanent && o.onTerminal != nil {
		o.onTerminal(record.Clone())
	}
	return record, handlerErr
}

func (o *Orchestrator) applySuccess(log *slog.Logger, fileID string, stage status.Stage, output Output) (*status.Record, error) {
	applied := false
	record, _ := o.store.Locked(fileID, func(current *status.Record) (*status.Record, error) {
		if current == nil || current.CurrentStage.Terminal() || current.CurrentStage != stage {
			// Another attempt completed this stage while we were working.
			return nil, nil
		}
		for _, warning := range output.Warnings {
			current.AddWarning(warning)
		}
		for key, value := range output.Metadata {
			current.SetMetadata(key, value)
		}
		if output.TextURI != "" {
			current.TextURI = output.TextURI
		}
		next := status.StageDone
		if !output.Final {
			if n, ok := stage.Next(); ok {
				next = n
			}
		}
		current.CurrentStage = next
		current.LastUpdated = time.Now().UTC()
		applied = true
		return current, nil
	})

	if !applied {
		log.Debug("stage result discarded as duplicate",
			logging.String("current_stage", string(record.CurrentStage)))
		return record, nil
	}

	log.Info("stage completed",
		logging.String("next_stage", string(record.CurrentStage)),
		logging.Int("forwarded", len(output.Forward)))
	if o.emit != nil {
		for _, forward := range output.Forward {
			o.emit(forward)
		}
	}
	if record.CurrentStage.Terminal() && o.onTerminal != nil {
		o.onTerminal(record.Clone())
	}
	return record, nil
}
