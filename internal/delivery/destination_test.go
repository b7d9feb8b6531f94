package delivery_test

import (
	"context"
	"net/http"
	"testing"

	"eduscale/internal/delivery"
	"eduscale/internal/event"
	"eduscale/internal/pipeline"
	"eduscale/internal/services"
	"eduscale/internal/status"
)

type stubHandler struct {
	stage status.Stage
	err   error
}

func (h stubHandler) Stage() status.Stage { return h.stage }

func (h stubHandler) Process(ctx context.Context, n event.Notification) (pipeline.Output, error) {
	return pipeline.Output{}, h.err
}

func stageDestinationFor(t *testing.T, err error) *delivery.StageDestination {
	t.Helper()
	orch := pipeline.NewOrchestrator(status.NewStore(), nil, nil)
	orch.Register(stubHandler{stage: status.StageClassify, err: err})
	return delivery.NewStageDestination(orch, status.StageClassify)
}

func TestStageDestinationSuccess(t *testing.T) {
	dest := stageDestinationFor(t, nil)
	code, err := dest.Invoke(context.Background(), testNotification())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("code = %d, want 200", code)
	}
	if dest.Name() != "stage:classify" {
		t.Fatalf("name = %q", dest.Name())
	}
}

func TestStageDestinationValidationMapsToClientError(t *testing.T) {
	dest := stageDestinationFor(t, services.Wrap(services.ErrValidation, "classify", "size guard", "too large", nil))
	code, err := dest.Invoke(context.Background(), testNotification())
	if err == nil {
		t.Fatal("expected stage error to surface")
	}
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("code = %d, want 422", code)
	}
}

func TestStageDestinationTransientMapsToServerError(t *testing.T) {
	dest := stageDestinationFor(t, services.Wrap(services.ErrTransient, "classify", "read object", "unavailable", nil))
	code, _ := dest.Invoke(context.Background(), testNotification())
	if code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", code)
	}
}

func TestStageDestinationTimeoutMapsToGatewayTimeout(t *testing.T) {
	dest := stageDestinationFor(t, services.Wrap(services.ErrTimeout, "classify", "read object", "slow", nil))
	code, _ := dest.Invoke(context.Background(), testNotification())
	if code != http.StatusGatewayTimeout {
		t.Fatalf("code = %d, want 504", code)
	}
}
