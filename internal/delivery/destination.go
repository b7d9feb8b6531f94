package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"eduscale/internal/event"
	"eduscale/internal/pipeline"
	"eduscale/internal/services"
	"eduscale/internal/status"
)

// StageDestination invokes a pipeline stage in-process and translates the
// stage result into the HTTP-like categories the coordinator classifies:
// permanent stage errors are client rejections, everything else that fails
// is a server-side condition worth retrying.
type StageDestination struct {
	orchestrator *pipeline.Orchestrator
	stage        status.Stage
}

func NewStageDestination(orchestrator *pipeline.Orchestrator, stage status.Stage) *StageDestination {
	return &StageDestination{orchestrator: orchestrator, stage: stage}
}

func (d *StageDestination) Name() string {
	return "stage:" + string(d.stage)
}

func (d *StageDestination) Invoke(ctx context.Context, n event.Notification) (int, error) {
	_, err := d.orchestrator.Advance(ctx, d.stage, n)
	switch {
	case err == nil:
		return http.StatusOK, nil
	case services.IsPermanent(err):
		return http.StatusUnprocessableEntity, err
	case errors.Is(err, services.ErrTimeout):
		return http.StatusGatewayTimeout, err
	default:
		return http.StatusServiceUnavailable, err
	}
}

// HTTPDestination posts the notification JSON to a remote processing
// service. The response body is opaque; only the status code matters.
type HTTPDestination struct {
	name     string
	endpoint string
	client   *http.Client
}

func NewHTTPDestination(name, endpoint string, timeout time.Duration) *HTTPDestination {
	return &HTTPDestination{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDestination) Name() string {
	return d.name
}

func (d *HTTPDestination) Invoke(ctx context.Context, n event.Notification) (int, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
