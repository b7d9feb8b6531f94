package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eduscale/internal/config"
)

const userAgent = "Eduscale-Go/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyFileCompleted(ctx context.Context, fileID, regionID string, rowsLoaded int64) error
	NotifyFileFailed(ctx context.Context, fileID, stage, reason string) error
	NotifyDeliveryExhausted(ctx context.Context, objectPath, destination string, attempts int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) NotifyFileCompleted(ctx context.Context, fileID, regionID string, rowsLoaded int64) error {
	if !n.completion {
		return nil
	}
	data := payload{
		title:   "Eduscale - File Loaded",
		message: fmt.Sprintf("File %s (region %s) loaded: %d rows", fileID, regionID, rowsLoaded),
		tags:    []string{"eduscale", "load", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFileFailed(ctx context.Context, fileID, stage, reason string) error {
	if !n.errors {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Eduscale - File Failed",
		message:  fmt.Sprintf("File %s failed at %s: %s", fileID, stage, reason),
		tags:     []string{"eduscale", "pipeline", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDeliveryExhausted(ctx context.Context, objectPath, destination string, attempts int) error {
	if !n.errors {
		return nil
	}
	data := payload{
		title:    "Eduscale - Delivery Exhausted",
		message:  fmt.Sprintf("Gave up on %s after %d attempts to %s\nManual replay required", objectPath, attempts, destination),
		tags:     []string{"eduscale", "delivery", "exhausted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Eduscale - Error",
		message:  builder.String(),
		tags:     []string{"eduscale", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Eduscale - Test",
		message:  "Notification system test",
		tags:     []string{"eduscale", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyFileCompleted(context.Context, string, string, int64) error     { return nil }
func (noopService) NotifyFileFailed(context.Context, string, string, string) error       { return nil }
func (noopService) NotifyDeliveryExhausted(context.Context, string, string, int) error   { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
