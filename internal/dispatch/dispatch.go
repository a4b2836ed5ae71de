package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/dynamic-timers/internal/logger"
)

// Dispatcher executes one fully-rendered action against the automation
// backend. Implementations must honor the context deadline.
type Dispatcher interface {
	CallService(ctx context.Context, service string, target, data map[string]any) error
	FireEvent(ctx context.Context, event string, data map[string]any) error
}

// RestDispatcher posts service calls and events to an automation REST API
// (POST /api/services/{domain}/{service} and POST /api/events/{event}).
type RestDispatcher struct {
	// client is the configured HTTP client for the automation API.
	client *resty.Client
}

// NewRestDispatcher creates a dispatcher for the given automation API base URL.
// The token, when set, is sent as a bearer token with every request.
func NewRestDispatcher(baseURL, token string, timeout time.Duration) *RestDispatcher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	if token != "" {
		client.SetAuthToken(token)
	}

	return &RestDispatcher{
		client: client,
	}
}

// CallService invokes a "domain.service" identifier with the rendered payload.
func (d *RestDispatcher) CallService(ctx context.Context, service string, target, data map[string]any) error {
	domain, name, err := splitService(service)
	if err != nil {
		return err
	}

	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}

	if len(target) > 0 {
		body["target"] = target
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/api/services/" + url.PathEscape(domain) + "/" + url.PathEscape(name))
	if err != nil {
		return fmt.Errorf("call service %s: %w", service, err)
	}

	if resp.IsError() {
		return fmt.Errorf("call service %s: backend returned %s", service, resp.Status())
	}

	return nil
}

// FireEvent fires a named event with the rendered payload.
func (d *RestDispatcher) FireEvent(ctx context.Context, event string, data map[string]any) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(data).
		Post("/api/events/" + url.PathEscape(event))
	if err != nil {
		return fmt.Errorf("fire event %s: %w", event, err)
	}

	if resp.IsError() {
		return fmt.Errorf("fire event %s: backend returned %s", event, resp.Status())
	}

	return nil
}

// splitService validates and splits a "domain.service" identifier.
func splitService(service string) (string, string, error) {
	for i := 0; i < len(service); i++ {
		if service[i] == '.' {
			if i == 0 || i == len(service)-1 {
				break
			}

			return service[:i], service[i+1:], nil
		}
	}

	return "", "", fmt.Errorf("invalid service identifier %q, want domain.service", service)
}

// LogDispatcher is used when no action endpoint is configured: it records
// every dispatch instead of executing it.
type LogDispatcher struct{}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

// CallService logs the service call.
func (d *LogDispatcher) CallService(ctx context.Context, service string, target, data map[string]any) error {
	logger.InfoKV(ctx, "Dispatch (log only): service call", "service", service, "target", target, "data", data)

	return nil
}

// FireEvent logs the event.
func (d *LogDispatcher) FireEvent(ctx context.Context, event string, data map[string]any) error {
	logger.InfoKV(ctx, "Dispatch (log only): event", "event", event, "data", data)

	return nil
}
