// Package webhook provides the builtin webhook action: it POSTs the
// execution facts to an external endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/relaycrm/automation/pkg/models"
	"github.com/relaycrm/automation/pkg/protocol"
)

// ActionFactory builds WebhookAction instances.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "webhook"
}

func (*ActionFactory) Name() string {
	return "Webhook"
}

func (*ActionFactory) Description() string {
	return "Sends the execution payload to an HTTP endpoint."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Endpoint to deliver the payload to.",
			},
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []string{"POST", "PUT", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Extra headers sent with the request.",
			},
		},
		"required": []string{"url"},
	}
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("webhook action requires a url")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string)
	if raw, ok := config["headers"].(map[string]any); ok {
		for key, value := range raw {
			headers[key] = fmt.Sprintf("%v", value)
		}
	}

	return &WebhookAction{
		url:     url,
		method:  method,
		headers: headers,
		client:  http.DefaultClient,
	}, nil
}

// WebhookAction delivers the execution facts as a JSON body. The attempt
// deadline comes from the caller's context.
type WebhookAction struct {
	url     string
	method  string
	headers map[string]string
	client  *http.Client
}

func (a *WebhookAction) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	body, err := json.Marshal(executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, a.method, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	for key, value := range a.headers {
		request.Header.Set(key, value)
	}

	logger.Debug("Delivering webhook", "url", a.url, "method", a.method)

	response, err := a.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned status %d", response.StatusCode)
	}

	return map[string]any{
		"status_code": response.StatusCode,
		"body":        string(responseBody),
	}, nil
}
