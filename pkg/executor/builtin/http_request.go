package builtin

import (
	"context"
	"time"

	"github.com/workflowkit/engine/pkg/executor"
	"github.com/workflowkit/engine/pkg/models"
)

// HTTPRequestExecutor implements the "http-request" node type: an HTTP
// call that is dry-run aware and can retry transient transport failures
// before surfacing models.TransportError.
type HTTPRequestExecutor struct {
	*executor.BaseExecutor
	inner *HTTPExecutor
}

// NewHTTPRequestExecutor creates a new http-request executor.
func NewHTTPRequestExecutor() *HTTPRequestExecutor {
	return &HTTPRequestExecutor{
		BaseExecutor: executor.NewBaseExecutor("http-request"),
		inner:        NewHTTPExecutor(),
	}
}

// IsDryRun satisfies executor.DryRunAware.
func (e *HTTPRequestExecutor) IsDryRun(ctx context.Context) bool {
	return executor.IsDryRun(ctx)
}

// Execute performs the HTTP call, or under dry-run returns a planned
// request description without any network I/O.
func (e *HTTPRequestExecutor) Execute(ctx context.Context, config map[string]interface{}, input interface{}) (interface{}, error) {
	if executor.IsDryRun(ctx) {
		plan := map[string]interface{}{
			"dryRun": true,
			"method": e.GetStringDefault(config, "method", "GET"),
			"url":    e.GetStringDefault(config, "url", ""),
		}
		if headers, err := e.GetMap(config, "headers"); err == nil {
			plan["headers"] = headers
		}
		if body, ok := config["body"]; ok {
			plan["body"] = body
		}
		return plan, nil
	}

	retries := e.GetIntDefault(config, "retries", 0)

	var lastErr error
	delay := 100 * time.Millisecond
	for attempt := 0; attempt <= retries; attempt++ {
		out, err := e.inner.Execute(ctx, config, input)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt >= retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, &models.TransportError{Op: "http-request", Err: lastErr}
}

// Validate delegates to the wrapped HTTP executor's validation.
func (e *HTTPRequestExecutor) Validate(config map[string]interface{}) error {
	return e.inner.Validate(config)
}
