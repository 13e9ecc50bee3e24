package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrTool      = "tool"
	attrFrom      = "from"
	attrTo        = "to"
)

// Metrics records the server's observability metrics. The zero value is a
// valid no-op recorder, and a nil *Metrics is safe to call.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	gmailOperationsTotal   metric.Int64Counter
	gmailOperationDuration metric.Float64Histogram

	authInteractiveTotal metric.Int64Counter
	authRefreshTotal     metric.Int64Counter
	authTransitionsTotal metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	dispatchInflight  metric.Int64UpDownCounter
	dispatchQueueWait metric.Float64Histogram
	dispatchRejected  metric.Int64Counter
}

// NewMetrics creates all instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	latencyBuckets := metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)

	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0)); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.gmailOperationsTotal, err = meter.Int64Counter("gmail_api_operations_total",
		metric.WithDescription("Total number of Gmail API calls"),
		metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_operations_total counter: %w", err)
	}
	if m.gmailOperationDuration, err = meter.Float64Histogram("gmail_api_operation_duration_seconds",
		metric.WithDescription("Gmail API call duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets); err != nil {
		return nil, fmt.Errorf("failed to create gmail_api_operation_duration_seconds histogram: %w", err)
	}

	if m.authInteractiveTotal, err = meter.Int64Counter("oauth_auth_total",
		metric.WithDescription("Total number of interactive OAuth authorizations"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}
	if m.authRefreshTotal, err = meter.Int64Counter("oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}
	if m.authTransitionsTotal, err = meter.Int64Counter("auth_flow_transitions_total",
		metric.WithDescription("Authentication flow state transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, fmt.Errorf("failed to create auth_flow_transitions_total counter: %w", err)
	}

	if m.toolInvocationsTotal, err = meter.Int64Counter("mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool and resource invocations"),
		metric.WithUnit("{invocation}")); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram("mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	if m.dispatchInflight, err = meter.Int64UpDownCounter("dispatch_inflight",
		metric.WithDescription("Offloaded calls currently running on dispatch workers"),
		metric.WithUnit("{task}")); err != nil {
		return nil, fmt.Errorf("failed to create dispatch_inflight gauge: %w", err)
	}
	if m.dispatchQueueWait, err = meter.Float64Histogram("dispatch_queue_wait_seconds",
		metric.WithDescription("Time an offloaded call waited for a worker"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0)); err != nil {
		return nil, fmt.Errorf("failed to create dispatch_queue_wait_seconds histogram: %w", err)
	}
	if m.dispatchRejected, err = meter.Int64Counter("dispatch_rejected_total",
		metric.WithDescription("Offloads abandoned before a worker picked them up"),
		metric.WithUnit("{task}")); err != nil {
		return nil, fmt.Errorf("failed to create dispatch_rejected_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGmailOperation records one Gmail API call.
func (m *Metrics) RecordGmailOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.gmailOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.gmailOperationsTotal.Add(ctx, 1, attrs)
	m.gmailOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthAuth records an interactive authorization attempt.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.authInteractiveTotal == nil {
		return
	}
	m.authInteractiveTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records a refresh-token exchange.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.authRefreshTotal == nil {
		return
	}
	m.authRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordAuthTransition counts one authentication state machine edge.
func (m *Metrics) RecordAuthTransition(ctx context.Context, from, to string) {
	if m == nil || m.authTransitionsTotal == nil {
		return
	}
	m.authTransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFrom, from),
		attribute.String(attrTo, to),
	))
}

// RecordToolInvocation records an MCP tool or resource invocation.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// DispatchStarted marks an offloaded call as picked up by a worker after
// waiting in the queue for wait.
func (m *Metrics) DispatchStarted(ctx context.Context, wait time.Duration) {
	if m == nil || m.dispatchInflight == nil {
		return
	}
	m.dispatchInflight.Add(ctx, 1)
	m.dispatchQueueWait.Record(ctx, wait.Seconds())
}

// DispatchFinished marks an offloaded call as done.
func (m *Metrics) DispatchFinished(ctx context.Context) {
	if m == nil || m.dispatchInflight == nil {
		return
	}
	m.dispatchInflight.Add(ctx, -1)
}

// DispatchRejected counts an offload that never reached a worker.
func (m *Metrics) DispatchRejected(ctx context.Context) {
	if m == nil || m.dispatchRejected == nil {
		return
	}
	m.dispatchRejected.Add(ctx, 1)
}
