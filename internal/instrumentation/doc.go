// Package instrumentation wires OpenTelemetry metrics and tracing for the
// gmailmcp server.
//
// # Metrics
//
// Tool layer:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds (tool, status)
//
// Gmail API:
//   - gmail_api_operations_total, gmail_api_operation_duration_seconds (operation, status)
//
// Authentication:
//   - oauth_auth_total (result): interactive authorizations
//   - oauth_token_refresh_total (result)
//   - auth_flow_transitions_total (from, to)
//
// Dispatch bridge:
//   - dispatch_inflight, dispatch_queue_wait_seconds, dispatch_rejected_total
//
// HTTP transport:
//   - http_requests_total, http_request_duration_seconds
//
// Metrics are exported through Prometheus (default), OTLP or stdout. The
// stdout exporters write to stderr because stdout carries the stdio MCP
// transport.
//
// # Usage
//
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordGmailOperation(ctx, instrumentation.OperationListMessages,
//		instrumentation.StatusSuccess, time.Since(start))
package instrumentation
