package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/gmailmcp/internal/instrumentation"
	"github.com/teemow/gmailmcp/internal/server"
)

type harness struct {
	sc     *server.ServerContext
	reader *sdkmetric.ManualReader
	audit  *bytes.Buffer
}

func newHarness(t *testing.T, includeArgs bool) *harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := instrumentation.NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	auditLogger := instrumentation.NewAuditLogger(
		slog.New(slog.NewJSONHandler(buf, nil)),
		instrumentation.AuditLoggingConfig{Enabled: true, IncludeArguments: includeArgs},
	)

	sc := server.NewServerContext(context.Background(), nil, nil, nil,
		server.WithMetrics(metrics),
		server.WithAuditLogger(auditLogger),
	)
	return &harness{sc: sc, reader: reader, audit: buf}
}

// invocations returns the tool invocation counter values keyed by status.
func (h *harness) invocations(t *testing.T, tool string) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, h.reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcp_tool_invocations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if v, _ := dp.Attributes.Value(attribute.Key("tool")); v.AsString() != tool {
					continue
				}
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				out[status.AsString()] += dp.Value
			}
		}
	}
	return out
}

func (h *harness) auditRecords(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(h.audit.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	h := newHarness(t, true)

	called := false
	wrapped := InstrumentedToolHandler("search_emails", h.sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("found"), nil
	}, Arg("query"), Arg("absent"))

	result, err := wrapped(context.Background(), callTool("search_emails", map[string]any{"query": "from:bob", "max_results": 5}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, called)

	assert.Equal(t, map[string]int64{instrumentation.StatusSuccess: 1}, h.invocations(t, "search_emails"))

	records := h.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, "tool_executed", records[0]["msg"])
	assert.Equal(t, "search_emails", records[0]["tool"])
	assert.NotEmpty(t, records[0]["invocation_id"])
	assert.Equal(t, map[string]any{"query": "from:bob"}, records[0]["args"], "only listed arguments are audited")
}

func TestInstrumentedToolHandler_RedactsArguments(t *testing.T) {
	h := newHarness(t, true)

	wrapped := InstrumentedToolHandler("compose_email", h.sc, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}, RedactedArg("to", func(string) string { return "redacted" }))

	_, err := wrapped(context.Background(), callTool("compose_email", map[string]any{"to": "alice@example.com"}))
	require.NoError(t, err)

	records := h.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"to": "redacted"}, records[0]["args"])
	assert.NotContains(t, h.audit.String(), "alice@example.com")
}

func TestInstrumentedToolHandler_Failures(t *testing.T) {
	tests := []struct {
		name        string
		handler     ToolHandler
		wantErr     bool
		wantFailure string
	}{
		{
			name: "go error",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, errors.New("test error")
			},
			wantErr:     true,
			wantFailure: "test error",
		},
		{
			name: "error result",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultError("missing argument"), nil
			},
			wantFailure: "tool returned an error result",
		},
		{
			name: "reported failure behind a text result",
			handler: func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				ReportFailure(ctx, errors.New("remote unavailable"))
				return mcp.NewToolResultText("Error retrieving drafts: remote unavailable"), nil
			},
			wantFailure: "remote unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false)
			wrapped := InstrumentedToolHandler("get_drafts", h.sc, tt.handler)

			_, err := wrapped(context.Background(), callTool("get_drafts", nil))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, map[string]int64{instrumentation.StatusError: 1}, h.invocations(t, "get_drafts"))
			records := h.auditRecords(t)
			require.Len(t, records, 1)
			assert.Equal(t, "tool_failed", records[0]["msg"])
			assert.Equal(t, tt.wantFailure, records[0]["error"])
		})
	}
}

func TestInstrumentedResourceHandler(t *testing.T) {
	h := newHarness(t, true)

	wrapped := InstrumentedResourceHandler("get_emails", h.sc, func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{mcp.TextResourceContents{URI: req.Params.URI, Text: "inbox"}}, nil
	})

	req := mcp.ReadResourceRequest{}
	req.Params.URI = "gmail://inbox"
	contents, err := wrapped(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	assert.Equal(t, map[string]int64{instrumentation.StatusSuccess: 1}, h.invocations(t, "get_emails"))
	records := h.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"uri": "gmail://inbox"}, records[0]["args"])
}

func TestInstrumentedToolHandler_WithoutInstrumentation(t *testing.T) {
	sc := server.NewServerContext(context.Background(), nil, nil, nil)
	wrapped := InstrumentedToolHandler("get_emails", sc, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ReportFailure(ctx, errors.New("ignored"))
		return mcp.NewToolResultText("ok"), nil
	})

	result, err := wrapped(context.Background(), callTool("get_emails", nil))
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok", result.Content[0].(mcp.TextContent).Text)
}

func TestReportFailure_OutsideHandler(t *testing.T) {
	assert.NotPanics(t, func() { ReportFailure(context.Background(), errors.New("x")) })
}
