package common

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gmailmcp/internal/instrumentation"
	"github.com/teemow/gmailmcp/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// ResourceHandler is the mcp-go resource handler signature.
type ResourceHandler = func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)

// AuditArg names a tool argument to copy into the audit record. Redact, if
// set, transforms the value first.
type AuditArg struct {
	Key    string
	Redact func(string) string
}

// Arg records the argument key verbatim.
func Arg(key string) AuditArg {
	return AuditArg{Key: key}
}

// RedactedArg records the argument key after passing it through redact.
func RedactedArg(key string, redact func(string) string) AuditArg {
	return AuditArg{Key: key, Redact: redact}
}

type outcomeKey struct{}

// outcome collects a failure reported by a handler whose result is still a
// plain text answer.
type outcome struct {
	mu      sync.Mutex
	failure string
}

// ReportFailure marks the current invocation as failed without changing the
// result the client receives. It is a no-op outside an instrumented handler.
func ReportFailure(ctx context.Context, err error) {
	o, ok := ctx.Value(outcomeKey{}).(*outcome)
	if !ok || err == nil {
		return
	}
	o.mu.Lock()
	o.failure = err.Error()
	o.mu.Unlock()
}

func (o *outcome) get() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failure
}

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler, common.Arg("query")))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler, auditArgs ...AuditArg) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var result *mcp.CallToolResult
		var err error
		observe(ctx, toolName, sc, argumentsOf(request, auditArgs), func(ctx context.Context) (bool, error) {
			result, err = handler(ctx, request)
			return result != nil && result.IsError, err
		})
		return result, err
	}
}

// InstrumentedResourceHandler wraps a resource handler the same way. The
// resource is recorded under name.
func InstrumentedResourceHandler(name string, sc *server.ServerContext, handler ResourceHandler) ResourceHandler {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var contents []mcp.ResourceContents
		var err error
		args := map[string]string{"uri": request.Params.URI}
		observe(ctx, name, sc, args, func(ctx context.Context) (bool, error) {
			contents, err = handler(ctx, request)
			return false, err
		})
		return contents, err
	}
}

func observe(ctx context.Context, name string, sc *server.ServerContext, args map[string]string, call func(ctx context.Context) (isError bool, err error)) {
	metrics := sc.Metrics()
	auditLogger := sc.AuditLogger()

	ctx, span := instrumentation.StartToolSpan(ctx, name)
	invocation := instrumentation.NewToolInvocation(ctx, name)
	for k, v := range args {
		invocation.WithArgument(k, v)
	}

	o := &outcome{}
	start := time.Now()
	isError, err := call(context.WithValue(ctx, outcomeKey{}, o))
	duration := time.Since(start)

	failure := o.get()
	switch {
	case err != nil:
		failure = err.Error()
	case isError && failure == "":
		failure = "tool returned an error result"
	}
	invocation.Complete(failure == "", failure)

	var spanErr error
	if failure != "" {
		spanErr = errors.New(failure)
	}
	instrumentation.EndSpan(span, spanErr)

	metrics.RecordToolInvocation(ctx, name, invocation.Status(), duration)
	auditLogger.LogToolInvocation(invocation)
}

func argumentsOf(request mcp.CallToolRequest, auditArgs []AuditArg) map[string]string {
	if len(auditArgs) == 0 {
		return nil
	}
	raw := request.GetArguments()
	out := make(map[string]string, len(auditArgs))
	for _, a := range auditArgs {
		v, ok := raw[a.Key]
		if !ok {
			continue
		}
		s := fmt.Sprint(v)
		if a.Redact != nil {
			s = a.Redact(s)
		}
		out[a.Key] = s
	}
	return out
}
