package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ToolInvocation is the audit record of one MCP tool or resource call.
type ToolInvocation struct {
	ID        string
	Tool      string
	Arguments map[string]string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
}

// NewToolInvocation starts an audit record with a fresh invocation id.
func NewToolInvocation(ctx context.Context, tool string) *ToolInvocation {
	return &ToolInvocation{
		ID:        uuid.NewString(),
		Tool:      tool,
		StartTime: time.Now(),
		TraceID:   GetTraceID(ctx),
	}
}

// WithArgument attaches a non-sensitive argument to the record.
func (ti *ToolInvocation) WithArgument(key, value string) *ToolInvocation {
	if ti.Arguments == nil {
		ti.Arguments = make(map[string]string)
	}
	ti.Arguments[key] = value
	return ti
}

// Complete marks the invocation as finished.
func (ti *ToolInvocation) Complete(success bool, failure string) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	ti.Error = failure
	return ti
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) attrs(includeArgs bool) []any {
	args := []any{
		slog.String("invocation_id", ti.ID),
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.TraceID != "" {
		args = append(args, slog.String("trace_id", ti.TraceID))
	}
	if includeArgs && len(ti.Arguments) > 0 {
		group := make([]any, 0, len(ti.Arguments))
		for k, v := range ti.Arguments {
			group = append(group, slog.String(k, v))
		}
		args = append(args, slog.Group("args", group...))
	}
	if ti.Error != "" {
		args = append(args, slog.String("error", ti.Error))
	}
	return args
}

// AuditLogger writes one structured line per tool invocation.
type AuditLogger struct {
	logger      *slog.Logger
	enabled     bool
	includeArgs bool
}

// NewAuditLogger creates an AuditLogger. A nil logger means slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:      logger.With(slog.String("component", "audit")),
		enabled:     config.Enabled,
		includeArgs: config.IncludeArguments,
	}
}

// LogToolInvocation emits tool_executed or tool_failed for ti.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}
	if ti.Success {
		al.logger.Info("tool_executed", ti.attrs(al.includeArgs)...)
	} else {
		al.logger.Warn("tool_failed", ti.attrs(al.includeArgs)...)
	}
}
