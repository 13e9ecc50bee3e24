package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teemow/gmailmcp/internal/dispatch"
	"github.com/teemow/gmailmcp/internal/gmail"
	"github.com/teemow/gmailmcp/internal/google"
	"github.com/teemow/gmailmcp/internal/instrumentation"
	"github.com/teemow/gmailmcp/internal/logging"
)

// ServerContext holds the long-lived dependencies shared by every MCP
// request: the authentication flow, the service factory and the bridge
// that runs blocking work off the request goroutines.
type ServerContext struct {
	ctx     context.Context
	cancel  context.CancelFunc
	flow    *google.Flow
	factory *gmail.Factory
	bridge  *dispatch.Bridge

	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	mu       sync.RWMutex
	shutdown bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithMetrics sets the metrics recorder for tool invocations.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger sets the audit logger for tool invocations.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = logger }
}

// NewServerContext creates a server context. The returned context is
// cancelled by Shutdown.
func NewServerContext(ctx context.Context, flow *google.Flow, factory *gmail.Factory, bridge *dispatch.Bridge, opts ...Option) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		flow:    flow,
		factory: factory,
		bridge:  bridge,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.logger == nil {
		sc.logger = slog.Default()
	}
	sc.logger = logging.WithComponent(sc.logger, "server")
	return sc
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Flow returns the authentication flow.
func (sc *ServerContext) Flow() *google.Flow {
	return sc.flow
}

// Factory returns the Gmail service factory.
func (sc *ServerContext) Factory() *gmail.Factory {
	return sc.factory
}

// Bridge returns the dispatch bridge.
func (sc *ServerContext) Bridge() *dispatch.Bridge {
	return sc.bridge
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// AuthState reports the current authentication state.
func (sc *ServerContext) AuthState() google.State {
	if sc.flow == nil {
		return google.StateNoCredential
	}
	return sc.flow.State()
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and drains the bridge. It is safe to
// call more than once.
func (sc *ServerContext) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.cancel()
	if sc.bridge == nil {
		return nil
	}
	sc.logger.Info("draining dispatch bridge")
	return sc.bridge.Close(ctx)
}
