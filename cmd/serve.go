package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/gmailmcp/internal/config"
	"github.com/teemow/gmailmcp/internal/logging"
	"github.com/teemow/gmailmcp/internal/server"
	"github.com/teemow/gmailmcp/internal/tools/gmail_tools"
)

const (
	shutdownTimeout       = 30 * time.Second
	metricsStartupTimeout = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server and expose the Gmail tools and resources.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP on --http-addr, with health endpoints

The first tool call that needs Gmail runs the authorization flow if no
valid credential is stored; run "gmailmcp auth" beforehand to avoid that.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("transport", config.DefaultTransport, "Transport type: stdio or streamable-http")
	flags.String("http-addr", config.DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	flags.StringSlice("cors-origins", nil, "Comma-separated list of allowed CORS origins (for streamable-http transport)")
	flags.Int("workers", config.DefaultWorkers, "Number of workers running blocking Gmail calls")
	flags.Int("queue-size", config.DefaultQueueSize, "Number of Gmail calls that may wait for a worker")
	flags.Duration("call-timeout", 0, "Upper bound for a single Gmail call (0 means none)")
	flags.Float64("rate-limit", config.DefaultRateLimit, "Gmail API requests per second (0 disables limiting)")
	flags.Int("rate-burst", config.DefaultRateBurst, "Gmail API request burst")
	flags.Bool("metrics-enabled", true, "Serve Prometheus metrics (for streamable-http transport)")
	flags.String("metrics-addr", config.DefaultMetricsAddr, "Metrics server address")
	addAuthFlags(flags)

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		svc.shutdown(shutdownCtx, logger)
	}()

	if cfg.Transport != config.TransportStdio && cfg.Metrics.Enabled && svc.provider.ServesPrometheus() {
		metricsServer, err := startMetricsServer(cfg, svc, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("error shutting down metrics server", logging.Err(err))
			}
		}()
	}

	mcpSrv := newMCPServer(svc.sc)

	switch cfg.Transport {
	case config.TransportStdio:
		return runStdioServer(ctx, mcpSrv, logger)
	case config.TransportStreamableHTTP:
		return runStreamableHTTPServer(ctx, mcpSrv, svc.sc, cfg, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)",
			cfg.Transport, config.TransportStdio, config.TransportStreamableHTTP)
	}
}

// newMCPServer creates the MCP server with the Gmail tools and resources.
func newMCPServer(sc *server.ServerContext) *mcpserver.MCPServer {
	mcpSrv := mcpserver.NewMCPServer("gmailmcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)
	gmail_tools.RegisterGmailTools(mcpSrv, sc)
	return mcpSrv
}

func startMetricsServer(cfg *config.Config, svc *services, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Metrics.Addr,
		Enabled:                 true,
		InstrumentationProvider: svc.provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ready:
		logger.Info("metrics server started", slog.String("addr", metricsServer.Addr()))
		return metricsServer, nil
	case err := <-errCh:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(metricsStartupTimeout):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("serving MCP over stdio")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server error: %w", err)
	}
	logger.Info("stdio server stopped")
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, cfg *config.Config, logger *slog.Logger) error {
	httpServer := server.NewHTTPServer(mcpSrv, sc, server.HTTPServerConfig{
		Addr:        cfg.HTTPAddr,
		CORSOrigins: cfg.CORSOrigins,
		Metrics:     sc.Metrics(),
		Logger:      logger,
	})

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.StartWithReadySignal(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ready:
		logger.Info("serving MCP over streamable HTTP",
			slog.String("addr", httpServer.Addr()),
			slog.String("endpoint", server.MCPEndpointPath))
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("HTTP server stopped")
	return nil
}
