package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teemow/gmailmcp/internal/config"
	"github.com/teemow/gmailmcp/internal/dispatch"
	"github.com/teemow/gmailmcp/internal/gmail"
	"github.com/teemow/gmailmcp/internal/google"
	"github.com/teemow/gmailmcp/internal/instrumentation"
	"github.com/teemow/gmailmcp/internal/logging"
	"github.com/teemow/gmailmcp/internal/server"
)

// addAuthFlags registers the flags shared by every command that touches the
// credential.
func addAuthFlags(flags *pflag.FlagSet) {
	flags.String("token-path", config.DefaultTokenPath, "Path of the stored OAuth credential")
	flags.String("client-secret-path", config.DefaultClientSecretPath, "Path of the OAuth client secret file")
	flags.Bool("open-browser", false, "Open the consent page in the default browser during authorization")
	flags.Duration("auth-timeout", config.DefaultAuthTimeout, "How long to wait for the browser authorization redirect")
	flags.String("log-level", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", config.DefaultLogFormat, "Log format (text, json)")
}

// loadConfig merges defaults, the config file, environment and the flags
// of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v, configFile)
}

// newLogger builds the process logger. It always writes to stderr because
// the stdio transport owns stdout.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// newFlow wires the credential store, refresher and loopback authorizer
// into an authentication flow.
func newFlow(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) *google.Flow {
	secrets := google.NewClientSecrets(cfg.ClientSecretPath)
	authorizer := google.NewLoopbackAuthorizer(secrets,
		google.WithTimeout(cfg.AuthTimeout),
		google.WithOpenBrowser(cfg.OpenBrowser),
		google.WithAuthorizerLogger(logger),
	)

	return google.NewFlow(
		google.NewFileStore(cfg.TokenPath),
		google.NewOAuthRefresher(secrets),
		authorizer,
		google.WithLogger(logger),
		google.WithMetrics(metrics),
	)
}

// services holds everything a running server needs.
type services struct {
	provider *instrumentation.Provider
	sc       *server.ServerContext
}

// newServices builds the instrumentation provider, authentication flow,
// service factory and dispatch bridge, and bundles them in a ServerContext.
func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	instrConfig := cfg.Instrumentation
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	metrics := provider.Metrics()

	flow := newFlow(cfg, logger, metrics)
	factory := gmail.NewFactory(flow,
		gmail.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		gmail.WithMetrics(metrics),
	)
	bridge := dispatch.New(dispatch.Config{
		Workers:     cfg.Workers,
		QueueSize:   cfg.QueueSize,
		CallTimeout: cfg.CallTimeout,
	},
		dispatch.WithMetrics(metrics),
		dispatch.WithLogger(logger),
	)

	sc := server.NewServerContext(ctx, flow, factory, bridge,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithAuditLogger(instrumentation.NewAuditLogger(
			logging.WithComponent(logger, "audit"),
			instrConfig.AuditLogging,
		)),
	)

	return &services{
		provider: provider,
		sc:       sc,
	}, nil
}

// shutdown stops the server context and flushes telemetry.
func (s *services) shutdown(ctx context.Context, logger *slog.Logger) {
	if err := s.sc.Shutdown(ctx); err != nil {
		logger.Warn("error shutting down server context", logging.Err(err))
	}
	if err := s.provider.Shutdown(ctx); err != nil {
		logger.Warn("error shutting down instrumentation provider", logging.Err(err))
	}
}
