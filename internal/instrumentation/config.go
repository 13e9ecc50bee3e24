package instrumentation

import (
	"fmt"
	"time"
)

// Config holds the configuration for OpenTelemetry instrumentation.
// Values are populated by internal/config from flags, environment and
// config file.
type Config struct {
	// ServiceName is the name of the service (default: gmailmcp)
	ServiceName string `mapstructure:"service_name"`

	// ServiceVersion is the version of the service
	ServiceVersion string `mapstructure:"-"`

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string `mapstructure:"service_instance_id"`

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool `mapstructure:"enabled"`

	// MetricsExporter specifies the metrics exporter type
	// Options: "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string `mapstructure:"metrics_exporter"`

	// TracingExporter specifies the tracing exporter type
	// Options: "otlp", "stdout", "none" (default: "none")
	TracingExporter string `mapstructure:"tracing_exporter"`

	// OTLPEndpoint is the OTLP collector endpoint, without protocol prefix.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// OTLPInsecure switches OTLP export to plain HTTP. Development only.
	OTLPInsecure bool `mapstructure:"otlp_insecure"`

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate"`

	// AuditLogging configures the tool invocation audit log.
	AuditLogging AuditLoggingConfig `mapstructure:"audit"`
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool `mapstructure:"enabled"`

	// IncludeArguments adds non-sensitive tool arguments (query, ids,
	// max_results) to audit records. Message bodies are never logged.
	IncludeArguments bool `mapstructure:"include_arguments"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "gmailmcp",
		ServiceVersion:    "unknown",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		AuditLogging: AuditLoggingConfig{
			Enabled: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	validMetricsExporters := map[string]bool{ExporterPrometheus: true, ExporterOTLP: true, ExporterStdout: true}
	if c.MetricsExporter != "" && !validMetricsExporters[c.MetricsExporter] {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	validTracingExporters := map[string]bool{ExporterOTLP: true, ExporterStdout: true, ExporterNone: true}
	if c.TracingExporter != "" && !validTracingExporters[c.TracingExporter] {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}

	return nil
}

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Auth outcomes
	AuthResultSuccess = "success"
	AuthResultFailure = "failure"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the export interval for push exporters.
	DefaultMetricInterval = 10 * time.Second
)

// Gmail API operation names used as metric and span labels.
const (
	OperationListMessages = "messages.list"
	OperationGetMessage   = "messages.get"
	OperationSendMessage  = "messages.send"
	OperationListDrafts   = "drafts.list"
	OperationGetDraft     = "drafts.get"
	OperationCreateDraft  = "drafts.create"
)

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
