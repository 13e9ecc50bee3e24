package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/gmailmcp/internal/instrumentation"
	"github.com/teemow/gmailmcp/internal/logging"
)

// EnvPrefix prefixes every environment variable, e.g. GMAIL_TOKEN_PATH.
const EnvPrefix = "GMAIL"

// Transports accepted by the serve command.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Defaults shared by flags and viper.
const (
	DefaultTransport        = TransportStdio
	DefaultHTTPAddr         = ":8080"
	DefaultMetricsAddr      = ":9090"
	DefaultTokenPath        = "token.json"
	DefaultClientSecretPath = "config/client_secret.json"
	DefaultWorkers          = 8
	DefaultQueueSize        = 64
	DefaultRateLimit        = 25.0
	DefaultRateBurst        = 10
	DefaultAuthTimeout      = 5 * time.Minute
	DefaultLogLevel         = "info"
	DefaultLogFormat        = logging.FormatText
)

// Config is the complete server configuration.
type Config struct {
	Transport   string   `mapstructure:"transport"`
	HTTPAddr    string   `mapstructure:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	TokenPath        string        `mapstructure:"token_path"`
	ClientSecretPath string        `mapstructure:"client_secret_path"`
	OpenBrowser      bool          `mapstructure:"open_browser"`
	AuthTimeout      time.Duration `mapstructure:"auth_timeout"`

	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	Metrics         MetricsConfig          `mapstructure:"metrics"`
	Instrumentation instrumentation.Config `mapstructure:"instrumentation"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// flagKeys maps serve flags to configuration keys.
var flagKeys = map[string]string{
	"transport":          "transport",
	"http-addr":          "http_addr",
	"cors-origins":       "cors_origins",
	"token-path":         "token_path",
	"client-secret-path": "client_secret_path",
	"open-browser":       "open_browser",
	"auth-timeout":       "auth_timeout",
	"workers":            "workers",
	"queue-size":         "queue_size",
	"call-timeout":       "call_timeout",
	"rate-limit":         "rate_limit",
	"rate-burst":         "rate_burst",
	"log-level":          "log_level",
	"log-format":         "log_format",
	"metrics-enabled":    "metrics.enabled",
	"metrics-addr":       "metrics.addr",
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", DefaultTransport)
	v.SetDefault("http_addr", DefaultHTTPAddr)
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("token_path", DefaultTokenPath)
	v.SetDefault("client_secret_path", DefaultClientSecretPath)
	v.SetDefault("open_browser", false)
	v.SetDefault("auth_timeout", DefaultAuthTimeout)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("queue_size", DefaultQueueSize)
	v.SetDefault("call_timeout", time.Duration(0))
	v.SetDefault("rate_limit", DefaultRateLimit)
	v.SetDefault("rate_burst", DefaultRateBurst)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)

	inst := instrumentation.DefaultConfig()
	v.SetDefault("instrumentation.service_name", inst.ServiceName)
	v.SetDefault("instrumentation.service_instance_id", inst.ServiceInstanceID)
	v.SetDefault("instrumentation.enabled", inst.Enabled)
	v.SetDefault("instrumentation.metrics_exporter", inst.MetricsExporter)
	v.SetDefault("instrumentation.tracing_exporter", inst.TracingExporter)
	v.SetDefault("instrumentation.otlp_endpoint", inst.OTLPEndpoint)
	v.SetDefault("instrumentation.otlp_insecure", inst.OTLPInsecure)
	v.SetDefault("instrumentation.trace_sampling_rate", inst.TraceSamplingRate)
	v.SetDefault("instrumentation.audit.enabled", inst.AuditLogging.Enabled)
	v.SetDefault("instrumentation.audit.include_arguments", inst.AuditLogging.IncludeArguments)
}

// BindFlags binds the serve flags present in flags to their keys, so a flag
// set on the command line overrides environment, file and defaults.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile (if set) into v and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unknown transport %q (supported: %s, %s)", c.Transport, TransportStdio, TransportStreamableHTTP)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue size must not be negative, got %d", c.QueueSize)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit)
	}
	if c.RateBurst < 0 {
		return fmt.Errorf("rate burst must not be negative, got %d", c.RateBurst)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call timeout must not be negative, got %s", c.CallTimeout)
	}
	if c.TokenPath == "" {
		return fmt.Errorf("token path must not be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q (supported: text, json)", c.LogFormat)
	}
	if err := c.Instrumentation.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}
	return nil
}

// splitList flattens comma separated entries, which is how lists arrive
// from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
