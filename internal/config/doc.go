// Package config loads server configuration with viper.
//
// Values come, highest precedence first, from serve command flags, GMAIL_
// prefixed environment variables, an optional config file (YAML, TOML or
// JSON) and built-in defaults. Nested keys map to environment variables by
// replacing dots with underscores, so metrics.addr is GMAIL_METRICS_ADDR.
package config
