// Package server holds the shared server state and the HTTP surfaces of
// gmailmcp.
//
// ServerContext carries the authentication flow, the Gmail service factory
// and the dispatch bridge into the MCP handlers. HTTPServer mounts the
// streamable HTTP transport at /mcp together with the Kubernetes style
// health endpoints, and MetricsServer exposes Prometheus metrics on a
// separate port.
package server
