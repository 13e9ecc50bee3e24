// Package common provides helpers shared by the MCP tool packages, chiefly
// the instrumentation wrappers that add tracing, metrics and audit records
// to every tool and resource handler.
package common
