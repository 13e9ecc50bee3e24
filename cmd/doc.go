// Package cmd implements the command-line interface for gmailmcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server over stdio or streamable HTTP
//   - auth: Run the Gmail authorization flow once and store the credential
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
// Settings come from flags, GMAILMCP_* environment variables and an optional
// --config file, in that order of precedence.
package cmd
