// Package logging provides structured logging helpers for gmailmcp.
//
// All logging goes through log/slog. This package keeps attribute names
// consistent and builds the process logger from configuration:
//
//	logger, err := logging.NewLogger(os.Stderr, "info", logging.FormatText)
//	logger.Info("message fetched",
//	    logging.Operation("get_email_content"),
//	    logging.MessageID(id))
//
// The stdio MCP transport owns stdout, so loggers must never write there.
//
// Tokens are logged through SanitizeToken and recipient addresses through
// Recipient, which hashes them.
package logging
