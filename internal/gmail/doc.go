// Package gmail is the thin layer between the MCP handlers and the Gmail
// REST API.
//
// A Factory turns the credential produced by google.Flow into a Service,
// which implements the Capability interface: list, fetch, draft and send.
// Every Service call is paced by an optional rate limiter, traced and
// counted, and failures come back as *TransientRemoteError. Nothing is
// retried.
//
// The package also holds the pure helpers the handlers need:
//   - ExtractBody walks a MIME tree and returns the best readable body
//   - SummaryFromMessage and SummaryFromDraft render listing entries
//   - ComposedMessage builds the raw RFC 5322 message for compose
//
// Example usage:
//
//	factory := gmail.NewFactory(flow, gmail.WithRateLimit(10, 5))
//	svc, err := factory.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	msgs, err := svc.ListMessages(ctx, "from:boss@example.com", nil, 10)
package gmail
