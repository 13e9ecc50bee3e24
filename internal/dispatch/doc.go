// Package dispatch moves blocking work off MCP request goroutines.
//
// A Bridge owns a fixed pool of workers fed by a bounded queue. Offload
// hands a function to the pool and waits on a one-shot result channel, so
// the number of concurrent Gmail API calls and credential file operations
// is capped by the pool size rather than by the number of open requests.
//
//	b := dispatch.New(dispatch.Config{Workers: 8, QueueSize: 64})
//	defer b.Close(context.Background())
//
//	msg, err := dispatch.Offload(ctx, b, func(ctx context.Context) (*gmail.Message, error) {
//		return svc.GetMessage(ctx, id, "full")
//	})
package dispatch
