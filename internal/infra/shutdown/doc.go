// Package shutdown coordinates graceful shutdown of the e-charlar server.
//
// Usage:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("store", func(ctx context.Context) error { return store.Close() })
//	err := h.WaitContext(ctx) // returns after SIGINT, SIGTERM or ctx cancellation
package shutdown
