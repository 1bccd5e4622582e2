// Package async provides goroutine helpers for background work.
//
// SafeGo starts a fire-and-forget task with panic recovery and error
// logging:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "cache warm", func(ctx context.Context) error {
//		return warm(ctx)
//	})
//
// Map fans a slice out to a bounded number of workers and keeps the input
// order:
//
//	results, err := async.Map(ctx, counts, 4, evaluate)
//
// # Related Packages
//
//   - pkg/quotaaudit: evaluates projects with Map
//   - cmd/collabd: runs the DB stats poller with SafeGo
package async
