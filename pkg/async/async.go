package async

import (
	"context"
	"time"

	"github.com/platinummonkey/collab/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// SafeGo runs fn in a goroutine with panic recovery. A positive timeout
// bounds fn's context. Errors are logged, never returned.
//
// Example:
//
//	async.SafeGo(ctx, logger, 0, "db stats", func(ctx context.Context) error {
//	    return pollStats(ctx)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	go func() {
		ctx := parentCtx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
			defer cancel()
		}

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
}

// Map applies fn to every item with at most workers calls in flight and
// returns the results in input order. The first error cancels the remaining
// calls and is returned.
//
// Example:
//
//	plans, err := async.Map(ctx, ownerIDs, 4, func(ctx context.Context, id string) (plans.Tier, error) {
//	    return users.UserPlan(ctx, id)
//	})
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
