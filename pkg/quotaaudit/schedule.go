package quotaaudit

import (
	"context"
	"time"

	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/robfig/cron/v3"
)

// Schedule registers the audit on c under a cron spec. Each run is bounded
// by timeout.
func (a *Auditor) Schedule(c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		defer observability.RecoverPanic(a.logger, "quota audit")

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if _, err := a.Run(ctx); err != nil {
			a.logger.WithError(err).Error("Quota audit failed")
		}
	})
}
