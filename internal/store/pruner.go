package store

import (
	"context"
	"log/slog"
	"time"
)

// StartExchangePruner deletes exchanges older than retention every interval
// until ctx is done.
func StartExchangePruner(ctx context.Context, repo Repository, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Exchange pruner started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				pruneExchanges(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Exchange pruner shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneExchanges(ctx context.Context, repo Repository, retention time.Duration) {
	deleted, err := repo.PruneExchanges(ctx, retention)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Exchange pruner failed", "error", err)
		}
		return
	}
	if deleted > 0 {
		slog.Info("Exchange pruner removed old exchanges", "count", deleted)
	}
}
