package server

import (
	"context"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/logging"
	"github.com/dmitrijs2005/creditkeeper/internal/server/metrics"
)

const handleSyncBatch = 100

type handleSyncer interface {
	SyncPendingHandles(ctx context.Context, limit int) (int, error)
}

// runHandleSync re-pushes pending handles every interval until ctx is done.
// A non-positive interval disables the sweep.
func runHandleSync(ctx context.Context, s handleSyncer, interval time.Duration, l logging.Logger, m *metrics.Metrics) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SyncPendingHandles(ctx, handleSyncBatch)
			if err != nil && ctx.Err() == nil {
				l.Error(ctx, "handle sync sweep failed", "error", err)
			}
			m.HandlesSynced(n)
		}
	}
}
