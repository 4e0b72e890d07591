package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crawlq/internal/logging"
	"crawlq/internal/queue"
)

// HeartbeatMonitor refreshes in-flight heartbeats and reclaims records whose
// heartbeat stopped.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStale returns in-flight records of other runs whose heartbeat is
// older than the timeout to pending.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, exceptRun string) (int64, error) {
	if h.timeout <= 0 {
		return 0, nil
	}
	reclaimed, err := h.store.ReclaimStale(ctx, time.Now().Add(-h.timeout), exceptRun)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale commands",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "heartbeat_reclaimed"),
		)
	}
	return reclaimed, nil
}

// Start refreshes the heartbeat of id until the returned stop function is
// called. stop waits for the updater to exit.
func (h *HeartbeatMonitor) Start(ctx context.Context, id int64) (stop func()) {
	if h.interval <= 0 {
		return func() {}
	}
	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go h.loop(loopCtx, &wg, id)
	return func() {
		cancel()
		wg.Wait()
	}
}

func (h *HeartbeatMonitor) loop(ctx context.Context, wg *sync.WaitGroup, id int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, id); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_update_failed"),
				)
			}
		}
	}
}
