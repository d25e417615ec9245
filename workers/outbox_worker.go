// workers/outbox_worker.go
package workers

import (
	"context"
	"log/slog"
	"time"
)

// OutboxRetrier re-sends notifications that have not reached the chat bridge.
type OutboxRetrier interface {
	RetryUndelivered(ctx context.Context, limit int) (int, error)
}

// OutboxWorker polls the notification outbox and retries failed deliveries.
type OutboxWorker struct {
	retrier   OutboxRetrier
	interval  time.Duration
	batchSize int
}

func NewOutboxWorker(retrier OutboxRetrier, interval time.Duration) *OutboxWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &OutboxWorker{retrier: retrier, interval: interval, batchSize: 100}
}

// Start runs the poll loop in a goroutine until ctx is cancelled.
func (w *OutboxWorker) Start(ctx context.Context) {
	slog.Info("🔁 starting notification outbox worker", "interval", w.interval)
	go w.run(ctx)
}

func (w *OutboxWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification outbox worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick retries one batch. Failures stay in the outbox for the next tick.
func (w *OutboxWorker) tick(ctx context.Context) int {
	sent, err := w.retrier.RetryUndelivered(ctx, w.batchSize)
	if err != nil {
		slog.Error("❌ outbox retry failed", "error", err)
		return 0
	}
	if sent > 0 {
		slog.Info("✅ redelivered notifications", "count", sent)
	}
	return sent
}
