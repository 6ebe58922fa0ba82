package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/safar/shop-checkout/internal/metrics"
	"github.com/safar/shop-checkout/internal/models"
)

type Outbox interface {
	FetchPendingOutbox(ctx context.Context, limit int) ([]models.OutboxRecord, error)
	MarkOutboxSent(ctx context.Context, id int64) error
}

// Relay moves outbox records to the publisher in id order. It polls on an
// interval and can be woken early after a commit.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
	wake      chan struct{}
}

func NewRelay(outbox Outbox, publisher Publisher, interval time.Duration, batchSize int, m *metrics.Metrics, logger *slog.Logger) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// Wake never blocks.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "outbox flush failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush publishes pending records until the outbox is drained or a publish
// fails. A failed record stays pending and blocks the ones after it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		records, err := r.outbox.FetchPendingOutbox(ctx, r.batchSize)
		if err != nil {
			return sent, err
		}
		if len(records) == 0 {
			return sent, nil
		}

		for _, rec := range records {
			if err := r.publisher.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
				r.metrics.OutboxRecord("failed")
				return sent, fmt.Errorf("relay outbox record %d: %w", rec.ID, err)
			}
			if err := r.outbox.MarkOutboxSent(ctx, rec.ID); err != nil {
				return sent, err
			}
			r.metrics.OutboxRecord("published")
			r.logger.DebugContext(ctx, "outbox record published", "outbox_id", rec.ID, "event_id", rec.EventID)
			sent++
		}

		if len(records) < r.batchSize {
			return sent, nil
		}
	}
}
