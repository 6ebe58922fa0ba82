package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safar/shop-checkout/internal/metrics"
	"github.com/segmentio/kafka-go"
)

type Inbox interface {
	RecordInboxEvent(ctx context.Context, eventID string) (bool, error)
}

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Consumer turns order.paid events into buyer emails. Each event id is mailed
// at most once.
type Consumer struct {
	inbox   Inbox
	mailer  Mailer
	metrics *metrics.Metrics
	logger  *slog.Logger
	backoff time.Duration
}

func NewConsumer(inbox Inbox, mailer Mailer, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	return &Consumer{
		inbox:   inbox,
		mailer:  mailer,
		metrics: m,
		logger:  logger,
		backoff: 2 * time.Second,
	}
}

func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := evt.Validate(); err != nil {
		return err
	}

	first, err := c.inbox.RecordInboxEvent(ctx, evt.EventID)
	if err != nil {
		return err
	}
	if !first {
		c.metrics.Notification("duplicate")
		c.logger.InfoContext(ctx, "duplicate event skipped", "event_id", evt.EventID, "order_id", evt.OrderID)
		return nil
	}

	if err := c.mailer.SendOrderPaid(ctx, evt); err != nil {
		c.metrics.Notification("failed")
		return fmt.Errorf("mail order %d: %w", evt.OrderID, err)
	}

	c.metrics.Notification("sent")
	c.logger.InfoContext(ctx, "order email sent", "event_id", evt.EventID, "order_id", evt.OrderID)
	return nil
}

// Run reads until ctx is cancelled. Messages are committed after handling,
// including ones that failed for good, so a poison message cannot stall the
// partition.
func (c *Consumer) Run(ctx context.Context, reader MessageReader) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "kafka read error", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.Handle(ctx, msg.Value); err != nil {
			level := slog.LevelError
			if errors.Is(err, ErrMalformedEvent) {
				level = slog.LevelWarn
			}
			c.logger.Log(ctx, level, "event handling failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "kafka commit error", "error", err)
		}
	}
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}
