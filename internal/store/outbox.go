package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/safar/shop-checkout/internal/models"
)

type OutboxMessage struct {
	EventID string
	Topic   string
	Key     string
	Payload any
}

func InsertOutbox(ctx context.Context, tx *sql.Tx, msg OutboxMessage) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (event_id, topic, key, payload, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		msg.EventID, msg.Topic, msg.Key, data)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	return nil
}

func FetchPendingOutbox(ctx context.Context, db *sql.DB, limit int) ([]models.OutboxRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_id, topic, key, payload, created_at, sent_at
		 FROM outbox
		 WHERE sent_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rows.Close()

	var records []models.OutboxRecord
	for rows.Next() {
		var rec models.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

func MarkOutboxSent(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE outbox SET sent_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// RecordInboxEvent reports whether eventID is seen for the first time.
func RecordInboxEvent(ctx context.Context, db *sql.DB, eventID string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO notification_inbox (event_id, received_at)
		 VALUES ($1, NOW())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID)
	if err != nil {
		return false, fmt.Errorf("record inbox event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}
