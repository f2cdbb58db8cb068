package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	txcontext "charter/pkg/platform/tx"
)

// PostgresOutbox writes intents to the notification_outbox table. When the
// context carries a transaction the write joins it, which is what makes the
// outbox transactional with the lifecycle state change.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (o *PostgresOutbox) conn(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return o.db
}

func (o *PostgresOutbox) Enqueue(ctx context.Context, intent Intent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	_, err = o.conn(ctx).ExecContext(ctx, `
		INSERT INTO notification_outbox (id, event_type, payload, created_at)
		VALUES ($1,$2,$3,$4)`,
		intent.ID, string(intent.EventType), payload, intent.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue intent: %w", err)
	}
	return nil
}

func (o *PostgresOutbox) ListPending(ctx context.Context, limit int) ([]Intent, error) {
	rows, err := o.conn(ctx).QueryContext(ctx, `
		SELECT payload FROM notification_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	defer rows.Close()
	var intents []Intent
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		var intent Intent
		if err := json.Unmarshal(raw, &intent); err != nil {
			return nil, fmt.Errorf("unmarshal intent: %w", err)
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

func (o *PostgresOutbox) MarkPublished(ctx context.Context, intentID uuid.UUID, at time.Time) error {
	_, err := o.conn(ctx).ExecContext(ctx,
		`UPDATE notification_outbox SET published_at = $2 WHERE id = $1`, intentID, at)
	if err != nil {
		return fmt.Errorf("mark intent published: %w", err)
	}
	return nil
}
