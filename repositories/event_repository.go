package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/courseloft/teams-api/models"
	"github.com/lib/pq"
)

var ErrEventAlreadyProcessed = errors.New("webhook event already processed")

// EventRepository is the idempotency ledger for provider webhook
// deliveries.
type EventRepository interface {
	// Insert records an event id before processing. A duplicate id
	// returns ErrEventAlreadyProcessed.
	Insert(ctx context.Context, event *models.WebhookEvent) error

	// Delete drops a ledger entry so a failed delivery can be retried.
	Delete(ctx context.Context, eventID string) error

	// DeleteOlderThan prunes entries received before the cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type postgresEventRepository struct {
	db *sql.DB
}

func NewPostgresEventRepository(db *sql.DB) EventRepository {
	return &postgresEventRepository{db: db}
}

func (r *postgresEventRepository) Insert(ctx context.Context, event *models.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (event_id, event_type)
		VALUES ($1, $2)
		RETURNING received_at`

	err := r.db.QueryRowContext(ctx, query, event.EventID, event.EventType).Scan(&event.ReceivedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrEventAlreadyProcessed
		}
		return err
	}
	return nil
}

func (r *postgresEventRepository) Delete(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID)
	return err
}

func (r *postgresEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
