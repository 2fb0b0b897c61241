package models

import "time"

// WebhookEvent is one row of the idempotency ledger: a provider event
// id that has already been processed.
type WebhookEvent struct {
	EventID    string    `json:"event_id" db:"event_id"`
	EventType  string    `json:"event_type" db:"event_type"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}
