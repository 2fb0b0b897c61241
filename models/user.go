package models

import "time"

// User is the external identity record. Only the subscription mirror
// fields are owned by this subsystem; everything else belongs to the
// identity provider.
type User struct {
	ID    int    `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`

	// Subscription mirror, derived from the owning team.
	TeamID                 *int               `json:"team_id,omitempty" db:"team_id"`
	IsTeamOwner            bool               `json:"is_team_owner" db:"is_team_owner"`
	SubscriptionStatus     SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	ProviderCustomerID     string             `json:"-" db:"provider_customer_id"`
	ProviderSubscriptionID string             `json:"-" db:"provider_subscription_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SubscriptionMirror is the set of derived fields written onto a user
// record when team state changes.
type SubscriptionMirror struct {
	TeamID                 *int
	IsTeamOwner            bool
	SubscriptionStatus     SubscriptionStatus
	ProviderCustomerID     string
	ProviderSubscriptionID string
}
