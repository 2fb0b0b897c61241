package models

import "time"

type Team struct {
	ID         int    `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	OwnerID    int    `json:"owner_id" db:"owner_id"`
	OwnerEmail string `json:"owner_email" db:"owner_email"`
	OwnerName  string `json:"owner_name" db:"owner_name"`

	SubscriptionStatus    SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	SubscriptionPlan      string             `json:"subscription_plan" db:"subscription_plan"`
	SubscriptionStartDate *time.Time         `json:"subscription_start_date,omitempty" db:"subscription_start_date"`
	SubscriptionEndDate   *time.Time         `json:"subscription_end_date,omitempty" db:"subscription_end_date"`
	TrialEndDate          *time.Time         `json:"trial_end_date,omitempty" db:"trial_end_date"`

	ProviderSubscriptionID string `json:"-" db:"provider_subscription_id"`
	ProviderCustomerID     string `json:"-" db:"provider_customer_id"`
	ProviderPriceID        string `json:"-" db:"provider_price_id"`

	// MemberCount tracks members with status invited or active.
	// The owner is not a member record and is not counted.
	MemberCount int       `json:"member_count" db:"member_count"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
