package models

import "time"

type MemberStatus string

const (
	MemberInvited MemberStatus = "invited"
	MemberActive  MemberStatus = "active"
	MemberRemoved MemberStatus = "removed"
)

// TeamMember tracks a person's relationship to a team. Invariant: an
// invite token is present iff the member is still in invited status.
type TeamMember struct {
	ID     int          `json:"id" db:"id"`
	TeamID int          `json:"team_id" db:"team_id"`
	Email  string       `json:"email" db:"email"`
	UserID *int         `json:"user_id,omitempty" db:"user_id"`
	Status MemberStatus `json:"status" db:"status"`

	InviteToken     *string    `json:"-" db:"invite_token"`
	InviteExpiresAt *time.Time `json:"invite_expires_at,omitempty" db:"invite_expires_at"`
	InvitedAt       time.Time  `json:"invited_at" db:"invited_at"`
	InvitedBy       int        `json:"invited_by" db:"invited_by"`

	HasSubscriptionAccess bool       `json:"has_subscription_access" db:"has_subscription_access"`
	JoinedAt              *time.Time `json:"joined_at,omitempty" db:"joined_at"`
	RemovedAt             *time.Time `json:"removed_at,omitempty" db:"removed_at"`
}

// MemberPatch is one member's share of a subscription-status cascade.
// Patches for a team are applied as a single transaction.
type MemberPatch struct {
	MemberID  int
	UserID    *int
	HasAccess bool
	// MirrorStatus is written onto the bound user's subscription
	// mirror when UserID is set.
	MirrorStatus SubscriptionStatus
}
