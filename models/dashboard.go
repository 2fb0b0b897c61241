package models

// Dashboard is the read-only membership view served to a signed-in user.
type Dashboard struct {
	HasTeam bool          `json:"has_team"`
	Role    string        `json:"role,omitempty"` // "owner" or "member"
	Team    *Team         `json:"team,omitempty"`
	Members []*TeamMember `json:"members,omitempty"`
}

// AccessInfo answers the single question the content gate asks.
type AccessInfo struct {
	HasAccess bool               `json:"has_access"`
	Status    SubscriptionStatus `json:"status"`
}
