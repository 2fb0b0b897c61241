package services

// EventPublisher pushes team-scoped events to connected dashboard
// clients. Implemented by the live hub; a nil publisher disables
// broadcasting.
type EventPublisher interface {
	Publish(teamID int, eventType string, payload any)
}

// Live event types.
const (
	EventSubscriptionUpdated = "subscription_updated"
	EventMemberJoined        = "member_joined"
	EventMemberRemoved       = "member_removed"
)
