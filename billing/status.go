package billing

import (
	"fmt"

	"github.com/courseloft/teams-api/models"
)

// MapProviderStatus translates a provider subscription status into the
// internal enum. The mapping is exhaustive over the statuses the
// provider documents; anything else is an error so that a new provider
// status fails loudly instead of silently degrading to "none".
func MapProviderStatus(status string) (models.SubscriptionStatus, error) {
	switch status {
	case "active":
		return models.SubscriptionActive, nil
	case "trialing":
		return models.SubscriptionTrialing, nil
	case "past_due":
		return models.SubscriptionPastDue, nil
	case "canceled", "unpaid", "incomplete_expired":
		return models.SubscriptionCanceled, nil
	case "incomplete", "paused":
		return models.SubscriptionNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProviderStatus, status)
	}
}
