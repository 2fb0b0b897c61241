package billing

import "encoding/json"

// Event types delivered by the payment provider.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.paid"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// Event is one webhook delivery after envelope parsing. Object holds
// the raw provider object and is decoded per event type.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// eventEnvelope matches the provider's wire format.
type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body into an Event.
func ParseEvent(body []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.ID == "" || env.Type == "" {
		return nil, ErrMalformedEvent
	}
	return &Event{ID: env.ID, Type: env.Type, Object: env.Data.Object}, nil
}

// CheckoutSession is the object carried by checkout.session.completed.
type CheckoutSession struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"` // "subscription" or "payment"
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// Subscription is the provider's subscription object, both as webhook
// payload and as the live-lookup response.
type Subscription struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"` // unix seconds, 0 if absent
	TrialEnd         int64  `json:"trial_end"`          // unix seconds, 0 if absent
}

// Invoice is the object carried by invoice.paid / invoice.payment_failed.
type Invoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}
