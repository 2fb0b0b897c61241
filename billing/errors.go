package billing

import "errors"

var (
	ErrUnknownProviderStatus = errors.New("unknown provider subscription status")
	ErrMalformedEvent        = errors.New("malformed provider event payload")
	ErrSubscriptionNotFound  = errors.New("provider subscription not found")

	ErrMissingSignature   = errors.New("missing webhook signature header")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrSignatureTooOld    = errors.New("webhook signature timestamp outside tolerance")
	ErrMalformedSignature = errors.New("malformed webhook signature header")
)
