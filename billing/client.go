package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client retrieves live subscription state from the payment provider.
// The reconciler consults it for trial-end dates and for the live
// status check on invoice.paid.
type Client interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

type ClientConfig struct {
	APIURL    string
	SecretKey string
}

type httpClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient builds the provider API client. Configuration is validated
// here so a missing secret fails at startup, not on first webhook.
func NewClient(cfg ClientConfig) (Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("billing client: secret key is required")
	}
	base := strings.TrimSuffix(cfg.APIURL, "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("billing client: invalid API URL %q", cfg.APIURL)
	}
	return &httpClient{
		baseURL:    base,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *httpClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, ErrSubscriptionNotFound
	}

	endpoint := fmt.Sprintf("%s/v1/subscriptions/%s", c.baseURL, url.PathEscape(subscriptionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSubscriptionNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("provider returned status %d for subscription %s", resp.StatusCode, subscriptionID)
	}

	var sub Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("failed to decode provider subscription: %w", err)
	}
	return &sub, nil
}
