package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Plans returns the subscription tiers keyed by plan id.
func (c *Client) Plans(ctx context.Context) (domain.Plans, error) {
	var out domain.Plans
	if err := c.doJSON(ctx, http.MethodGet, "/plans/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckoutSession starts a checkout for the pro plan and returns the
// payment page URL.
func (c *Client) CheckoutSession(ctx context.Context) (string, error) {
	return c.redirect(ctx, "/subscriptions/create-checkout-session")
}

// PortalSession returns the URL of the billing management portal.
func (c *Client) PortalSession(ctx context.Context) (string, error) {
	return c.redirect(ctx, "/subscriptions/create-portal-session")
}

func (c *Client) redirect(ctx context.Context, path string) (string, error) {
	var out domain.RedirectSession
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", fmt.Errorf("POST %s: response has no url", path)
	}
	return out.URL, nil
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
