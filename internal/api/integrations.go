package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Integrations lists the third-party credentials of the current user.
func (c *Client) Integrations(ctx context.Context) ([]domain.Integration, error) {
	var out []domain.Integration
	if err := c.doJSON(ctx, http.MethodGet, "/integrations/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddIntegration registers a token for a service.
func (c *Client) AddIntegration(ctx context.Context, in domain.IntegrationCreate) (domain.Integration, error) {
	if err := in.Validate(); err != nil {
		return domain.Integration{}, err
	}
	var out domain.Integration
	err := c.doJSON(ctx, http.MethodPost, "/integrations/", in, &out)
	return out, err
}

// RemoveIntegration revokes an integration.
func (c *Client) RemoveIntegration(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/integrations/%d", id), nil, nil)
}
