package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ListAgents returns the agents owned by the current user.
func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	var out []domain.Agent
	if err := c.doJSON(ctx, http.MethodGet, "/agents/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAgent returns one agent.
func (c *Client) GetAgent(ctx context.Context, id int64) (domain.Agent, error) {
	var out domain.Agent
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/agents/%d", id), nil, &out)
	return out, err
}

// History returns the persisted conversation with an agent, oldest first.
// Returned messages carry ServerID only; callers assign client IDs.
func (c *Client) History(ctx context.Context, agentID int64) ([]domain.ConversationMessage, error) {
	var out []domain.ConversationMessage
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/agents/%d/history", agentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAgent validates in and creates a new agent.
func (c *Client) CreateAgent(ctx context.Context, in domain.AgentCreate) (domain.Agent, error) {
	if err := in.Validate(); err != nil {
		return domain.Agent{}, err
	}
	if in.Tools == nil {
		in.Tools = []string{}
	}
	var out domain.Agent
	err := c.doJSON(ctx, http.MethodPost, "/agents/", in, &out)
	return out, err
}

// UpdateAgent applies a partial update.
func (c *Client) UpdateAgent(ctx context.Context, id int64, in domain.AgentUpdate) (domain.Agent, error) {
	if in.Empty() {
		return domain.Agent{}, &domain.ValidationError{Field: "agent", Message: "nothing to update"}
	}
	var out domain.Agent
	err := c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/agents/%d", id), in, &out)
	return out, err
}

// DeleteAgent removes an agent and its history.
func (c *Client) DeleteAgent(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/agents/%d", id), nil, nil)
}

// Tools lists the tools agents may be given.
func (c *Client) Tools(ctx context.Context) ([]domain.Tool, error) {
	var out []domain.Tool
	if err := c.doJSON(ctx, http.MethodGet, "/tools/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
