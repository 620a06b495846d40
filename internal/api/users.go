package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// AccessToken exchanges credentials for a bearer token. The body is
// form-encoded as the OAuth2 password flow expects.
func (c *Client) AccessToken(ctx context.Context, username, password string) (domain.AccessToken, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	body, err := c.do(ctx, http.MethodPost, "/login/access-token",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return domain.AccessToken{}, err
	}

	var tok domain.AccessToken
	if err := decode(body, &tok); err != nil {
		return domain.AccessToken{}, err
	}
	if tok.AccessToken == "" {
		return domain.AccessToken{}, fmt.Errorf("login response has no access token")
	}
	return tok, nil
}

// Register creates an account with the given role. Each role has its own
// endpoint on the backend.
func (c *Client) Register(ctx context.Context, role domain.UserRole, reg domain.Registration) (domain.User, error) {
	if err := reg.Validate(); err != nil {
		return domain.User{}, err
	}

	path := "/users/"
	switch role {
	case domain.UserRoleUser, "":
	case domain.UserRoleAdmin:
		path = "/users/admin"
	case domain.UserRoleViewer:
		path = "/users/viewer"
	default:
		return domain.User{}, &domain.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}

	var out domain.User
	err := c.doJSON(ctx, http.MethodPost, path, reg, &out)
	return out, err
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var out domain.User
	err := c.doJSON(ctx, http.MethodGet, "/users/me", nil, &out)
	return out, err
}

// CurrentUser is Me with an explicit token.
func (c *Client) CurrentUser(ctx context.Context, token string) (domain.User, error) {
	return c.WithToken(token).Me(ctx)
}

// UpdateMe changes the current user's profile.
func (c *Client) UpdateMe(ctx context.Context, in domain.ProfileUpdate) (domain.User, error) {
	if in.FullName == nil && in.Email == nil {
		return domain.User{}, &domain.ValidationError{Field: "profile", Message: "nothing to update"}
	}
	if in.Email != nil && *in.Email == "" {
		return domain.User{}, &domain.ValidationError{Field: "email", Message: "email cannot be empty"}
	}
	var out domain.User
	err := c.doJSON(ctx, http.MethodPut, "/users/me", in, &out)
	return out, err
}

// ListUsers returns every account. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/users/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/users/%d", id), nil, nil)
}
