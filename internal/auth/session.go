// Package auth holds the login session: a bearer token plus the user it
// belongs to. Sessions are values; every operation returns a new one.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// TokenStore persists the bearer token. Load returns "" when nothing is stored.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Backend is the subset of the REST API the session needs.
type Backend interface {
	AccessToken(ctx context.Context, username, password string) (domain.AccessToken, error)
	Register(ctx context.Context, role domain.UserRole, reg domain.Registration) (domain.User, error)
	CurrentUser(ctx context.Context, token string) (domain.User, error)
}

// Session is the authenticated identity. The zero value is logged out.
type Session struct {
	Token string
	User  *domain.User
}

// Authenticated reports whether the session carries a token and a user.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// RequireRole returns an *domain.AuthError unless the user has one of roles.
func (s Session) RequireRole(roles ...domain.UserRole) error {
	if !s.Authenticated() {
		return domain.ErrNotLoggedIn
	}
	if slices.Contains(roles, s.User.Role) {
		return nil
	}
	return &domain.AuthError{Reason: fmt.Sprintf("role %q may not do this", s.User.Role), Forbidden: true}
}

// Manager performs the session transitions against a backend and a store.
type Manager struct {
	backend Backend
	store   TokenStore
	log     *logging.Logger
}

// NewManager wires a Manager.
func NewManager(backend Backend, store TokenStore, log *logging.Logger) *Manager {
	return &Manager{backend: backend, store: store, log: log.Sub("auth")}
}

// Login exchanges credentials for a token, fetches the user and stores the token.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	if email == "" {
		return Session{}, &domain.ValidationError{Field: "email", Message: "email is required"}
	}
	if password == "" {
		return Session{}, &domain.ValidationError{Field: "password", Message: "password is required"}
	}

	tok, err := m.backend.AccessToken(ctx, email, password)
	if err != nil {
		if api.StatusCode(err) == http.StatusBadRequest {
			return Session{}, &domain.AuthError{Reason: "incorrect email or password", Err: err}
		}
		return Session{}, fmt.Errorf("login: %w", err)
	}

	user, err := m.backend.CurrentUser(ctx, tok.AccessToken)
	if err != nil {
		return Session{}, fmt.Errorf("fetching user: %w", err)
	}

	if err := m.store.Save(tok.AccessToken); err != nil {
		return Session{}, fmt.Errorf("storing token: %w", err)
	}

	m.log.Info().Str("email", user.Email).Str("role", string(user.Role)).Msg("logged in")
	return Session{Token: tok.AccessToken, User: &user}, nil
}

// LoginWithToken adopts a token issued elsewhere, such as the backend's OAuth
// callback. The token is stored only after /users/me accepts it.
func (m *Manager) LoginWithToken(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, &domain.ValidationError{Field: "token", Message: "token is required"}
	}

	user, err := m.backend.CurrentUser(ctx, token)
	if err != nil {
		return Session{}, fmt.Errorf("checking token: %w", err)
	}
	if err := m.store.Save(token); err != nil {
		return Session{}, fmt.Errorf("storing token: %w", err)
	}

	m.log.Info().Str("email", user.Email).Str("role", string(user.Role)).Msg("logged in with token")
	return Session{Token: token, User: &user}, nil
}

// Register creates an account with role and logs straight into it.
func (m *Manager) Register(ctx context.Context, role domain.UserRole, reg domain.Registration) (Session, error) {
	if err := reg.Validate(); err != nil {
		return Session{}, err
	}
	if _, err := m.backend.Register(ctx, role, reg); err != nil {
		return Session{}, fmt.Errorf("register: %w", err)
	}
	return m.Login(ctx, reg.Email, reg.Password)
}

// Refresh restores the session from the stored token. A token the backend
// rejects is cleared from the store. With no stored token it returns
// domain.ErrNotLoggedIn.
func (m *Manager) Refresh(ctx context.Context) (Session, error) {
	tok, err := m.store.Load()
	if err != nil {
		return Session{}, fmt.Errorf("loading token: %w", err)
	}
	if tok == "" {
		return Session{}, domain.ErrNotLoggedIn
	}

	user, err := m.backend.CurrentUser(ctx, tok)
	if err != nil {
		if domain.NeedsLogin(err) {
			m.log.Warn().Err(err).Msg("stored token rejected, clearing")
			if cerr := m.store.Clear(); cerr != nil {
				m.log.Warn().Err(cerr).Msg("clearing token failed")
			}
			return Session{}, err
		}
		if domain.IsAuthError(err) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("fetching user: %w", err)
	}

	return Session{Token: tok, User: &user}, nil
}

// Logout forgets the stored token.
func (m *Manager) Logout() (Session, error) {
	if err := m.store.Clear(); err != nil {
		return Session{}, fmt.Errorf("clearing token: %w", err)
	}
	m.log.Info().Msg("logged out")
	return Session{}, nil
}
