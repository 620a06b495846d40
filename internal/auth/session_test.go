package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	users      map[string]domain.User // token -> user
	passwords  map[string]string      // email -> password
	registered []domain.UserRole
	tokenErr   error
	userErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:     map[string]domain.User{},
		passwords: map[string]string{},
	}
}

func (f *fakeBackend) AccessToken(_ context.Context, username, password string) (domain.AccessToken, error) {
	if f.tokenErr != nil {
		return domain.AccessToken{}, f.tokenErr
	}
	if pw, ok := f.passwords[username]; !ok || pw != password {
		return domain.AccessToken{}, &api.Error{StatusCode: http.StatusBadRequest, Detail: "Incorrect email or password"}
	}
	tok := "tok-" + username
	if _, ok := f.users[tok]; !ok {
		f.users[tok] = domain.User{ID: int64(len(f.users) + 1), Email: username, Role: domain.UserRoleUser}
	}
	return domain.AccessToken{AccessToken: tok, TokenType: "bearer"}, nil
}

func (f *fakeBackend) Register(_ context.Context, role domain.UserRole, reg domain.Registration) (domain.User, error) {
	f.registered = append(f.registered, role)
	f.passwords[reg.Email] = reg.Password
	u := domain.User{ID: int64(len(f.users) + 1), Email: reg.Email, FullName: reg.FullName, Role: role}
	f.users["tok-"+reg.Email] = u
	return u, nil
}

func (f *fakeBackend) CurrentUser(_ context.Context, token string) (domain.User, error) {
	if f.userErr != nil {
		return domain.User{}, f.userErr
	}
	u, ok := f.users[token]
	if !ok {
		return domain.User{}, &domain.AuthError{Reason: "token rejected"}
	}
	return u, nil
}

func newManager(b Backend, s TokenStore) *Manager {
	return NewManager(b, s, logging.New(nil, "silent"))
}

func TestLogin(t *testing.T) {
	b := newFakeBackend()
	b.passwords["ada@example.com"] = "pw"
	ts := store.NewMemoryTokenStore("")
	m := newManager(b, ts)

	sess, err := m.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, "ada@example.com", sess.User.Email)

	stored, _ := ts.Load()
	assert.Equal(t, sess.Token, stored)
}

func TestLogin_EmptyFieldsNoRequest(t *testing.T) {
	b := newFakeBackend()
	b.tokenErr = errors.New("must not be called")
	m := newManager(b, store.NewMemoryTokenStore(""))

	var ve *domain.ValidationError
	_, err := m.Login(context.Background(), "", "pw")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)

	_, err = m.Login(context.Background(), "a@b.c", "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "password", ve.Field)
}

func TestLogin_BadCredentials(t *testing.T) {
	b := newFakeBackend()
	b.passwords["ada@example.com"] = "pw"
	ts := store.NewMemoryTokenStore("")
	m := newManager(b, ts)

	sess, err := m.Login(context.Background(), "ada@example.com", "nope")
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	assert.Contains(t, err.Error(), "incorrect email or password")
	assert.False(t, sess.Authenticated())

	stored, _ := ts.Load()
	assert.Empty(t, stored)
}

func TestLogin_TransportErrorNotAuth(t *testing.T) {
	b := newFakeBackend()
	b.tokenErr = errors.New("connection refused")
	m := newManager(b, store.NewMemoryTokenStore(""))

	_, err := m.Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.False(t, domain.IsAuthError(err))
}

func TestRegister_ThenLoggedIn(t *testing.T) {
	b := newFakeBackend()
	m := newManager(b, store.NewMemoryTokenStore(""))

	sess, err := m.Register(context.Background(), domain.UserRoleViewer, domain.Registration{
		Email: "v@example.com", Password: "pw", FullName: "Viewer",
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.UserRole{domain.UserRoleViewer}, b.registered)
	assert.Equal(t, domain.UserRoleViewer, sess.User.Role)
}

func TestRegister_Validation(t *testing.T) {
	b := newFakeBackend()
	m := newManager(b, store.NewMemoryTokenStore(""))
	_, err := m.Register(context.Background(), domain.UserRoleUser, domain.Registration{Email: "x@y.z"})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Empty(t, b.registered)
}

func TestLoginWithToken(t *testing.T) {
	b := newFakeBackend()
	b.users["oauth-token"] = domain.User{ID: 7, Email: "g@example.com", Role: domain.UserRoleUser}
	ts := store.NewMemoryTokenStore("")
	m := newManager(b, ts)

	sess, err := m.LoginWithToken(context.Background(), " oauth-token\n")
	require.NoError(t, err)
	assert.Equal(t, "oauth-token", sess.Token)
	assert.Equal(t, int64(7), sess.User.ID)

	stored, _ := ts.Load()
	assert.Equal(t, "oauth-token", stored)
}

func TestLoginWithToken_RejectedNotStored(t *testing.T) {
	ts := store.NewMemoryTokenStore("")
	m := newManager(newFakeBackend(), ts)

	_, err := m.LoginWithToken(context.Background(), "bogus")
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	stored, _ := ts.Load()
	assert.Empty(t, stored)

	_, err = m.LoginWithToken(context.Background(), "  ")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRefresh(t *testing.T) {
	b := newFakeBackend()
	b.users["good"] = domain.User{ID: 1, Email: "a@b.c", Role: domain.UserRoleAdmin}
	m := newManager(b, store.NewMemoryTokenStore("good"))

	sess, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "good", sess.Token)
	assert.Equal(t, domain.UserRoleAdmin, sess.User.Role)
}

func TestRefresh_NoToken(t *testing.T) {
	m := newManager(newFakeBackend(), store.NewMemoryTokenStore(""))
	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
}

func TestRefresh_RejectedTokenCleared(t *testing.T) {
	ts := store.NewMemoryTokenStore("stale")
	m := newManager(newFakeBackend(), ts)

	sess, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	assert.False(t, sess.Authenticated())

	stored, _ := ts.Load()
	assert.Empty(t, stored)
}

func TestRefresh_TransportErrorKeepsToken(t *testing.T) {
	b := newFakeBackend()
	b.userErr = errors.New("connection refused")
	ts := store.NewMemoryTokenStore("good")
	m := newManager(b, ts)

	_, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.False(t, domain.IsAuthError(err))

	stored, _ := ts.Load()
	assert.Equal(t, "good", stored)
}

func TestLogout(t *testing.T) {
	ts := store.NewMemoryTokenStore("good")
	m := newManager(newFakeBackend(), ts)

	sess, err := m.Logout()
	require.NoError(t, err)
	assert.False(t, sess.Authenticated())
	stored, _ := ts.Load()
	assert.Empty(t, stored)
}

func TestRequireRole(t *testing.T) {
	admin := Session{Token: "t", User: &domain.User{Role: domain.UserRoleAdmin}}
	viewer := Session{Token: "t", User: &domain.User{Role: domain.UserRoleViewer}}

	assert.NoError(t, admin.RequireRole(domain.UserRoleAdmin))
	assert.NoError(t, viewer.RequireRole(domain.UserRoleAdmin, domain.UserRoleViewer))

	err := viewer.RequireRole(domain.UserRoleAdmin)
	var ae *domain.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Reason, "viewer")
	assert.True(t, ae.Forbidden)
	assert.False(t, domain.NeedsLogin(err))

	assert.ErrorIs(t, Session{}.RequireRole(domain.UserRoleUser), domain.ErrNotLoggedIn)
}
