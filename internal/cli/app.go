package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/spf13/cobra"
)

// app bundles what a backend-facing command needs. Close releases the token
// store's database, if any.
type app struct {
	client  *api.Client
	store   auth.TokenStore
	manager *auth.Manager
	db      *store.DB
}

func newApp() (*app, error) {
	client := api.New(api.Options{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Logger:            log,
	})

	a := &app{client: client}
	switch {
	case cfg.Auth.Token != "":
		a.store = store.NewMemoryTokenStore(cfg.Auth.Token)
	case cfg.Auth.Store == "memory":
		a.store = store.NewMemoryTokenStore("")
	case cfg.Auth.Store == "sqlite":
		db, err := store.Open(paths.Database, log)
		if err != nil {
			return nil, fmt.Errorf("opening credential database: %w", err)
		}
		a.db = db
		a.store = store.NewSQLiteTokenStore(db, client.BaseURL())
	default:
		a.store = store.NewFileTokenStore(paths.TokenFile)
	}
	a.manager = auth.NewManager(client, a.store, log)
	return a, nil
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// session refreshes the stored login and returns a client carrying its token.
func (a *app) session(ctx context.Context) (auth.Session, *api.Client, error) {
	sess, err := a.manager.Refresh(ctx)
	if err != nil {
		return auth.Session{}, nil, loginHint(err)
	}
	return sess, a.client.WithToken(sess.Token), nil
}

// withSession runs fn with a fresh app and an authenticated session. When
// roles are given the user must hold one of them.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, sess auth.Session, client *api.Client) error, roles ...domain.UserRole) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	sess, client, err := a.session(ctx)
	if err != nil {
		return err
	}
	if len(roles) > 0 {
		if err := sess.RequireRole(roles...); err != nil {
			return err
		}
	}
	return fn(ctx, sess, client)
}

// loginHint points the user at `agentdesk login` for missing or rejected
// tokens. Permission failures pass through unchanged.
func loginHint(err error) error {
	if errors.Is(err, domain.ErrNotLoggedIn) {
		return errors.New("not logged in: run `agentdesk login`")
	}
	if domain.NeedsLogin(err) {
		return fmt.Errorf("%w: run `agentdesk login`", err)
	}
	return err
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
