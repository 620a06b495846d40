package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	var email, password, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Long: `Log in with email and password, or adopt an existing access token with
--token (for example one issued by the browser OAuth flow).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token != "" {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.Close()

				sess, err := a.manager.LoginWithToken(cmd.Context(), token)
				if err != nil {
					return err
				}
				printLoggedIn(cmd, a, sess)
				return nil
			}

			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = prompt(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptSecret(cmd, in, "Password: "); err != nil {
					return err
				}
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.manager.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			printLoggedIn(cmd, a, sess)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	cmd.Flags().StringVar(&token, "token", "", "access token to store instead of logging in with a password")
	cmd.MarkFlagsMutuallyExclusive("token", "email")
	cmd.MarkFlagsMutuallyExclusive("token", "password")
	return cmd
}

func printLoggedIn(cmd *cobra.Command, a *app, sess auth.Session) {
	fmt.Fprintf(out(cmd), "Logged in as %s (%s)\n", sess.User.Email, sess.User.Role)
	if fs, ok := a.store.(*store.FileTokenStore); ok {
		fmt.Fprintf(cmd.ErrOrStderr(), "Token saved to %s\n", fs.Path())
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.manager.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(_ context.Context, sess auth.Session, _ *api.Client) error {
				printUser(out(cmd), *sess.User)
				return nil
			})
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var (
		reg  domain.Registration
		role string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reg.Password == "" && reg.Email != "" {
				p, err := promptSecret(cmd, bufio.NewReader(cmd.InOrStdin()), "Password: ")
				if err != nil {
					return err
				}
				reg.Password = p
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.manager.Register(cmd.Context(), domain.UserRole(role), reg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "Registered and logged in as %s (%s)\n", sess.User.Email, sess.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.Email, "email", "", "account email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "account password (prompted when omitted)")
	cmd.Flags().StringVar(&reg.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", "user", "account role (user, admin, viewer)")
	return cmd
}

func printUser(w io.Writer, u domain.User) {
	fmt.Fprintf(w, "ID:     %d\n", u.ID)
	fmt.Fprintf(w, "Email:  %s\n", u.Email)
	if u.FullName != "" {
		fmt.Fprintf(w, "Name:   %s\n", u.FullName)
	}
	fmt.Fprintf(w, "Role:   %s\n", u.Role)
	fmt.Fprintf(w, "Plan:   %s\n", u.Plan)
	fmt.Fprintf(w, "Tokens: %d this month\n", u.TokenUsageThisMonth)
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return prompt(cmd, in, label)
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
