package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/stream"
	"github.com/soyeahso/agentdesk/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, stored login and backend reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := out(cmd)
			fmt.Fprintf(w, "agentdesk %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(w, "Config:  %s", paths.Config)
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprint(w, " (not found, using defaults)")
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Data:    %s\n", paths.Data)
			if cfg.Logging.File != "" {
				fmt.Fprintf(w, "Log:     %s\n", cfg.Logging.File)
			}
			fmt.Fprintln(w)

			fmt.Fprintf(w, "API:     %s\n", cfg.API.BaseURL)
			if socket, err := stream.SocketURL(cfg.API.BaseURL, cfg.API.SocketPath); err == nil {
				fmt.Fprintf(w, "Socket:  %s\n", socket)
			}
			store := cfg.Auth.Store
			if cfg.Auth.Token != "" {
				store = "env/config token"
			}
			fmt.Fprintf(w, "Auth:    store=%s\n", store)
			fmt.Fprintf(w, "Chat:    render=%s metrics=%v\n", cfg.Chat.Render, cfg.Chat.ShowMetrics)

			hm := hooks.NewManager(log)
			if n := hooks.RegisterConfigured(hm, cfg.Hooks); n > 0 {
				fmt.Fprintf(w, "Hooks:   %d command(s)\n", n)
				for _, ev := range hooks.AllEvents {
					if c := hm.Count(ev); c > 0 {
						fmt.Fprintf(w, "  %-16s %d\n", ev, c)
					}
				}
			}

			if !offline {
				fmt.Fprintln(w)
				printLoginStatus(cmd)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(w, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(w, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "do not contact the backend")
	return cmd
}

func printLoginStatus(cmd *cobra.Command) {
	w := out(cmd)
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(w, "Login:   error: %v\n", err)
		return
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	sess, _, err := a.session(ctx)
	if err != nil {
		fmt.Fprintf(w, "Login:   %v\n", err)
		return
	}
	fmt.Fprintf(w, "Login:   %s (%s, plan %s)\n", sess.User.Email, sess.User.Role, sess.User.Plan)
}
