package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/chat"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/stream"
	"github.com/soyeahso/agentdesk/internal/tui"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <agent-id>",
		Short: "Chat with an agent in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, sess auth.Session, client *api.Client) error {
				s, err := newChatSession(sess, client, id)
				if err != nil {
					return err
				}
				return loginHint(tui.Run(ctx, s, tui.Options{
					Markdown:     cfg.Chat.Render == "markdown",
					ShowMetrics:  cfg.Chat.ShowMetrics,
					GlamourStyle: "auto",
				}))
			})
		},
	}

	cmd.AddCommand(newChatSendCmd())
	return cmd
}

func newChatSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <agent-id> <message>",
		Short: "Send one message and stream the reply to stdout",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			message := strings.Join(args[1:], " ")
			if strings.TrimSpace(message) == "" {
				return &domain.ValidationError{Field: "message", Message: "message is required"}
			}
			return withSession(cmd, func(ctx context.Context, sess auth.Session, client *api.Client) error {
				s, err := newChatSession(sess, client, id)
				if err != nil {
					return err
				}
				defer s.Close()
				return sendOnce(ctx, cmd, s, message)
			})
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <agent-id>",
		Short: "Print the conversation history of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				msgs, err := client.History(ctx, id)
				if api.IsNotFound(err) {
					return fmt.Errorf("agent %d not found", id)
				}
				if err != nil {
					return err
				}
				if len(msgs) == 0 {
					fmt.Fprintln(out(cmd), "No messages yet.")
					return nil
				}
				for _, m := range msgs {
					who := "You"
					if m.Role == domain.RoleAI {
						who = "Agent"
					}
					stamp := ""
					if !m.Timestamp.IsZero() {
						stamp = " [" + m.Timestamp.Local().Format(time.DateTime) + "]"
					}
					fmt.Fprintf(out(cmd), "%s%s:\n%s\n", who, stamp, m.Content)
					if line := tui.MetricsLine(m); line != "" && cfg.Chat.ShowMetrics {
						fmt.Fprintf(out(cmd), "(%s)\n", line)
					}
					fmt.Fprintln(out(cmd))
				}
				return nil
			})
		},
	}
}

func newChatSession(sess auth.Session, client *api.Client, agentID int64) (*chat.Session, error) {
	socketURL, err := stream.SocketURL(cfg.API.BaseURL, cfg.API.SocketPath)
	if err != nil {
		return nil, err
	}

	hm := hooks.NewManager(log)
	if n := hooks.RegisterConfigured(hm, cfg.Hooks); n > 0 {
		log.Debug().Int("count", n).Msg("registered hook commands")
	}

	return chat.NewSession(chat.Options{
		AgentID: agentID,
		UserID:  sess.User.ID,
		Loader:  client,
		Dial: chat.StreamDialer(stream.Options{
			URL:              socketURL,
			Token:            sess.Token,
			HandshakeTimeout: time.Duration(cfg.Chat.HandshakeTimeoutSeconds) * time.Second,
			Logger:           log,
		}),
		Hooks:  hm,
		Logger: log,
	}), nil
}

// sendOnce waits for the chat to start, sends message and prints the reply
// as it streams. It returns once the reply is complete.
func sendOnce(ctx context.Context, cmd *cobra.Command, s *chat.Session, message string) error {
	if err := s.LoadConversation(ctx); err != nil {
		return loginHint(err)
	}
	if err := s.OpenChannel(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		streamErr error
		sent      bool
		done      bool
	)
	stop := func(err error) {
		streamErr = err
		cancel()
	}

	err := s.Run(runCtx, func(u chat.Update) {
		switch {
		case u.Err != nil:
			stop(u.Err)
		case u.Event == stream.EventChatStarted && !sent:
			ok, err := s.SendMessage(ctx, message)
			if err != nil {
				stop(err)
				return
			}
			if !ok {
				stop(errors.New("message was not sent"))
				return
			}
			sent = true
		case u.Fragment != "":
			fmt.Fprint(out(cmd), u.Fragment)
		case u.ToolStatus != "":
			fmt.Fprintln(cmd.ErrOrStderr(), u.ToolStatus)
		case u.Done:
			done = true
			fmt.Fprintln(out(cmd))
			if cfg.Chat.ShowMetrics && u.Message != nil {
				if line := tui.MetricsLine(*u.Message); line != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "(%s)\n", line)
				}
			}
			cancel()
		}
	})

	switch {
	case streamErr != nil:
		return streamErr
	case done:
		return nil
	case err != nil && !errors.Is(err, context.Canceled):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return errors.New("chat channel closed before the reply finished")
}
