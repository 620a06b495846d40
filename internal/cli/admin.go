package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

// adminOnly runs fn with a session whose user is an admin.
func adminOnly(cmd *cobra.Command, fn func(ctx context.Context, sess auth.Session, client *api.Client) error) error {
	return withSession(cmd, fn, domain.UserRoleAdmin)
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Platform administration (admin role required)",
	}

	cmd.AddCommand(newAdminUsersCmd())
	cmd.AddCommand(newAdminAnalyticsCmd())
	cmd.AddCommand(newAdminAuditLogCmd())
	return cmd
}

func newAdminUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List or delete accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminOnly(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				users, err := client.ListUsers(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tPLAN\tTOKENS")
				for _, u := range users {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", u.ID, u.Email, u.FullName, u.Role, u.Plan, u.TokenUsageThisMonth)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return adminOnly(cmd, func(ctx context.Context, sess auth.Session, client *api.Client) error {
				if id == sess.User.ID {
					return &domain.ValidationError{Field: "user", Message: "you cannot delete your own account"}
				}
				if err := client.DeleteUser(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Deleted user %d\n", id)
				return nil
			})
		},
	})
	return cmd
}

func newAdminAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show platform totals and the last seven days of messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminOnly(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				a, err := client.Analytics(ctx)
				if err != nil {
					return err
				}
				w := out(cmd)
				fmt.Fprintf(w, "Users:              %d\n", a.TotalUsers)
				fmt.Fprintf(w, "Agents:             %d\n", a.TotalAgents)
				fmt.Fprintf(w, "Messages:           %d\n", a.TotalMessages)
				fmt.Fprintf(w, "Avg response time:  %.2fs\n", a.AvgResponseTime)
				fmt.Fprintf(w, "Tokens used:        %d\n", a.TotalTokensUsed)

				series := a.MessagesTimeSeries
				if len(series) > 7 {
					series = series[len(series)-7:]
				}
				if len(series) == 0 {
					return nil
				}
				peak := 0
				for _, p := range series {
					peak = max(peak, p.Messages)
				}
				fmt.Fprintln(w, "\nMessages per day:")
				for _, p := range series {
					bar := 0
					if peak > 0 {
						bar = p.Messages * meterWidth / peak
					}
					label := p.Date
					if d := p.Day(); !d.IsZero() {
						label = d.Format("Mon Jan 02")
					}
					fmt.Fprintf(w, "  %-10s %s %d\n", label, strings.Repeat("#", bar), p.Messages)
				}
				return nil
			})
		},
	}
}

func newAdminAuditLogCmd() *cobra.Command {
	var outFile string
	cmd := &cobra.Command{
		Use:   "audit-log",
		Short: "Export the audit log as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminOnly(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				data, err := client.AuditLogCSV(ctx)
				if err != nil {
					return err
				}
				if outFile == "" || outFile == "-" {
					_, err := out(cmd).Write(data)
					return err
				}

				records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
				if err != nil {
					return fmt.Errorf("audit log is not valid CSV: %w", err)
				}
				if err := os.WriteFile(outFile, data, 0o600); err != nil {
					return err
				}
				entries := max(len(records)-1, 0)
				fmt.Fprintf(out(cmd), "Wrote %d audit entries to %s\n", entries, outFile)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outFile, "out", "o", "audit_log.csv", "output file, or - for stdout")
	return cmd
}
