package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(_ context.Context, sess auth.Session, _ *api.Client) error {
				printUser(out(cmd), *sess.User)
				return nil
			})
		},
	}
	cmd.AddCommand(newProfileUpdateCmd())
	return cmd
}

func newProfileUpdateCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your full name or email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd domain.ProfileUpdate
			if cmd.Flags().Changed("name") {
				upd.FullName = &name
			}
			if cmd.Flags().Changed("email") {
				upd.Email = &email
			}
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				u, err := client.UpdateMe(ctx, upd)
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), "Profile updated")
				printUser(out(cmd), u)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List plans and show your token usage this month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, sess auth.Session, client *api.Client) error {
				plans, err := client.Plans(ctx)
				if err != nil {
					return err
				}

				ids := make([]string, 0, len(plans))
				for id := range plans {
					ids = append(ids, id)
				}
				slices.Sort(ids)

				tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PLAN\tNAME\tAGENTS\tTOKENS/MONTH\t")
				for _, id := range ids {
					p := plans[id]
					current := ""
					if id == sess.User.Plan {
						current = "(current)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", id, p.Name, p.Limits.MaxAgents, p.Limits.MaxTokensPerMonth, current)
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				fmt.Fprintln(out(cmd))
				if usage, ok := plans.TokenUsageFor(*sess.User); ok {
					printUsage(out(cmd), "Tokens this month", usage)
				} else {
					fmt.Fprintf(out(cmd), "Tokens this month: %d (plan %q unknown)\n", sess.User.TokenUsageThisMonth, sess.User.Plan)
				}
				return nil
			})
		},
	}
}

const meterWidth = 30

// printUsage draws a text meter such as
//
//	Tokens this month  [#########.....................]  30.0% (3000/10000)
func printUsage(w io.Writer, label string, u domain.Usage) {
	pct := u.Percent()
	filled := int(pct / 100 * meterWidth)
	filled = min(max(filled, 0), meterWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", meterWidth-filled)
	fmt.Fprintf(w, "%s  [%s] %5.1f%% (%d/%d)\n", label, bar, pct, u.Used, u.Limit)
	switch u.Level() {
	case domain.UsageError:
		fmt.Fprintln(w, "You have almost reached your plan limit. Upgrade with `agentdesk billing checkout`.")
	case domain.UsageWarning:
		fmt.Fprintln(w, "You are approaching your plan limit.")
	}
}

func newBillingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Open a checkout or billing portal session",
	}
	cmd.AddCommand(newBillingRedirectCmd("checkout", "Start a checkout session to upgrade your plan",
		(*api.Client).CheckoutSession))
	cmd.AddCommand(newBillingRedirectCmd("portal", "Open the billing portal to manage your subscription",
		(*api.Client).PortalSession))
	return cmd
}

func newBillingRedirectCmd(use, short string, open func(*api.Client, context.Context) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				url, err := open(client, ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Open this link in your browser to continue:")
				fmt.Fprintln(out(cmd), url)
				return nil
			})
		},
	}
}
