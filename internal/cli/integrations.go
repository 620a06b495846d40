package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

func newIntegrationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrations",
		Short: "Manage third-party service credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List connected services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				list, err := client.Integrations(ctx)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(out(cmd), "No integrations.")
					return nil
				}
				tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSERVICE\tADDED")
				for _, in := range list {
					added := "-"
					if !in.CreatedAt.IsZero() {
						added = in.CreatedAt.Local().Format(time.DateOnly)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", in.ID, in.ServiceName, added)
				}
				return tw.Flush()
			})
		},
	})

	var add domain.IntegrationCreate
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Store a token for a service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := add.Validate(); err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				in, err := client.AddIntegration(ctx, add)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Added %s integration (id %d)\n", in.ServiceName, in.ID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar(&add.ServiceName, "service", "", "service name, e.g. github")
	addCmd.Flags().StringVar(&add.Token, "token", "", "service access token")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:     "remove <integration-id>",
		Aliases: []string{"revoke"},
		Short:   "Revoke an integration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				if err := client.RemoveIntegration(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Removed integration %d\n", id)
				return nil
			})
		},
	})

	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools agents can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				tools, err := client.Tools(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tNAME\tDESCRIPTION")
				for _, t := range tools {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t.LangchainKey, t.Name, t.Description)
				}
				return tw.Flush()
			})
		},
	}
}
