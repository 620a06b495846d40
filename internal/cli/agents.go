package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Manage your agents",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsShowCmd())
	cmd.AddCommand(newAgentsCreateCmd())
	cmd.AddCommand(newAgentsUpdateCmd())
	cmd.AddCommand(newAgentsDeleteCmd())
	return cmd
}

func newAgentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				agents, err := client.ListAgents(ctx)
				if err != nil {
					return err
				}
				if len(agents) == 0 {
					fmt.Fprintln(out(cmd), "No agents yet. Create one with `agentdesk agents create`.")
					return nil
				}
				tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTOOLS")
				for _, a := range agents {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", a.ID, a.Name, toolList(a.Tools))
				}
				return tw.Flush()
			})
		},
	}
}

func newAgentsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <agent-id>",
		Short: "Show an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				a, err := client.GetAgent(ctx, id)
				if api.IsNotFound(err) {
					return fmt.Errorf("agent %d not found", id)
				}
				if err != nil {
					return err
				}
				printAgent(out(cmd), a)
				return nil
			})
		},
	}
}

func newAgentsCreateCmd() *cobra.Command {
	var in domain.AgentCreate
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := in.Validate(); err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, sess auth.Session, client *api.Client) error {
				if err := checkAgentLimit(ctx, client, *sess.User); err != nil {
					return err
				}
				if err := checkTools(ctx, client, in.Tools); err != nil {
					return err
				}
				a, err := client.CreateAgent(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Created agent %d\n", a.ID)
				printAgent(out(cmd), a)
				return nil
			}, domain.UserRoleUser, domain.UserRoleAdmin)
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "agent name")
	cmd.Flags().StringVar(&in.SystemPrompt, "prompt", "", "system prompt")
	cmd.Flags().StringSliceVar(&in.Tools, "tool", nil, "tool key to enable (repeatable, see `agentdesk tools`)")
	return cmd
}

func newAgentsUpdateCmd() *cobra.Command {
	var (
		name, prompt string
		tools        []string
		clearTools   bool
	)
	cmd := &cobra.Command{
		Use:   "update <agent-id>",
		Short: "Change an agent's name, prompt or tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var upd domain.AgentUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("prompt") {
				upd.SystemPrompt = &prompt
			}
			switch {
			case clearTools:
				upd.Tools = []string{}
			case cmd.Flags().Changed("tool"):
				upd.Tools = tools
			}

			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				if err := checkTools(ctx, client, upd.Tools); err != nil {
					return err
				}
				a, err := client.UpdateAgent(ctx, id, upd)
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Updated agent %d\n", a.ID)
				printAgent(out(cmd), a)
				return nil
			}, domain.UserRoleUser, domain.UserRoleAdmin)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&prompt, "prompt", "", "new system prompt")
	cmd.Flags().StringSliceVar(&tools, "tool", nil, "replace the tool set (repeatable)")
	cmd.Flags().BoolVar(&clearTools, "no-tools", false, "remove every tool")
	cmd.MarkFlagsMutuallyExclusive("tool", "no-tools")
	return cmd
}

func newAgentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ auth.Session, client *api.Client) error {
				if err := client.DeleteAgent(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "Deleted agent %d\n", id)
				return nil
			}, domain.UserRoleUser, domain.UserRoleAdmin)
		},
	}
}

// checkAgentLimit refuses a create the user's plan has no room for.
func checkAgentLimit(ctx context.Context, client *api.Client, user domain.User) error {
	plans, err := client.Plans(ctx)
	if err != nil {
		return fmt.Errorf("listing plans: %w", err)
	}
	agents, err := client.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("listing agents: %w", err)
	}
	return plans.CheckAgentLimit(user, len(agents))
}

// checkTools rejects tool keys the backend does not offer.
func checkTools(ctx context.Context, client *api.Client, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	available, err := client.Tools(ctx)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}
	known := make([]string, 0, len(available))
	for _, t := range available {
		known = append(known, t.LangchainKey)
	}
	for _, k := range keys {
		if !slices.Contains(known, k) {
			return &domain.ValidationError{
				Field:   "tools",
				Message: fmt.Sprintf("unknown tool %q (available: %s)", k, strings.Join(known, ", ")),
			}
		}
	}
	return nil
}

func printAgent(w io.Writer, a domain.Agent) {
	fmt.Fprintf(w, "ID:     %d\n", a.ID)
	fmt.Fprintf(w, "Name:   %s\n", a.Name)
	fmt.Fprintf(w, "Tools:  %s\n", toolList(a.Tools))
	fmt.Fprintf(w, "Prompt:\n  %s\n", strings.ReplaceAll(a.SystemPrompt, "\n", "\n  "))
}

func toolList(tools []string) string {
	if len(tools) == 0 {
		return "-"
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = domain.ToolDisplayName(t)
	}
	return strings.Join(names, ", ")
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
