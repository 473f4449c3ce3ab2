package cli

import (
	"github.com/spf13/cobra"

	cliadapter "github.com/example/cotflow/internal/adapters/cli"
	"github.com/example/cotflow/internal/ports/primary"
)

// SessionCmd returns the session command.
func SessionCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create, inspect and steer sessions",
	}

	var (
		phases          int
		style, platform string
		start           bool
	)
	createCmd := &cobra.Command{
		Use:   "create [theme]",
		Short: "Create a new session",
		Long: `Create a PENDING session at phase 1 / THINK.

Examples:
  cot session create "urban gardening"
  cot session create "tidal energy" --phases 2 --start`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.App(ctx)
			if err != nil {
				return err
			}
			adapter := a.SessionAdapterWithOutput(rt.Out)
			s, err := adapter.Create(ctx, primary.CreateSessionRequest{
				Theme:     args[0],
				Style:     style,
				Platform:  platform,
				MaxPhases: phases,
			})
			if err != nil {
				return err
			}
			if start {
				return adapter.Start(ctx, s.ID)
			}
			return nil
		},
	}
	createCmd.Flags().IntVarP(&phases, "phases", "p", 0, "Number of phases (default from config)")
	createCmd.Flags().StringVar(&style, "style", "", "Output style")
	createCmd.Flags().StringVar(&platform, "platform", "", "Target platform")
	createCmd.Flags().BoolVar(&start, "start", false, "Start the session right away")

	var status string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			return a.SessionAdapterWithOutput(rt.Out).List(cmd.Context(), status, listLimit)
		},
	}
	listCmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (PENDING, WAITING_ON_QUEUE, FAILED, ...)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "Maximum sessions to list")

	var eventLimit int
	eventsCmd := &cobra.Command{
		Use:   "events [session-id]",
		Short: "Show a session's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			return a.SessionAdapterWithOutput(rt.Out).Events(cmd.Context(), args[0], eventLimit)
		},
	}
	eventsCmd.Flags().IntVarP(&eventLimit, "limit", "n", 0, "Maximum events (0 = all)")

	cmd.AddCommand(createCmd, listCmd, eventsCmd)
	cmd.AddCommand(
		sessionAction(rt, "start", "Start a PENDING session", func(ad *cliadapter.SessionAdapter, c *cobra.Command, id string) error {
			return ad.Start(c.Context(), id)
		}),
		sessionAction(rt, "show", "Show session details", func(ad *cliadapter.SessionAdapter, c *cobra.Command, id string) error {
			return ad.Show(c.Context(), id)
		}),
		sessionAction(rt, "retry", "Resume a session from its last successful point", func(ad *cliadapter.SessionAdapter, c *cobra.Command, id string) error {
			return ad.Retry(c.Context(), id)
		}),
		sessionAction(rt, "advance", "Move a session to THINK of its next phase", func(ad *cliadapter.SessionAdapter, c *cobra.Command, id string) error {
			return ad.Advance(c.Context(), id)
		}),
		sessionAction(rt, "health", "Check a session for stalls and slow progress", func(ad *cliadapter.SessionAdapter, c *cobra.Command, id string) error {
			return ad.Health(c.Context(), id)
		}),
	)
	return cmd
}

// sessionAction builds a "<verb> [session-id]" subcommand around one adapter call.
func sessionAction(rt *Runtime, use, short string, run func(*cliadapter.SessionAdapter, *cobra.Command, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [session-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			return run(a.SessionAdapterWithOutput(rt.Out), cmd, args[0])
		},
	}
}
