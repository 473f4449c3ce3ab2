package cli

import (
	"github.com/spf13/cobra"
)

// QueueCmd returns the queue command.
func QueueCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and feed the search request queue",
	}

	var intent string
	enqueueCmd := &cobra.Command{
		Use:   "enqueue [session-id] [phase] [query...]",
		Short: "Queue searches for a session phase",
		Long: `Queue one search per query and park the session in WAITING_ON_QUEUE.
Items are processed by 'cot serve'.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := parsePhase(args[1])
			if err != nil {
				return err
			}
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			_, err = a.QueueAdapterWithOutput(rt.Out).Enqueue(cmd.Context(), args[0], phase, args[2:], intent)
			return err
		},
	}
	enqueueCmd.Flags().StringVarP(&intent, "intent", "i", "", "What the searches are for")

	statusCmd := &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show queue items and counts for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			return a.QueueAdapterWithOutput(rt.Out).Status(cmd.Context(), args[0])
		},
	}

	responsesCmd := &cobra.Command{
		Use:   "responses [item-id...]",
		Short: "Print the stored responses of queue items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			return a.QueueAdapterWithOutput(rt.Out).Responses(cmd.Context(), args)
		},
	}

	cmd.AddCommand(enqueueCmd, statusCmd, responsesCmd)
	return cmd
}
