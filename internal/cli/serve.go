package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/cotflow/internal/wire"
)

// ServeCmd returns the serve command: the long-running process that runs steps,
// drains the queue and fires retry timers.
func ServeCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run sessions: generate steps, process the queue, fire retries",
		Long: `Run the step dispatcher, the queue worker, the retry scheduler and the database
health monitor until interrupted. Controller settings in the config file are
reloaded when it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *Runtime) error {
	path, err := rt.configPath()
	if err != nil {
		return err
	}
	a, err := rt.build(ctx, wire.Options{Serve: true, ConfigPath: path})
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
