package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// DBCmd returns the db command.
func DBCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Ping the database and print connection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := rt.App(ctx)
			if err != nil {
				return err
			}
			pingErr := a.Ping(ctx)
			version, err := a.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			st := a.Stats()

			health := color.New(color.FgGreen).Sprint("healthy")
			if pingErr != nil || !st.Healthy {
				health = color.New(color.FgRed).Sprint("unhealthy")
			}
			fmt.Fprintf(rt.Out, "Database: %s (%s)\n", a.Config.Database.Path, a.Config.Database.Driver)
			fmt.Fprintf(rt.Out, "Health:   %s\n", health)
			fmt.Fprintf(rt.Out, "Schema:   v%d\n", version)
			fmt.Fprintf(rt.Out, "Queries:  %d (%d failed, %d retries)\n", st.TotalQueries, st.FailedQueries, st.Retries)
			fmt.Fprintf(rt.Out, "Latency:  %s avg over %d\n", st.AvgLatency, st.WindowSize)
			if st.LastError != "" {
				fmt.Fprintf(rt.Out, "Last err: %s (%s)\n", st.LastError, st.LastErrorAt.Format("2006-01-02 15:04:05"))
			}
			if pingErr != nil {
				return fmt.Errorf("database ping failed: %w", pingErr)
			}
			return nil
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load development fixtures (waiting, failed and completed sessions)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Seed(cmd.Context()); err != nil {
				return fmt.Errorf("failed to seed database: %w", err)
			}
			fmt.Fprintln(rt.Out, "✓ Seeded development fixtures")
			return nil
		},
	}

	cmd.AddCommand(statsCmd, seedCmd)
	return cmd
}
