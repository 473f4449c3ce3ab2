package cli

import (
	"strings"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/cotflow/internal/adapters/cli"
	"github.com/example/cotflow/internal/core/recovery"
)

// ClassifyCmd returns the classify command. It needs no database.
func ClassifyCmd(rt *Runtime) *cobra.Command {
	var (
		locale string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "classify [error message]",
		Short: "Classify a raw error message",
		Long: `Show how a raw error message is classified: type, status code, user message,
retry wait and suggested action.

Examples:
  cot classify "429 Too Many Requests, retry in 2 minutes"
  cot classify "context length exceeded" --locale ja --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter := cliadapter.NewSessionAdapter(nil, nil, rt.Out)
			return adapter.Classify(strings.Join(args, " "), locale, asJSON)
		},
	}
	cmd.Flags().StringVarP(&locale, "locale", "l", recovery.DefaultLocale, "Message locale")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
