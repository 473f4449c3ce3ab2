package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/ports/primary"
)

// StepCmd returns the step command, used by external step runners to report back.
func StepCmd(rt *Runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Report step results and failures",
	}

	var (
		payload, file, prompt string
		tokens                int
	)
	submitCmd := &cobra.Command{
		Use:   "submit [session-id] [phase] [THINK|EXECUTE|INTEGRATE]",
		Short: "Store a step result and progress the session",
		Long: `Store a step result. The payload is the step's JSON object or free text; a free
text THINK plan yields its "QUERY:" lines as searches. Submitting the same result
twice is a no-op.

Examples:
  cot step submit 6f1c... 1 THINK --payload '{"plan":"...","queries":["a","b"]}'
  cot step submit 6f1c... 1 INTEGRATE --file summary.md
  generate | cot step submit 6f1c... 2 INTEGRATE --file -`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := parsePhase(args[1])
			if err != nil {
				return err
			}
			body, err := readPayload(cmd.InOrStdin(), payload, file)
			if err != nil {
				return err
			}
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			return a.SessionAdapterWithOutput(rt.Out).Submit(cmd.Context(), primary.StepResponseRequest{
				SessionID: args[0],
				Phase:     phase,
				Step:      strings.ToUpper(args[2]),
				Payload:   body,
				Prompt:    prompt,
				Tokens:    tokens,
			})
		},
	}
	submitCmd.Flags().StringVar(&payload, "payload", "", "Result payload")
	submitCmd.Flags().StringVarP(&file, "file", "f", "", "Read the payload from a file ('-' for stdin)")
	submitCmd.Flags().StringVar(&prompt, "prompt", "", "Prompt that produced the result")
	submitCmd.Flags().IntVar(&tokens, "tokens", 0, "Tokens used")

	var locale string
	failCmd := &cobra.Command{
		Use:   "fail [session-id] [phase] [step] [error message]",
		Short: "Record a step failure and plan recovery",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := parsePhase(args[1])
			if err != nil {
				return err
			}
			a, err := rt.App(cmd.Context())
			if err != nil {
				return err
			}
			return a.SessionAdapterWithOutput(rt.Out).Fail(cmd.Context(), primary.StepErrorRequest{
				SessionID: args[0],
				Phase:     phase,
				Step:      strings.ToUpper(args[2]),
				Err:       errors.New(args[3]),
				Locale:    locale,
			})
		},
	}
	failCmd.Flags().StringVarP(&locale, "locale", "l", recovery.DefaultLocale,
		fmt.Sprintf("Message locale (%s)", strings.Join(recovery.Locales(), ", ")))

	cmd.AddCommand(submitCmd, failCmd)
	return cmd
}

func parsePhase(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("phase must be a positive number, got %q", s)
	}
	return n, nil
}

func readPayload(stdin io.Reader, payload, file string) (string, error) {
	switch {
	case payload != "" && file != "":
		return "", errors.New("use either --payload or --file, not both")
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read payload: %w", err)
		}
		return string(data), nil
	case payload == "":
		return "", errors.New("a payload is required (--payload or --file)")
	}
	return payload, nil
}
