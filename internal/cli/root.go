// Package cli holds the cobra commands of the cot binary.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/cotflow/internal/config"
	"github.com/example/cotflow/internal/logging"
	"github.com/example/cotflow/internal/version"
	"github.com/example/cotflow/internal/wire"
)

// Runtime carries what every command needs: resolved config, logger and a lazily
// built App. One Runtime serves one command invocation.
type Runtime struct {
	ConfigPath string
	Verbose    bool
	Out        io.Writer

	cfg *config.Config
	log *zap.Logger
	app *wire.App
}

// Config loads the configuration once.
func (r *Runtime) Config() (*config.Config, error) {
	if r.cfg != nil {
		return r.cfg, nil
	}
	path, err := r.configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if r.Verbose {
		cfg.Logging.Level = "debug"
	}
	r.cfg = cfg
	return cfg, nil
}

func (r *Runtime) configPath() (string, error) {
	if r.ConfigPath != "" {
		return r.ConfigPath, nil
	}
	return config.DefaultPath()
}

// Logger returns the process logger, building it from config on first use.
func (r *Runtime) Logger() (*zap.Logger, error) {
	if r.log != nil {
		return r.log, nil
	}
	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	log, _, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	r.log = log
	return log, nil
}

// App builds the one-shot App: step triggers are logged, not run.
func (r *Runtime) App(ctx context.Context) (*wire.App, error) {
	return r.build(ctx, wire.Options{})
}

func (r *Runtime) build(ctx context.Context, opts wire.Options) (*wire.App, error) {
	if r.app != nil {
		return r.app, nil
	}
	cfg, err := r.Config()
	if err != nil {
		return nil, err
	}
	log, err := r.Logger()
	if err != nil {
		return nil, err
	}
	a, err := wire.New(ctx, cfg, log, opts)
	if err != nil {
		return nil, err
	}
	r.app = a
	return a, nil
}

// Close releases the App and flushes the logger.
func (r *Runtime) Close() {
	if r.app != nil {
		if err := r.app.Close(); err != nil && r.log != nil {
			r.log.Warn("failed to close app", zap.Error(err))
		}
		r.app = nil
	}
	if r.log != nil {
		_ = r.log.Sync()
	}
}

// NewRootCmd builds the cot command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	root, _ := newRoot(out)
	return root
}

// newRoot also returns the Runtime so the caller can Close it after Execute,
// which cobra's post-run hooks do not guarantee on error.
func newRoot(out io.Writer) (*cobra.Command, *Runtime) {
	if out == nil {
		out = os.Stdout
	}
	rt := &Runtime{Out: out}

	root := &cobra.Command{
		Use:     "cot",
		Short:   "cot - durable chain-of-thought research sessions",
		Version: version.String(),
		Long: `cot drives multi-phase research sessions through THINK, EXECUTE and INTEGRATE
steps, queues outbound searches, classifies failures and schedules recovery.

Run 'cot serve' to process sessions; the other commands inspect and steer them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&rt.ConfigPath, "config", "", "Config file (default ~/.cot/config.yaml)")
	root.PersistentFlags().BoolVarP(&rt.Verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(SessionCmd(rt))
	root.AddCommand(StepCmd(rt))
	root.AddCommand(QueueCmd(rt))
	root.AddCommand(ClassifyCmd(rt))
	root.AddCommand(DBCmd(rt))
	root.AddCommand(ServeCmd(rt))
	return root, rt
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root, rt := newRoot(os.Stdout)
	defer rt.Close()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
