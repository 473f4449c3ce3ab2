// Package wire is the composition root. It builds every adapter and service for one
// process and owns their lifecycle; nothing here is a package-level singleton.
package wire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cliadapter "github.com/example/cotflow/internal/adapters/cli"
	genaiadapter "github.com/example/cotflow/internal/adapters/genai"
	"github.com/example/cotflow/internal/adapters/notify"
	"github.com/example/cotflow/internal/adapters/search"
	"github.com/example/cotflow/internal/adapters/sqlite"
	"github.com/example/cotflow/internal/app"
	"github.com/example/cotflow/internal/clock"
	"github.com/example/cotflow/internal/config"
	"github.com/example/cotflow/internal/db"
	"github.com/example/cotflow/internal/ports/primary"
	"github.com/example/cotflow/internal/ports/secondary"
)

// Options select the process mode and let callers replace outbound adapters.
type Options struct {
	// Serve builds the step dispatcher and runner. Without it, step triggers are
	// only logged and audited, which suits one-shot CLI commands.
	Serve bool
	// ConfigPath is watched for controller changes while Run is active. Empty disables the watch.
	ConfigPath string

	Clock     clock.Clock
	Generator secondary.ContentGenerator
	Search    secondary.SearchClient
}

// App holds the wired services of one process.
type App struct {
	Config     *config.Config
	Controller *app.TriggerControllerImpl
	Queue      *app.RequestQueueImpl
	Recovery   *app.RecoveryServiceImpl

	manager    *db.Manager
	scheduler  *app.RetryScheduler
	dispatcher *app.StepDispatcher
	configPath string
	log        *zap.Logger
}

// New opens the database and builds the services.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	driver, path := cfg.Database.Driver, cfg.Database.Path
	manager, err := db.NewManager(func() (*sql.DB, error) {
		return db.OpenWithSchema(driver, path)
	}, cfg.ManagerSettings(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sessionRepo := sqlite.NewSessionRepository(manager)
	phaseRepo := sqlite.NewPhaseRepository(manager)
	itemRepo := sqlite.NewQueueItemRepository(manager)
	events := sqlite.NewEventLogAdapter(manager, clk)
	notifier := notify.NewLogNotifier(log, events)

	searchClient := opts.Search
	if searchClient == nil {
		searchClient = search.NewClient(cfg.SearchSettings(), log)
	}

	a := &App{
		Config:     cfg,
		manager:    manager,
		configPath: opts.ConfigPath,
		log:        log,
	}

	var (
		trigger secondary.StepTrigger
		resumer secondary.Resumer
	)
	if opts.Serve {
		a.dispatcher = app.NewStepDispatcher(cfg.Queue.DispatchBuffer, events, log)
		trigger, resumer = a.dispatcher, a.dispatcher
	} else {
		lt := app.NewLoggingTrigger(events, log)
		trigger, resumer = lt, lt
	}

	locks := app.NewSessionLocks()
	a.scheduler = app.NewRetryScheduler(clk, log)
	executor := app.NewEffectExecutor(trigger, notifier, events, a.scheduler, log)
	a.Controller = app.NewTriggerController(sessionRepo, phaseRepo, events, executor, a.scheduler, locks, clk,
		cfg.ControllerSettings(), cfg.Thresholds(), log)
	a.Queue = app.NewRequestQueue(sessionRepo, itemRepo, searchClient, resumer, events, locks, clk,
		cfg.QueueSettings(), log)
	a.Recovery = app.NewRecoveryService(sessionRepo, phaseRepo, events, locks, clk, cfg.Thresholds(), log)

	if opts.Serve {
		generator := opts.Generator
		if generator == nil {
			g, err := genaiadapter.NewGenerator(ctx, cfg.GeneratorSettings(), log)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to initialize generator: %w", err)
			}
			generator = g
		}
		a.dispatcher.Bind(app.NewStepRunner(a.Controller, a.Queue, generator, log))
	}
	return a, nil
}

// Run starts the queue worker, the dispatcher, the database monitor and the config
// watcher, re-arms persisted retry timers and blocks until ctx is done or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.Queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.dispatcher != nil {
		g.Go(func() error { return a.dispatcher.Run(ctx) })
	}
	g.Go(func() error { return a.manager.RunMonitor(ctx, a.Config.Database.MonitorEvery) })
	if a.configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, a.configPath, a.log, a.reload)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		a.Queue.Stop()
		return nil
	})

	n, err := a.Controller.RecoverScheduledRetries(ctx)
	if err != nil {
		a.log.Warn("failed to recover scheduled retries", zap.Error(err))
	}
	a.log.Info("cot serving", zap.Int("recovered_retries", n), zap.String("db", a.Config.Database.Path))

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) reload(cfg *config.Config) {
	a.Controller.UpdateConfig(cfg.ControllerSettings())
}

// Stats returns the database manager instrumentation.
func (a *App) Stats() db.Stats {
	return a.manager.Stats()
}

// Ping checks the database.
func (a *App) Ping(ctx context.Context) error {
	return a.manager.Ping(ctx)
}

// Seed loads the demo fixtures.
func (a *App) Seed(ctx context.Context) error {
	return a.manager.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		return db.SeedFixtures(conn)
	})
}

// SchemaVersion returns the applied migration version.
func (a *App) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := a.manager.ExecuteQuery(ctx, func(ctx context.Context, conn *sql.DB) error {
		var err error
		v, err = db.CurrentVersion(conn)
		return err
	})
	return v, err
}

// Close stops timers and the worker and closes the database.
func (a *App) Close() error {
	a.scheduler.Stop()
	if a.Queue != nil {
		a.Queue.Stop()
	}
	return a.manager.Close()
}

// SessionAdapter returns a session adapter writing to stdout.
func (a *App) SessionAdapter() *cliadapter.SessionAdapter {
	return a.SessionAdapterWithOutput(os.Stdout)
}

// SessionAdapterWithOutput returns a session adapter writing to out.
func (a *App) SessionAdapterWithOutput(out io.Writer) *cliadapter.SessionAdapter {
	return cliadapter.NewSessionAdapter(a.Controller, a.Recovery, out)
}

// QueueAdapter returns a queue adapter writing to stdout.
func (a *App) QueueAdapter() *cliadapter.QueueAdapter {
	return a.QueueAdapterWithOutput(os.Stdout)
}

// QueueAdapterWithOutput returns a queue adapter writing to out.
func (a *App) QueueAdapterWithOutput(out io.Writer) *cliadapter.QueueAdapter {
	return cliadapter.NewQueueAdapter(a.Queue, out)
}

var (
	_ primary.TriggerController = (*app.TriggerControllerImpl)(nil)
	_ primary.RequestQueue      = (*app.RequestQueueImpl)(nil)
	_ primary.RecoveryService   = (*app.RecoveryServiceImpl)(nil)
)
