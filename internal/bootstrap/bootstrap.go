package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	hclog "github.com/hashicorp/go-hclog"

	activityadapter "studyrun/internal/modules/activity/adapter/out"
	activityout "studyrun/internal/modules/activity/port/out"
	activityservice "studyrun/internal/modules/activity/service"
	aggregatorinadapter "studyrun/internal/modules/aggregator/adapter/in"
	aggregatoroutadapter "studyrun/internal/modules/aggregator/adapter/out"
	aggregatorservice "studyrun/internal/modules/aggregator/service"
	aggregatorusecase "studyrun/internal/modules/aggregator/usecase"
	sequenceadapter "studyrun/internal/modules/sequence/adapter/out"
	sessioninadapter "studyrun/internal/modules/session/adapter/in"
	sessionoutadapter "studyrun/internal/modules/session/adapter/out"
	sessionout "studyrun/internal/modules/session/port/out"
	sessionservice "studyrun/internal/modules/session/service"
	sessionusecase "studyrun/internal/modules/session/usecase"
	"studyrun/internal/platform/audit"
	"studyrun/internal/platform/clock"
	"studyrun/internal/platform/config"
	"studyrun/internal/platform/id"
	"studyrun/internal/platform/logging"
	"studyrun/internal/platform/tx"
	uiapp "studyrun/internal/ui/app"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Config        config.Config
	Log           hclog.Logger
	SessionCLI    sessioninadapter.CLIHandler
	AggregatorCLI aggregatorinadapter.CLIHandler
	AggregatorAPI *aggregatorinadapter.HTTPHandler

	clock   clock.Clock
	closers []func(context.Context) error
}

func New(cfg config.Config) (*App, error) {
	log := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	for _, path := range []string{cfg.DocumentDBPath, cfg.LedgerDBPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	app := &App{Config: cfg, Log: log, clock: clock.SystemClock{}}

	catalog := sequenceadapter.NewYAMLCatalogProvider(cfg.CatalogPath)

	backends, err := app.backends(cfg)
	if err != nil {
		app.Close(context.Background())
		return nil, err
	}

	sink := app.sink(cfg, log)
	store := sessionservice.NewStore(backends, catalog, sink, app.clock, id.SessionCode{}, log)
	sessionUC := sessionusecase.NewInteractor(store, app.clock, clock.TickerScheduler{}, sessionusecase.Options{
		Autosave: cfg.AutosaveInterval,
		Logger:   log,
		Monitors: func(targets activityout.Targets) sessionout.ActivityMonitor {
			return activityservice.NewMonitor(targets, sink, app.clock, clock.TickerScheduler{}, log)
		},
	})
	app.SessionCLI = sessioninadapter.NewCLIHandler(sessionUC)
	// Live sessions close before the sinks and backends they write to.
	app.closers = append(app.closers, func(ctx context.Context) error {
		sessionUC.CloseAll(ctx)
		return nil
	})

	ledger, err := aggregatoroutadapter.NewSQLiteLedger(cfg.LedgerDBPath)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return ledger.Close() })
	aggregatorUC := aggregatorusecase.NewInteractor(aggregatorservice.NewAggregatorService(
		ledger,
		catalog,
		tx.NewDocumentLock(cfg.LockTimeout),
		app.clock,
		log,
	))
	app.AggregatorCLI = aggregatorinadapter.NewCLIHandler(aggregatorUC)
	app.AggregatorAPI = aggregatorinadapter.NewHTTPHandler(aggregatorUC, log)

	return app, nil
}

// backends opens the session backends in configured priority order.
func (a *App) backends(cfg config.Config) ([]sessionout.Backend, error) {
	out := make([]sessionout.Backend, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		switch name {
		case config.BackendDocument:
			db, err := sessionoutadapter.NewSQLiteBackend(cfg.DocumentDBPath)
			if err != nil {
				return nil, fmt.Errorf("open document store: %w", err)
			}
			a.closers = append(a.closers, func(context.Context) error { return db.Close() })
			out = append(out, db)
		case config.BackendLegacy:
			out = append(out, sessionoutadapter.NewLegacyBackend(cfg.LegacyPath))
		case config.BackendCache:
			out = append(out, sessionoutadapter.NewFileCacheBackend(cfg.CacheDir))
		default:
			return nil, fmt.Errorf("unknown session backend %q", name)
		}
	}
	return out, nil
}

// sink fans audit events out to the local log and, when configured, to the
// aggregator without blocking the caller.
func (a *App) sink(cfg config.Config, log hclog.Logger) audit.Sink {
	sinks := sessionoutadapter.MultiSink{sessionoutadapter.NewFileSink(cfg.AuditLogPath, log)}
	if cfg.AggregatorURL != "" {
		async := sessionoutadapter.NewAsyncSink(sessionoutadapter.NewHTTPSink(cfg.AggregatorURL, log), sessionoutadapter.DefaultAsyncQueue, log)
		a.closers = append(a.closers, func(ctx context.Context) error {
			err := async.Close(ctx)
			if dropped := async.Dropped(); dropped > 0 {
				log.Warn("audit events dropped", "count", dropped)
			}
			return err
		})
		sinks = append(sinks, async)
	}
	return sinks
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Log.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

// RunSession drives one session in the terminal until the user quits, then
// closes it.
func RunSession(ctx context.Context, app *App, code string) error {
	feed := activityadapter.NewFeedSource(app.clock)
	if err := app.SessionCLI.Observe(ctx, code, feed); err != nil {
		return err
	}
	model := uiapp.NewModel(code, app.SessionCLI, feed)
	program := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithMouseAllMotion(),
		tea.WithContext(ctx),
	)
	_, runErr := program.Run()
	if _, err := app.SessionCLI.Close(context.Background(), code); err != nil {
		return errors.Join(runErr, err)
	}
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}

// Serve runs the aggregator API until ctx is cancelled, repairing every
// session on the configured interval.
func Serve(ctx context.Context, app *App) error {
	ln, err := net.Listen("tcp", app.Config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", app.Config.ListenAddr, err)
	}
	srv := &http.Server{
		Handler:           app.AggregatorAPI.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var stopRepair clock.Cancel = func() {}
	if app.Config.RepairInterval > 0 {
		stopRepair = clock.TickerScheduler{}.Every(app.Config.RepairInterval, func() {
			out, err := app.AggregatorCLI.RecomputeAll(ctx)
			if err != nil {
				app.Log.Error("scheduled repair", "error", err)
				return
			}
			app.Log.Debug("scheduled repair", "repaired", out.Repaired, "failed", len(out.Failed))
		})
	}
	defer stopRepair()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	app.Log.Info("aggregator listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
