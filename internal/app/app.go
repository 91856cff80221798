package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"market-news-alerts/internal/config"
	"market-news-alerts/internal/dispatch"
	"market-news-alerts/internal/engine"
	"market-news-alerts/internal/ingest"
	"market-news-alerts/internal/prefs"
	"market-news-alerts/internal/sched"
	"market-news-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSender() dispatch.Sender {
	if a.Config.Dispatch.Telegram.Enabled {
		cfg := a.Config.Dispatch.Telegram
		return dispatch.NewTelegramSender(cfg.BotToken, cfg.DefaultChatID, cfg.APIBase, a.Config.Dispatch.Timeout, a.Logger)
	}
	return dispatch.NewLogSender(a.Logger)
}

func (a *App) newDispatcher() *dispatch.Dispatcher {
	return dispatch.New(a.newSender(), dispatch.Options{
		MaxAttempts: a.Config.Dispatch.MaxAttempts,
		Backoff:     a.Config.Dispatch.Backoff,
		Timeout:     a.Config.Dispatch.Timeout,
	}, a.Logger)
}

func (a *App) openAudit(ctx context.Context) (storage.AuditStore, func(), error) {
	store, err := storage.NewAuditStore(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, nil
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	closer := func() {
		_ = store.Close()
	}
	return store, closer, nil
}

// prefStore returns the durable preference store when the Postgres backend
// is configured, and the in-process store otherwise.
func (a *App) prefStore(audit storage.AuditStore) prefs.Store {
	if repo, ok := audit.(*storage.Repository); ok {
		return repo
	}
	return prefs.NewMemoryStore()
}

// Run executes the long-running alerting service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		a.Logger.Warn().Msg("database not configured; persistence disabled")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	eng := engine.New(a.prefStore(audit), a.newDispatcher(), engine.Options{
		Retention:       a.Config.Engine.Retention,
		DecisionLogSize: a.Config.Engine.DecisionLogSize,
		Audit:           audit,
	}, a.Logger)

	scheduler := sched.New(eng, sched.Options{
		SweepInterval: a.Config.Scheduler.SweepInterval,
	}, a.Logger)

	for _, rc := range a.Config.Scheduler.Rules {
		rule, err := rc.ToRule()
		if err != nil {
			a.Logger.Error().Err(err).Str("rule_id", rc.ID).Msg("skipping malformed rule config")
			continue
		}
		if err := scheduler.AddRule(rule); err != nil {
			// rule stays registered but deactivated; sweep continues for the rest
			a.Logger.Warn().Err(err).Str("rule_id", rule.ID).Msg("rule deactivated")
		}
	}

	ingest.StartKafka(ctx, a.Config.Ingest.Kafka, eng, a.Logger)

	if audit != nil {
		go a.pruneLoop(ctx, audit)
	}

	a.Logger.Info().Msg("starting alert service")
	err = scheduler.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert service stopped")
	return nil
}

// pruneLoop deletes audit rows past the retention window once an hour.
func (a *App) pruneLoop(ctx context.Context, audit storage.AuditStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-a.Config.Engine.Retention)
			if err := audit.DeleteDecisionsBefore(ctx, cutoff); err != nil {
				a.Logger.Warn().Err(err).Msg("audit prune failed")
			}
		}
	}
}

// ExportOptions hold parameters for exporting decision history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure a one-off evaluation.
type SimulateOptions struct {
	UserID      string
	Commodities []string
	Impact      string
	Headline    string
	Override    bool
}
