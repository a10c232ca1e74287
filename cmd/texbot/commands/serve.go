package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/texbot/internal/config"
	"git.home.luguber.info/inful/texbot/internal/events"
	"git.home.luguber.info/inful/texbot/internal/eventstore"
	"git.home.luguber.info/inful/texbot/internal/metrics"
	"git.home.luguber.info/inful/texbot/internal/pipeline"
	"git.home.luguber.info/inful/texbot/internal/queue"
	"git.home.luguber.info/inful/texbot/internal/retry"
	"git.home.luguber.info/inful/texbot/internal/scheduler"
	"git.home.luguber.info/inful/texbot/internal/server"
	"git.home.luguber.info/inful/texbot/internal/telegram"
	"git.home.luguber.info/inful/texbot/internal/version"
)

// shutdownTimeout bounds the graceful stop after a signal.
const shutdownTimeout = 30 * time.Second

// ServeCmd implements the 'serve' command.
type ServeCmd struct{}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	return RunServe(cfg, root.Verbose)
}

// RunServe runs the bot until SIGINT or SIGTERM.
func RunServe(cfg *config.Config, verbose bool) error {
	slog.SetDefault(cfg.Logging.NewLogger(os.Stderr, verbose))
	slog.Info("Starting texbot", slog.String("version", version.Resolved()))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, cfg, verbose)
}

// serve wires every component and runs until ctx ends or one of them fails.
// Nothing is started before the Bot API accepted the token.
func serve(ctx context.Context, cfg *config.Config, verbose bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	var (
		emitters events.Multi
		ledger   *eventstore.SQLiteStore
	)
	if cfg.History.Database != "" {
		store, err := eventstore.NewSQLiteStore(cfg.History.Database)
		if err != nil {
			return err
		}
		defer store.Close()
		ledger = store
		emitters = append(emitters, events.NewStoreEmitter(store))
	}
	if cfg.Events.NATSURL != "" {
		nats, err := events.NewNATSEmitter(ctx, cfg.Events, cfg.History.RetentionDuration())
		if err != nil {
			return err
		}
		defer nats.Close()
		emitters = append(emitters, nats)
	}

	client, err := telegram.NewHTTPClient(cfg.Telegram.ProxyURL, telegram.HTTPTimeout(cfg.Telegram.PollTimeoutDuration()))
	if err != nil {
		return err
	}
	api, err := telegram.Connect(cfg.Telegram, client, verbose)
	if err != nil {
		return err
	}

	sched, err := scheduler.New()
	if err != nil {
		return err
	}
	if err := scheduleHousekeeping(sched, cfg, ledger); err != nil {
		_ = sched.Stop()
		return err
	}

	orch := newOrchestrator(cfg, nil, pipeline.WithRecorder(recorder), pipeline.WithEmitter(emitters))
	q := queue.New(cfg.Pipeline.QueueSize, cfg.Pipeline.Workers)
	q.SetRecorder(recorder)
	// Jobs outlive the signal until Stop cancels them.
	q.Start(context.WithoutCancel(ctx))
	sched.Start()

	errCh := make(chan error, 2)
	var admin *server.Server
	if cfg.Admin.Listen != "" {
		deps := server.Deps{Queue: q, Registry: reg}
		if ledger != nil {
			deps.Ledger = ledger
		}
		admin = server.New(cfg.Admin.Listen, deps)
		go func() {
			if err := admin.Start(); err != nil {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()
	}

	bot := telegram.NewBot(api, orch, q, telegram.Options{
		AllowedChats:     cfg.Telegram.AllowedChats,
		MaxDownloadBytes: cfg.Telegram.MaxDownloadBytes,
		PollTimeout:      cfg.Telegram.PollTimeoutDuration(),
		Retry:            retry.FromConfig(cfg.Telegram.Retry),
		HTTPClient:       client,
		Recorder:         recorder,
	})
	go func() { errCh <- bot.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received, stopping")
	case runErr = <-errCh:
		if runErr != nil {
			slog.Error("Component failed, stopping", slog.String("error", runErr.Error()))
		}
		cancel()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	q.Stop(stopCtx)
	if err := sched.Stop(); err != nil {
		slog.Warn("Scheduler stop failed", slog.String("error", err.Error()))
	}
	if admin != nil {
		if err := admin.Shutdown(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("Admin server shutdown failed", slog.String("error", err.Error()))
		}
	}
	slog.Info("texbot stopped")
	return runErr
}

// scheduleHousekeeping registers the workspace sweep and, with a ledger, pruning.
func scheduleHousekeeping(sched *scheduler.Scheduler, cfg *config.Config, ledger *eventstore.SQLiteStore) error {
	requestTimeout := cfg.Pipeline.RequestTimeoutDuration()
	if _, err := sched.ScheduleSweep(cfg.Pipeline.WorkDir, requestTimeout, 2*requestTimeout); err != nil {
		return err
	}
	if ledger != nil {
		if _, err := sched.SchedulePrune(ledger, cfg.History.PruneIntervalDuration(), cfg.History.RetentionDuration()); err != nil {
			return err
		}
	}
	return nil
}
