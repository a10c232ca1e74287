// Package scheduler runs the housekeeping jobs of a serving bot: pruning old
// ledger events and removing request workspaces a killed process left behind.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/texbot/internal/logfields"
	"git.home.luguber.info/inful/texbot/internal/workspace"
)

// jobTimeout bounds a single housekeeping run.
const jobTimeout = time.Minute

// Pruner deletes ledger events older than a cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler wraps gocron scheduler for managing periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
	now       func() time.Time
}

// New creates a new scheduler instance.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, now: time.Now}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// SchedulePrune removes ledger events older than retention every interval,
// starting immediately.
func (s *Scheduler) SchedulePrune(p Pruner, interval, retention time.Duration) (string, error) {
	return s.schedule("ledger-prune", interval, func() { s.prune(p, retention) })
}

// ScheduleSweep removes texbot workspaces under baseDir older than maxAge every
// interval, starting immediately.
func (s *Scheduler) ScheduleSweep(baseDir string, interval, maxAge time.Duration) (string, error) {
	return s.schedule("workspace-sweep", interval, func() { s.sweep(baseDir, maxAge) })
}

func (s *Scheduler) schedule(name string, interval time.Duration, task func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("%s: interval must be positive, got %s", name, interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) prune(p Pruner, retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := s.now().Add(-retention)
	n, err := p.PruneBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Ledger prune failed", logfields.Error(err))
		return
	}
	if n > 0 {
		slog.Info("Pruned ledger events", slog.Int64("events", n), slog.Time("cutoff", cutoff))
	}
}

func (s *Scheduler) sweep(baseDir string, maxAge time.Duration) {
	n, err := workspace.SweepStale(baseDir, maxAge, s.now())
	if err != nil {
		slog.Error("Workspace sweep failed", logfields.Path(baseDir), logfields.Error(err))
		return
	}
	if n > 0 {
		slog.Info("Removed stale workspaces", slog.Int("count", n))
	}
}
