package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner is the unit a Scheduler triggers.
type Runner interface {
	RunPipeline(ctx context.Context) error
}

// Scheduler triggers the pipeline on a cron schedule with a seconds field,
// e.g. "0 0 */6 * * *", and on demand through a trigger channel. A trigger
// that fires while a run is still going is skipped.
type Scheduler struct {
	runner   Runner
	schedule string
	trigger  <-chan struct{}
	running  sync.Mutex
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner Runner, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// WithTrigger makes every receive on ch start one pipeline run.
func (s *Scheduler) WithTrigger(ch <-chan struct{}) *Scheduler {
	s.trigger = ch
	return s
}

// Run blocks until ctx is cancelled, then waits for an in-flight run to
// finish.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{s.logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	id, err := c.AddFunc(s.schedule, func() { s.runOnce(ctx, "cron") })
	if err != nil {
		return fmt.Errorf("pipeline: schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.logger.InfoContext(ctx, "scheduler started",
		slog.String("schedule", s.schedule),
		slog.Time("next_run", c.Entry(id).Schedule.Next(time.Now())),
	)

	for {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.trigger:
			go s.runOnce(ctx, "manual")
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, source string) {
	if !s.running.TryLock() {
		s.logger.InfoContext(ctx, "pipeline already running, trigger skipped", slog.String("source", source))
		return
	}
	defer s.running.Unlock()

	if err := s.runner.RunPipeline(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled pipeline failed",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
