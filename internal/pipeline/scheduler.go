package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Runner is the unit of work a Scheduler triggers.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Scheduler triggers rebuilds on a standard five-field cron schedule.
// Overlapping triggers are skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler registers r under spec. Each trigger runs with ctx.
func NewScheduler(ctx context.Context, spec string, r Runner, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	_, err := c.AddFunc(spec, func() {
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduled rebuild failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins triggering in the background.
func (s *Scheduler) Start() {
	s.logger.Info("rebuild scheduler started", "entries", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops triggering and returns a context that is done once any running
// job has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
