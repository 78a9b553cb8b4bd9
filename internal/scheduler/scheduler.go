package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job represents a scheduled job
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// NewJob adapts a function to Job.
func NewJob(name string, fn func(ctx context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

// Scheduler runs jobs on standard five-field cron schedules. Overlapping runs
// of the same job are skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. Each run gets at most timeout; zero means no bound.
func New(timeout time.Duration) *Scheduler {
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers a job. Schedule examples:
//   - "0 0 1 * *"   first day of the month at midnight
//   - "@monthly"
//   - "@every 30s"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(job); err != nil {
			slog.ErrorContext(s.ctx, "Job failed", "component", "scheduler", "job", job.Name(), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), schedule, err)
	}
	slog.Info("Job registered", "component", "scheduler", "job", job.Name(), "schedule", schedule)
	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	slog.Info("Running job immediately", "component", "scheduler", "job", job.Name())
	return s.run(job)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", "component", "scheduler", "jobs", len(s.cron.Entries()))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped", "component", "scheduler")
}

func (s *Scheduler) run(job Job) error {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	slog.DebugContext(ctx, "Running job", "component", "scheduler", "job", job.Name())
	err := job.Run(ctx)
	slog.DebugContext(ctx, "Job finished", "component", "scheduler", "job", job.Name(), "duration", time.Since(start))
	return err
}
