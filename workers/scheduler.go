package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const jobTimeout = 2 * time.Minute

// Job is one periodic task
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals; a run that overlaps the previous one is skipped
type Scheduler struct {
	sched gocron.Scheduler
	log   *zap.Logger
}

func NewScheduler(log *zap.Logger, jobs ...Job) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{sched: sched, log: log}
	for _, job := range jobs {
		if _, err := sched.NewJob(
			gocron.DurationJob(job.Interval),
			gocron.NewTask(s.runner(job)),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		); err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		log.Info("job scheduled", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	}
	return s, nil
}

func (s *Scheduler) runner(job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			return
		}
		s.log.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	}
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown waits for running jobs to finish
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
