package job

import (
	"context"
	"fmt"
	"time"

	"crypto-price-service/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is a single pass of background work.
type Runner interface {
	RunOnce(ctx context.Context) WarmResult
}

// Scheduler runs the cache warmer on a cron schedule. A run still in
// progress when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	spec    string
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewScheduler(runner Runner, spec string, m *metrics.Metrics, logger *zap.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:  runner,
		spec:    spec,
		metrics: m,
		logger:  logger,
	}
	return s, nil
}

// Start runs the job once, registers the schedule and blocks until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	job := cron.FuncJob(func() { s.run(ctx) })
	if _, err := s.cron.AddJob(s.spec, job); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	s.logger.Info("cache warm scheduler starting", zap.String("schedule", s.spec))
	s.run(ctx)
	s.cron.Start()

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("cache warm scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	res := s.runner.RunOnce(ctx)

	if s.metrics != nil {
		s.metrics.SchedulerDuration.Observe(time.Since(start).Seconds())
		if res.ChunkErrors == 0 && res.Skipped == 0 {
			s.metrics.SchedulerSuccess.Inc()
		}
	}
}
