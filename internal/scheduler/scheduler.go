package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/BatmanBruc/hub-sales-bot/internal/entitlement"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
)

const (
	DefaultInterval    = time.Hour
	DefaultGracePeriod = 3 * 24 * time.Hour
	sweepTimeout       = 5 * time.Minute
)

type Sweeper interface {
	SweepExpired(ctx context.Context, cutoff time.Time) (entitlement.SweepReport, error)
}

type Config struct {
	Interval    time.Duration
	GracePeriod time.Duration
	// RunOnStart sweeps immediately instead of waiting one interval.
	RunOnStart bool
}

// Scheduler runs the expiry sweep periodically. Subscriptions are swept
// once their period ended more than GracePeriod ago.
type Scheduler struct {
	sweeper    Sweeper
	interval   time.Duration
	grace      time.Duration
	runOnStart bool
	logger     *logging.Logger
	now        func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewScheduler(sweeper Sweeper, config Config, logger *logging.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.GracePeriod < 0 {
		config.GracePeriod = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sweeper:    sweeper,
		interval:   config.Interval,
		grace:      config.GracePeriod,
		runOnStart: config.RunOnStart,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.interval, "grace_period", s.grace)
	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if s.runOnStart {
		s.tick()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil && s.ctx.Err() == nil {
		s.logger.Error("expiry sweep failed", "error", err)
	}
}

// Cutoff is the period-end bound for the next sweep.
func (s *Scheduler) Cutoff() time.Time {
	return s.now().Add(-s.grace)
}

func (s *Scheduler) RunOnce(ctx context.Context) (entitlement.SweepReport, error) {
	cutoff := s.Cutoff()
	report, err := s.sweeper.SweepExpired(ctx, cutoff)
	if err != nil {
		return report, err
	}
	s.logger.Info("expiry sweep finished",
		"cutoff", cutoff,
		"deactivated", report.Deactivated,
		"failed", report.Failed,
	)
	return report, nil
}
