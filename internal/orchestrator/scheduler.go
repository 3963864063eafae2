package orchestrator

import (
	"context"

	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultIntradaySpec evaluates every 5 minutes during market hours,
	// weekdays.
	DefaultIntradaySpec = "*/5 9-15 * * 1-5"
	// DefaultEODSpec runs the end-of-day pass after the close.
	DefaultEODSpec = "40 15 * * 1-5"
)

// ScheduleConfig holds the cron expressions for the two passes.
type ScheduleConfig struct {
	IntradaySpec string `yaml:"intraday_spec" json:"intraday_spec"`
	EODSpec      string `yaml:"eod_spec" json:"eod_spec"`
}

func (c ScheduleConfig) withDefaults() ScheduleConfig {
	if c.IntradaySpec == "" {
		c.IntradaySpec = DefaultIntradaySpec
	}

	if c.EODSpec == "" {
		c.EODSpec = DefaultEODSpec
	}

	return c
}

// Scheduler runs the orchestrator on a cron cadence: the intraday pass
// during market hours and one end-of-day pass that also collects the
// daily bars.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *Orchestrator
	logger       *logger.Logger
	ctx          context.Context
}

// NewScheduler registers both passes and returns the scheduler, not yet
// started.
func NewScheduler(ctx context.Context, o *Orchestrator, cfg ScheduleConfig, log *logger.Logger) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	s := &Scheduler{
		cron:         cron.New(),
		orchestrator: o,
		logger:       log.Named("scheduler"),
		ctx:          ctx,
	}

	if _, err := s.cron.AddFunc(cfg.IntradaySpec, s.intradayPass); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"invalid intraday cron spec: %s", cfg.IntradaySpec)
	}

	if _, err := s.cron.AddFunc(cfg.EODSpec, s.eodPass); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"invalid eod cron spec: %s", cfg.EODSpec)
	}

	return s, nil
}

func (s *Scheduler) intradayPass() {
	if err := s.orchestrator.ProcessTick(s.ctx, false); err != nil {
		s.logger.Error("intraday pass failed", zap.Error(err))
	}
}

func (s *Scheduler) eodPass() {
	if err := s.orchestrator.ProcessTick(s.ctx, true); err != nil {
		s.logger.Error("eod pass failed", zap.Error(err))
	}

	if err := s.orchestrator.CollectBars(s.ctx); err != nil {
		s.logger.Error("bar collection failed", zap.Error(err))
	}
}

// Start begins scheduling. Returns immediately.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	s.cron.Start()
}

// Stop stops scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
