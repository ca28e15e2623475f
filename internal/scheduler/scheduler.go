// Package scheduler runs the periodic cache maintenance jobs: the repair
// sweep over every stored candle series and the optional warmup refresh of a
// configured watch list.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"quotebroker/internal/logger"
	"quotebroker/internal/quotes"
)

// Repairer rewrites legacy or dirty cache entries.
type Repairer interface {
	RepairAll(ctx context.Context) (quotes.SweepReport, error)
}

// Warmer refreshes one series.
type Warmer interface {
	Candles(ctx context.Context, req quotes.Request) (quotes.Result, error)
}

type Config struct {
	// Cron specs take a leading seconds field. Empty disables the job.
	RepairCron        string
	WarmupCron        string
	WarmupSymbols     []string
	WarmupIntervals   []string
	WarmupConcurrency int
}

// WarmReport counts warmup outcomes.
type WarmReport struct {
	Refreshed int
	Empty     int
	Failed    int
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	Cron     *cron.Cron
	cfg      Config
	repairer Repairer
	warmer   Warmer
	ctx      context.Context
	log      *logger.Entry
}

// New creates a Scheduler whose jobs run under ctx.
func New(ctx context.Context, cfg Config, repairer Repairer, warmer Warmer) *Scheduler {
	if len(cfg.WarmupIntervals) == 0 {
		cfg.WarmupIntervals = []string{quotes.DefaultInterval}
	}
	if cfg.WarmupConcurrency <= 0 {
		cfg.WarmupConcurrency = 1
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		cfg:      cfg,
		repairer: repairer,
		warmer:   warmer,
		ctx:      ctx,
		log:      logger.GetLogger().WithComponent("scheduler"),
	}
}

// Register adds the configured jobs.
func (s *Scheduler) Register() error {
	if s.cfg.RepairCron != "" && s.repairer != nil {
		if _, err := s.Cron.AddFunc(s.cfg.RepairCron, func() { _, _ = s.Repair(s.ctx) }); err != nil {
			return fmt.Errorf("register repair job: %w", err)
		}
	}
	if s.cfg.WarmupCron != "" && len(s.cfg.WarmupSymbols) > 0 && s.warmer != nil {
		if _, err := s.Cron.AddFunc(s.cfg.WarmupCron, func() { _ = s.Warm(s.ctx) }); err != nil {
			return fmt.Errorf("register warmup job: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.WithField("jobs", len(s.Cron.Entries())).Info("scheduler started")
}

// Stop stops the cron and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Repair runs the maintenance sweep once. The sweep logs its own summary.
func (s *Scheduler) Repair(ctx context.Context) (quotes.SweepReport, error) {
	s.log.Info("running repair sweep")
	report, err := s.repairer.RepairAll(ctx)
	if err != nil {
		s.log.WithError(err).Error("repair sweep failed")
		return report, err
	}
	return report, nil
}

// Warm force-refreshes every configured symbol and interval under the shared
// user key, at most WarmupConcurrency at a time.
func (s *Scheduler) Warm(ctx context.Context) WarmReport {
	var refreshed, empty, failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(s.cfg.WarmupConcurrency)
	for _, sym := range s.cfg.WarmupSymbols {
		for _, interval := range s.cfg.WarmupIntervals {
			g.Go(func() error {
				if ctx.Err() != nil {
					failed.Add(1)
					return nil
				}
				res, err := s.warmer.Candles(ctx, quotes.Request{Symbol: sym, Interval: interval, Force: true})
				switch {
				case err != nil:
					failed.Add(1)
					s.log.WithFields(logger.Fields{"symbol": sym, "interval": interval}).WithError(err).Warn("warmup failed")
				case res.NoData != "":
					empty.Add(1)
				default:
					refreshed.Add(1)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	report := WarmReport{Refreshed: int(refreshed.Load()), Empty: int(empty.Load()), Failed: int(failed.Load())}
	s.log.WithFields(logger.Fields{
		"refreshed": report.Refreshed,
		"empty":     report.Empty,
		"failed":    report.Failed,
	}).Info("warmup finished")
	return report
}
