package billing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

type idLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// Sweeper periodically ticks every account so idle accounts still progress
// through suspension and purge.
type Sweeper struct {
	service  *Service
	accounts idLister
	interval time.Duration
	log      *zap.Logger
}

// NewSweeper constructs a sweeper.
func NewSweeper(service *Service, accounts idLister, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		accounts: accounts,
		interval: interval,
		log:      log.Named("billing-sweeper"),
	}
}

// Run sweeps immediately and then once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Accounts    int
	Transitions int
	Failed      int
}

// SweepOnce ticks every known account once. Failures of individual accounts
// are logged and counted; the sweep continues.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	ids, err := s.accounts.ListIDs(ctx)
	if err != nil {
		return SweepStats{}, Error.Wrap(err)
	}

	var stats SweepStats
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Accounts++
		result, err := s.service.Tick(ctx, id)
		if err != nil {
			stats.Failed++
			s.log.Warn("tick failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if result.PurgeErr != nil {
			stats.Failed++
		}
		stats.Transitions += len(result.Transitions)
	}

	s.log.Debug("sweep finished",
		zap.Int("accounts", stats.Accounts),
		zap.Int("transitions", stats.Transitions),
		zap.Int("failed", stats.Failed))
	return stats, nil
}
