package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/usage"
	"go.uber.org/zap"
)

type activityRecorder interface {
	Record(ctx context.Context, userID string, action activity.Action, path, detail string)
}

type usageSource interface {
	ComputeUsage(ctx context.Context, userID string) (usage.Usage, error)
}

// Service manages account documents outside of the billing cycle.
type Service struct {
	repo     Repository
	locks    *Locker
	usage    usageSource
	recorder activityRecorder
	cfg      config.BillingConfig
	log      *zap.Logger
	nowFunc  func() time.Time
}

// NewService constructs an account service. locks must be shared with every
// other component that rewrites account documents.
func NewService(repo Repository, locks *Locker, scanner usageSource, recorder activityRecorder, cfg config.BillingConfig, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		locks:    locks,
		usage:    scanner,
		recorder: recorder,
		cfg:      cfg,
		log:      log.Named("account"),
		nowFunc:  time.Now,
	}
}

// Get loads an existing account.
func (s *Service) Get(ctx context.Context, userID string) (Account, error) {
	return s.repo.Get(ctx, userID)
}

// GetOrCreate returns the caller's account, creating a free-tier account on first access.
func (s *Service) GetOrCreate(ctx context.Context, id Identity) (Account, error) {
	acct, err := s.repo.Get(ctx, id.ID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}

	created, err := s.repo.Create(ctx, New(id, s.nowFunc().UTC()))
	switch {
	case err == nil:
		logger.FromContext(ctx, s.log).Info("account created", zap.String("user_id", id.ID))
		return created, nil
	case errors.Is(err, ErrAccountExists):
		// lost a creation race with a concurrent request
		return s.repo.Get(ctx, id.ID)
	default:
		return Account{}, err
	}
}

// TopUp credits the balance with a pack. Payment is not processed here.
func (s *Service) TopUp(ctx context.Context, userID, packID string) (Account, error) {
	pack, ok := LookupPack(packID)
	if !ok {
		return Account{}, ErrUnknownPack
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	acct, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	acct.KPCBalance += pack.Total()
	acct.UpdatedAt = s.nowFunc().UTC()
	if err := s.repo.Save(ctx, acct); err != nil {
		return Account{}, err
	}

	s.recorder.Record(ctx, userID, activity.ActionCreditTopUp, "", fmt.Sprintf("%s +%d", pack.ID, pack.Total()))
	return acct, nil
}

// SetQuota changes the monthly quota. The balance must cover one cycle at the
// new size; the charge itself is taken by the next billing tick. A quota
// cannot drop below what is already stored, and restricted accounts cannot
// lower their quota at all: they recover by paying.
func (s *Service) SetQuota(ctx context.Context, userID string, quotaGB int) (Account, error) {
	if quotaGB < FreeQuotaGB || quotaGB > s.cfg.MaxQuotaGB {
		return Account{}, ErrInvalidQuota
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	acct, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	if acct.KPCBalance < MonthlyCost(quotaGB, s.cfg.RatePerGB) {
		return Account{}, ErrInsufficientCredits
	}

	previous := acct.MonthlyQuotaGB
	if quotaGB < previous {
		if acct.Restricted() {
			return Account{}, ErrAccountRestricted
		}
		u, err := s.usage.ComputeUsage(ctx, userID)
		if err != nil {
			return Account{}, fmt.Errorf("compute usage: %w", err)
		}
		if requested := int64(quotaGB) * bytesPerGB; u.UsedBytes > requested {
			return Account{}, &BelowUsageError{UsedBytes: u.UsedBytes, RequestedGB: quotaGB}
		}
	}

	acct.MonthlyQuotaGB = quotaGB
	acct.UpdatedAt = s.nowFunc().UTC()
	if err := s.repo.Save(ctx, acct); err != nil {
		return Account{}, err
	}

	s.recorder.Record(ctx, userID, activity.ActionQuotaChanged, "", fmt.Sprintf("%dGB -> %dGB", previous, quotaGB))
	return acct, nil
}

// MonthlyCost prices acct's current quota.
func (s *Service) MonthlyCost(acct Account) int64 {
	return MonthlyCost(acct.MonthlyQuotaGB, s.cfg.RatePerGB)
}
