// Package billing runs the per-user billing cycle: monthly renewal,
// suspension for non-payment, phased warnings, recovery and auto-purge.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/metrics"
	"github.com/kpcloud/kpcloud/internal/notify"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error wraps failures that abort a tick.
var Error = errs.Class("billing")

const (
	day               = 24 * time.Hour
	firstWarningAfter = 7 * day
	finalWarningLead  = 48 * time.Hour
)

// Transition names a state change applied by a tick.
type Transition string

const (
	TransitionRenewal      Transition = "renewal"
	TransitionSuspension   Transition = "suspension"
	TransitionRecovery     Transition = "recovery"
	TransitionDay7Warning  Transition = "day7_warning"
	TransitionFinalWarning Transition = "final_warning"
	TransitionPurge        Transition = "purge"
)

// TickResult describes the outcome of one tick.
type TickResult struct {
	Account       account.Account
	Transitions   []Transition
	Charged       int64
	PurgedObjects int
	// PurgeErr is set when an auto-purge was due but the object store
	// failed; the account stays suspended and the next tick retries.
	PurgeErr error
}

// Has reports whether t was applied.
func (r TickResult) Has(t Transition) bool {
	for _, applied := range r.Transitions {
		if applied == t {
			return true
		}
	}
	return false
}

type accountStore interface {
	Get(ctx context.Context, id string) (account.Account, error)
	Save(ctx context.Context, acct account.Account) error
}

type notifier interface {
	Notify(ctx context.Context, notice notify.Notice) bool
}

type activityRecorder interface {
	Record(ctx context.Context, userID string, action activity.Action, path, detail string)
}

// Service evaluates the billing state machine.
type Service struct {
	accounts accountStore
	store    objectstore.Store
	locks    *account.Locker
	notifier notifier
	recorder activityRecorder
	cfg      config.BillingConfig
	log      *zap.Logger
	nowFunc  func() time.Time
}

// NewService constructs a billing service. locks must be shared with the
// account service so ticks and top-ups do not interleave.
func NewService(accounts accountStore, store objectstore.Store, locks *account.Locker, notifier notifier, recorder activityRecorder, cfg config.BillingConfig, log *zap.Logger) *Service {
	return &Service{
		accounts: accounts,
		store:    store,
		locks:    locks,
		notifier: notifier,
		recorder: recorder,
		cfg:      cfg,
		log:      log.Named("billing"),
		nowFunc:  time.Now,
	}
}

// MonthlyCost prices quotaGB under the configured rate.
func (s *Service) MonthlyCost(quotaGB int) int64 {
	return account.MonthlyCost(quotaGB, s.cfg.RatePerGB)
}

// Tick evaluates the billing state machine for userID once:
//  1. on the cycle anniversary, renew or suspend;
//  2. otherwise recover a restricted account whose balance covers the cost;
//  3. send suspension warnings that are due;
//  4. purge the account once the grace window has passed.
func (s *Service) Tick(ctx context.Context, userID string) (TickResult, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	log := logger.FromContext(ctx, s.log).With(zap.String("user_id", userID))

	acct, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return TickResult{}, Error.Wrap(err)
	}

	now := s.nowFunc().UTC()
	result := TickResult{}
	var notices []notify.Notice
	changed := s.repair(&acct, now, log)

	cost := s.MonthlyCost(acct.MonthlyQuotaGB)
	anniversary := acct.LastBillingDate == nil || now.Sub(*acct.LastBillingDate) >= s.cfg.CycleLength

	switch {
	case anniversary && acct.KPCBalance >= cost:
		transition := TransitionRenewal
		if acct.Restricted() {
			transition = TransitionRecovery
		}
		settle(&acct, cost, now)
		result.Charged = cost
		result.Transitions = append(result.Transitions, transition)
		changed = true

	case anniversary && !acct.Restricted():
		start := now
		deadline := now.Add(s.cfg.GracePeriod)
		acct.Status = account.StatusSuspended
		acct.SuspensionStartDate = &start
		acct.AutoDeleteDate = &deadline
		acct.Warnings = account.WarningFlags{}
		notices = append(notices, notify.AccountLocked(recipient(acct), deadline, now))
		result.Transitions = append(result.Transitions, TransitionSuspension)
		changed = true

	case !anniversary && acct.Restricted() && acct.KPCBalance >= cost:
		settle(&acct, cost, now)
		result.Charged = cost
		result.Transitions = append(result.Transitions, TransitionRecovery)
		changed = true
	}

	if acct.Status == account.StatusSuspended {
		suspended := now.Sub(*acct.SuspensionStartDate)
		if suspended >= firstWarningAfter && !acct.Warnings.Day7Sent {
			acct.Warnings.Day7Sent = true
			notices = append(notices, notify.SuspensionDay7(recipient(acct), *acct.AutoDeleteDate, now))
			result.Transitions = append(result.Transitions, TransitionDay7Warning)
			changed = true
		}
		if suspended >= s.cfg.GracePeriod-finalWarningLead && !acct.Warnings.FinalWarningSent {
			acct.Warnings.FinalWarningSent = true
			notices = append(notices, notify.SuspensionFinal(recipient(acct), *acct.AutoDeleteDate, now))
			result.Transitions = append(result.Transitions, TransitionFinalWarning)
			changed = true
		}
	}

	if changed {
		acct.UpdatedAt = now
		if err := s.accounts.Save(ctx, acct); err != nil {
			return TickResult{}, Error.Wrap(err)
		}
		s.announce(ctx, acct, result, notices)
	}
	result.Account = acct

	if acct.Status == account.StatusSuspended && now.After(*acct.AutoDeleteDate) {
		return s.purge(ctx, acct, result, now, log)
	}

	return result, nil
}

// purge deletes every object of the account and moves it to deleted. A store
// failure leaves the account suspended so the next tick retries.
func (s *Service) purge(ctx context.Context, acct account.Account, result TickResult, now time.Time, log *zap.Logger) (TickResult, error) {
	n, err := objectstore.DeletePrefix(ctx, s.store, objectstore.UserPrefix(acct.ID))
	metrics.ObjectsPurged(n)
	if err != nil {
		log.Error("auto-purge aborted", zap.Int("deleted", n), zap.Error(err))
		result.PurgedObjects = n
		result.PurgeErr = err
		return result, nil
	}

	acct.Status = account.StatusDeleted
	acct.MonthlyQuotaGB = account.FreeQuotaGB
	acct.KPCBalance = 0
	acct.SuspensionStartDate = nil
	acct.AutoDeleteDate = nil
	acct.Warnings = account.WarningFlags{}
	acct.UpdatedAt = now
	if err := s.accounts.Save(ctx, acct); err != nil {
		return TickResult{}, Error.Wrap(fmt.Errorf("save purged account: %w", err))
	}

	result.Account = acct
	result.PurgedObjects = n
	result.Transitions = append(result.Transitions, TransitionPurge)
	log.Warn("account purged", zap.Int("objects", n))

	metrics.BillingTransition(string(TransitionPurge))
	s.recorder.Record(ctx, acct.ID, activity.ActionAutoPurge, "", fmt.Sprintf("%d objects", n))
	s.notifier.Notify(ctx, notify.DataPurged(recipient(acct), now))
	return result, nil
}

// repair restores the suspension invariants on documents written by older
// clients: suspended always carries both dates, other states carry neither.
func (s *Service) repair(acct *account.Account, now time.Time, log *zap.Logger) bool {
	repaired := false
	if acct.Status == "" {
		acct.Status = account.StatusActive
		repaired = true
	}
	if acct.MonthlyQuotaGB < account.FreeQuotaGB {
		acct.MonthlyQuotaGB = account.FreeQuotaGB
		repaired = true
	}

	switch {
	case acct.Status == account.StatusSuspended && acct.SuspensionStartDate == nil:
		start := now
		deadline := now.Add(s.cfg.GracePeriod)
		acct.SuspensionStartDate = &start
		acct.AutoDeleteDate = &deadline
		repaired = true
	case acct.Status == account.StatusSuspended && acct.AutoDeleteDate == nil:
		deadline := acct.SuspensionStartDate.Add(s.cfg.GracePeriod)
		acct.AutoDeleteDate = &deadline
		repaired = true
	case acct.Status != account.StatusSuspended && (acct.SuspensionStartDate != nil || acct.AutoDeleteDate != nil):
		acct.SuspensionStartDate = nil
		acct.AutoDeleteDate = nil
		repaired = true
	}

	if repaired {
		log.Warn("repaired inconsistent account document", zap.String("status", string(acct.Status)))
	}
	return repaired
}

func (s *Service) announce(ctx context.Context, acct account.Account, result TickResult, notices []notify.Notice) {
	for _, t := range result.Transitions {
		metrics.BillingTransition(string(t))
		switch t {
		case TransitionRenewal:
			s.recorder.Record(ctx, acct.ID, activity.ActionBillingRenewal, "", fmt.Sprintf("-%d KPC", result.Charged))
		case TransitionRecovery:
			s.recorder.Record(ctx, acct.ID, activity.ActionBillingRecovery, "", fmt.Sprintf("-%d KPC", result.Charged))
		case TransitionSuspension:
			s.recorder.Record(ctx, acct.ID, activity.ActionBillingSuspension, "", "")
		}
	}
	for _, n := range notices {
		s.notifier.Notify(ctx, n)
	}
}

func settle(acct *account.Account, cost int64, now time.Time) {
	billed := now
	acct.KPCBalance -= cost
	acct.LastBillingDate = &billed
	acct.Status = account.StatusActive
	acct.SuspensionStartDate = nil
	acct.AutoDeleteDate = nil
	acct.Warnings = account.WarningFlags{}
}

func recipient(acct account.Account) notify.Recipient {
	return notify.Recipient{UserID: acct.ID, Email: acct.Email, DisplayName: acct.DisplayName}
}
