package billing

import (
	"context"
	"math"
	"time"

	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/usage"
)

type usageSource interface {
	ComputeUsage(ctx context.Context, userID string) (usage.Usage, error)
}

// StorageStatus is the combined billing and usage view of an account.
type StorageStatus struct {
	Tier                string         `json:"tier"`
	Status              account.Status `json:"status"`
	UsedBytes           int64          `json:"usedBytes"`
	UsedGB              float64        `json:"usedGB"`
	TrashBytes          int64          `json:"trashBytes"`
	ObjectCount         int            `json:"objectCount"`
	QuotaGB             int            `json:"quotaGB"`
	QuotaBytes          int64          `json:"quotaBytes"`
	Percentage          float64        `json:"percentage"`
	KPCBalance          int64          `json:"kpcBalance"`
	MonthlyCost         int64          `json:"monthlyCost"`
	LastBillingDate     *time.Time     `json:"lastBillingDate,omitempty"`
	NextBillingDate     *time.Time     `json:"nextBillingDate,omitempty"`
	SuspensionStartDate *time.Time     `json:"suspensionStartDate,omitempty"`
	AutoDeleteDate      *time.Time     `json:"autoDeleteDate,omitempty"`
	Transitions         []Transition   `json:"transitions,omitempty"`
}

// Status reports the account's usage after ticking it. Usage is computed
// first: when the store cannot be listed the call fails without touching the
// account.
func (s *Service) Status(ctx context.Context, userID string, scanner usageSource) (StorageStatus, error) {
	u, err := scanner.ComputeUsage(ctx, userID)
	if err != nil {
		return StorageStatus{}, Error.Wrap(err)
	}
	result, err := s.Tick(ctx, userID)
	if err != nil {
		return StorageStatus{}, err
	}
	if result.Has(TransitionPurge) {
		u = usage.Usage{}
	}
	return s.buildStatus(result, u), nil
}

func (s *Service) buildStatus(result TickResult, u usage.Usage) StorageStatus {
	acct := result.Account
	status := StorageStatus{
		Tier:                acct.Tier(),
		Status:              acct.Status,
		UsedBytes:           u.UsedBytes,
		UsedGB:              account.BytesToGB(u.UsedBytes),
		TrashBytes:          u.TrashBytes,
		ObjectCount:         u.ObjectCount,
		QuotaGB:             acct.MonthlyQuotaGB,
		QuotaBytes:          acct.QuotaBytes(),
		KPCBalance:          acct.KPCBalance,
		MonthlyCost:         s.MonthlyCost(acct.MonthlyQuotaGB),
		LastBillingDate:     acct.LastBillingDate,
		SuspensionStartDate: acct.SuspensionStartDate,
		AutoDeleteDate:      acct.AutoDeleteDate,
		Transitions:         result.Transitions,
	}
	if q := status.QuotaBytes; q > 0 {
		status.Percentage = math.Round(float64(u.UsedBytes)/float64(q)*10000) / 100
	}
	if acct.LastBillingDate != nil {
		next := acct.LastBillingDate.Add(s.cfg.CycleLength)
		status.NextBillingDate = &next
	}
	return status
}
