// Package quota decides whether an operation may proceed given the caller's
// storage allowance and billing status.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/metrics"
	"github.com/kpcloud/kpcloud/internal/usage"
)

// Class groups operations by what a restricted account may still do.
type Class int

const (
	// ReadOnly operations are always allowed.
	ReadOnly Class = iota
	// Destructive operations move or expose stored bytes: download, share,
	// preview, delete, restore, empty trash.
	Destructive
	// Write operations add bytes: upload and upload grants.
	Write
)

func (c Class) String() string {
	switch c {
	case ReadOnly:
		return "read-only"
	case Destructive:
		return "destructive"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

var (
	// ErrUsageUnavailable is returned when usage cannot be computed. Quota
	// checks fail closed on it.
	ErrUsageUnavailable = errors.New("storage usage unavailable")
	// ErrInvalidSize is returned for negative upload sizes.
	ErrInvalidSize = errors.New("invalid upload size")
)

// ExceededError reports a write that does not fit in the remaining quota.
type ExceededError struct {
	UsedBytes     int64
	QuotaBytes    int64
	IncomingBytes int64
	UsedGB        float64
	TotalGB       int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %.2f of %d GB used, %d bytes requested", e.UsedGB, e.TotalGB, e.IncomingBytes)
}

// SuspendedError reports an operation blocked by the account status.
type SuspendedError struct {
	Status         account.Status
	Class          Class
	AutoDeleteDate *time.Time
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("account %s: %s operations are disabled", e.Status, e.Class)
}

type accountGetter interface {
	Get(ctx context.Context, userID string) (account.Account, error)
}

type usageSource interface {
	ComputeUsage(ctx context.Context, userID string) (usage.Usage, error)
}

// Guard enforces quota and suspension rules.
type Guard struct {
	accounts accountGetter
	usage    usageSource
}

// NewGuard constructs a guard.
func NewGuard(accounts accountGetter, usage usageSource) *Guard {
	return &Guard{accounts: accounts, usage: usage}
}

// CheckQuota allows a write of incomingBytes iff it fits in the remaining
// allowance. It fails closed when usage or the account cannot be read.
func (g *Guard) CheckQuota(ctx context.Context, userID string, incomingBytes int64) error {
	if incomingBytes < 0 {
		return ErrInvalidSize
	}

	acct, err := g.accounts.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsageUnavailable, err)
	}
	u, err := g.usage.ComputeUsage(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsageUnavailable, err)
	}

	return Evaluate(acct, u.UsedBytes, incomingBytes)
}

// Evaluate applies the quota rule to already loaded values.
func Evaluate(acct account.Account, usedBytes, incomingBytes int64) error {
	quotaBytes := acct.QuotaBytes()
	if incomingBytes <= quotaBytes-usedBytes {
		return nil
	}
	metrics.QuotaDenied("quota_exceeded")
	return &ExceededError{
		UsedBytes:     usedBytes,
		QuotaBytes:    quotaBytes,
		IncomingBytes: incomingBytes,
		UsedGB:        account.BytesToGB(usedBytes),
		TotalGB:       acct.MonthlyQuotaGB,
	}
}

// CheckSuspension denies destructive and write operations for suspended or
// deleted accounts.
func CheckSuspension(acct account.Account, class Class) error {
	if class == ReadOnly || !acct.Restricted() {
		return nil
	}
	metrics.QuotaDenied("suspended")
	return &SuspendedError{
		Status:         acct.Status,
		Class:          class,
		AutoDeleteDate: acct.AutoDeleteDate,
	}
}
