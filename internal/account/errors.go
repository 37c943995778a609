package account

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound signals that no account document exists for the id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when creating an account that already exists.
	ErrAccountExists = errors.New("account already exists")
	// ErrUnknownPack is returned for top-up pack ids that are not offered.
	ErrUnknownPack = errors.New("unknown credit pack")
	// ErrInvalidQuota is returned for quotas outside the allowed range.
	ErrInvalidQuota = errors.New("invalid quota")
	// ErrInsufficientCredits is returned when the balance cannot cover the monthly cost.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrAccountRestricted is returned when a suspended or deleted account tries to lower its quota.
	ErrAccountRestricted = errors.New("account is restricted")
)

// BelowUsageError rejects a quota smaller than the bytes already stored.
type BelowUsageError struct {
	UsedBytes   int64
	RequestedGB int
}

func (e *BelowUsageError) Error() string {
	return fmt.Sprintf("quota of %d GB is below current usage of %.2f GB", e.RequestedGB, BytesToGB(e.UsedBytes))
}
