package account

import "time"

// Status is the billing state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

const (
	// FreeQuotaGB is the storage every account gets without charge.
	FreeQuotaGB = 1
	bytesPerGB  = int64(1) << 30
)

// WarningFlags record which suspension notices were already sent.
type WarningFlags struct {
	Day7Sent         bool `json:"day7Sent" bson:"day7Sent"`
	FinalWarningSent bool `json:"finalWarningSent" bson:"finalWarningSent"`
}

// Account is the per-user billing document.
type Account struct {
	ID                  string       `json:"id" bson:"_id"`
	Email               string       `json:"email,omitempty" bson:"email,omitempty"`
	DisplayName         string       `json:"displayName,omitempty" bson:"displayName,omitempty"`
	KPCBalance          int64        `json:"kpcBalance" bson:"kpcBalance"`
	MonthlyQuotaGB      int          `json:"monthlyQuotaGB" bson:"monthlyQuotaGB"`
	Status              Status       `json:"status" bson:"status"`
	LastBillingDate     *time.Time   `json:"lastBillingDate,omitempty" bson:"lastBillingDate,omitempty"`
	SuspensionStartDate *time.Time   `json:"suspensionStartDate,omitempty" bson:"suspensionStartDate,omitempty"`
	AutoDeleteDate      *time.Time   `json:"autoDeleteDate,omitempty" bson:"autoDeleteDate,omitempty"`
	Warnings            WarningFlags `json:"warningFlags" bson:"warningFlags"`
	CreatedAt           time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// Identity is what the identity provider tells us about a new user.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
}

// New returns a fresh free-tier account.
func New(id Identity, now time.Time) Account {
	return Account{
		ID:             id.ID,
		Email:          id.Email,
		DisplayName:    id.DisplayName,
		MonthlyQuotaGB: FreeQuotaGB,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// QuotaBytes is the storage allowance in bytes.
func (a Account) QuotaBytes() int64 {
	return int64(a.MonthlyQuotaGB) * bytesPerGB
}

// Restricted reports whether destructive and write operations are blocked.
func (a Account) Restricted() bool {
	return a.Status == StatusSuspended || a.Status == StatusDeleted
}

// Tier is the display name of the account's plan.
func (a Account) Tier() string {
	if a.MonthlyQuotaGB <= FreeQuotaGB {
		return "free"
	}
	return "premium"
}

// Clone returns a copy that shares no pointers with a.
func (a Account) Clone() Account {
	a.LastBillingDate = cloneTime(a.LastBillingDate)
	a.SuspensionStartDate = cloneTime(a.SuspensionStartDate)
	a.AutoDeleteDate = cloneTime(a.AutoDeleteDate)
	return a
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// MonthlyCost is the credit charge per billing cycle for quotaGB at rate
// credits per GB above the free tier.
func MonthlyCost(quotaGB int, rate int64) int64 {
	billable := int64(quotaGB - FreeQuotaGB)
	if billable < 0 {
		billable = 0
	}
	return billable * rate
}

// BytesToGB converts bytes to gigabytes rounded to two decimals.
func BytesToGB(n int64) float64 {
	return float64(int64(float64(n)/float64(bytesPerGB)*100+0.5)) / 100
}
