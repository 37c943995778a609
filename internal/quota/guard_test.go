package quota

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gib = int64(1) << 30

type fakeAccounts struct {
	acct account.Account
	err  error
}

func (f *fakeAccounts) Get(context.Context, string) (account.Account, error) {
	return f.acct, f.err
}

type fakeUsage struct {
	used int64
	err  error
}

func (f *fakeUsage) ComputeUsage(context.Context, string) (usage.Usage, error) {
	return usage.Usage{UsedBytes: f.used}, f.err
}

func TestCheckQuotaBoundary(t *testing.T) {
	accounts := &fakeAccounts{acct: account.Account{ID: "u1", MonthlyQuotaGB: 1, Status: account.StatusActive}}
	used := &fakeUsage{used: gib - 100}
	guard := NewGuard(accounts, used)
	ctx := context.Background()

	assert.NoError(t, guard.CheckQuota(ctx, "u1", 100))
	assert.NoError(t, guard.CheckQuota(ctx, "u1", 0))

	err := guard.CheckQuota(ctx, "u1", 101)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 1, exceeded.TotalGB)
	assert.Equal(t, gib-100, exceeded.UsedBytes)
}

func TestCheckQuotaReportsUsageForDisplay(t *testing.T) {
	accounts := &fakeAccounts{acct: account.Account{ID: "u1", MonthlyQuotaGB: 1}}
	guard := NewGuard(accounts, &fakeUsage{used: 300 * (1 << 20)})

	err := guard.CheckQuota(context.Background(), "u1", 800*(1<<20))
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 0.29, exceeded.UsedGB)
	assert.Equal(t, 1, exceeded.TotalGB)
}

func TestFreeTierUpgradeScenario(t *testing.T) {
	accounts := &fakeAccounts{acct: account.Account{ID: "u1", MonthlyQuotaGB: 1}}
	guard := NewGuard(accounts, &fakeUsage{})
	upload := gib + gib/2

	err := guard.CheckQuota(context.Background(), "u1", upload)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)

	accounts.acct.MonthlyQuotaGB = 2
	assert.NoError(t, guard.CheckQuota(context.Background(), "u1", upload))
}

func TestCheckQuotaFailsClosed(t *testing.T) {
	accounts := &fakeAccounts{acct: account.Account{ID: "u1", MonthlyQuotaGB: 100}}
	guard := NewGuard(accounts, &fakeUsage{err: errors.New("store unreachable")})

	err := guard.CheckQuota(context.Background(), "u1", 1)
	assert.ErrorIs(t, err, ErrUsageUnavailable)

	guard = NewGuard(&fakeAccounts{err: errors.New("db down")}, &fakeUsage{})
	assert.ErrorIs(t, guard.CheckQuota(context.Background(), "u1", 1), ErrUsageUnavailable)
}

func TestCheckQuotaRejectsNegativeSize(t *testing.T) {
	guard := NewGuard(&fakeAccounts{}, &fakeUsage{})
	assert.ErrorIs(t, guard.CheckQuota(context.Background(), "u1", -1), ErrInvalidSize)
}

func TestCheckSuspensionMatrix(t *testing.T) {
	deadline := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		status  account.Status
		class   Class
		allowed bool
	}{
		{account.StatusActive, ReadOnly, true},
		{account.StatusActive, Destructive, true},
		{account.StatusActive, Write, true},
		{account.StatusSuspended, ReadOnly, true},
		{account.StatusSuspended, Destructive, false},
		{account.StatusSuspended, Write, false},
		{account.StatusDeleted, ReadOnly, true},
		{account.StatusDeleted, Destructive, false},
		{account.StatusDeleted, Write, false},
	}
	for _, tc := range cases {
		acct := account.Account{ID: "u1", Status: tc.status, AutoDeleteDate: &deadline}
		err := CheckSuspension(acct, tc.class)
		if tc.allowed {
			assert.NoError(t, err, "%s/%s", tc.status, tc.class)
			continue
		}
		var suspended *SuspendedError
		require.ErrorAs(t, err, &suspended, "%s/%s", tc.status, tc.class)
		assert.Equal(t, tc.status, suspended.Status)
		assert.Equal(t, &deadline, suspended.AutoDeleteDate)
	}
}

func TestRequireClassResponds423WithDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deadline := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		account.SetInContext(c, account.Account{ID: "u1", Status: account.StatusSuspended, AutoDeleteDate: &deadline})
	})
	r.GET("/list", RequireClass(ReadOnly), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/download", RequireClass(Destructive), func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/list", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, http.StatusLocked, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"suspended"`)
	assert.Contains(t, rr.Body.String(), "2025-06-16T00:00:00Z")
}

func TestErrorResponseForQuota(t *testing.T) {
	status, body := ErrorResponse(&ExceededError{UsedGB: 0.3, TotalGB: 1})
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, 0.3, body["usedGB"])
	assert.Equal(t, 1, body["totalGB"])
}
