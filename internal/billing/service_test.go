package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kpcloud/kpcloud/internal/account"
	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/kpcloud/kpcloud/internal/notify"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/kpcloud/kpcloud/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testBilling = config.BillingConfig{
	RatePerGB:   25,
	CycleLength: 30 * day,
	GracePeriod: 15 * day,
	MaxQuotaGB:  100,
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (f *fakeNotifier) Notify(_ context.Context, notice notify.Notice) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, notice.Kind)
	return true
}

func (f *fakeNotifier) sent() []notify.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Kind(nil), f.kinds...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	actions []activity.Action
}

func (f *fakeRecorder) Record(_ context.Context, _ string, action activity.Action, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

type failingSender struct{}

func (failingSender) Send(context.Context, notify.Notice) error { return errors.New("mail relay down") }

type harness struct {
	service  *Service
	repo     *account.MemoryRepository
	store    *objectstore.MemoryStore
	notifier *fakeNotifier
	recorder *fakeRecorder
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     account.NewMemoryRepository(),
		store:    objectstore.NewMemoryStore(2),
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.service = NewService(h.repo, h.store, account.NewLocker(), h.notifier, h.recorder, testBilling, zaptest.NewLogger(t))
	h.service.nowFunc = func() time.Time { return h.now }
	return h
}

func (h *harness) seed(t *testing.T, id string, quotaGB int, balance int64, lastBilled time.Time) {
	t.Helper()
	acct := account.New(account.Identity{ID: id, Email: id + "@example.com"}, lastBilled)
	acct.MonthlyQuotaGB = quotaGB
	acct.KPCBalance = balance
	acct.LastBillingDate = &lastBilled
	_, err := h.repo.Create(context.Background(), acct)
	require.NoError(t, err)
}

func (h *harness) tick(t *testing.T, id string) TickResult {
	t.Helper()
	result, err := h.service.Tick(context.Background(), id)
	require.NoError(t, err)
	return result
}

func (h *harness) put(t *testing.T, key, body string) {
	t.Helper()
	_, err := h.store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), "text/plain")
	require.NoError(t, err)
}

func TestTickRenewsOnAnniversary(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", 3, 100, h.now.Add(-31*day))

	result := h.tick(t, "u1")

	assert.True(t, result.Has(TransitionRenewal))
	assert.Equal(t, int64(50), result.Charged)
	assert.Equal(t, int64(50), result.Account.KPCBalance)
	assert.Equal(t, account.StatusActive, result.Account.Status)
	require.NotNil(t, result.Account.LastBillingDate)
	assert.Equal(t, h.now, *result.Account.LastBillingDate)
	assert.Equal(t, []activity.Action{activity.ActionBillingRenewal}, h.recorder.actions)

	stored, err := h.repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), stored.KPCBalance)
}

func TestTickWithinCycleChangesNothing(t *testing.T) {
	h := newHarness(t)
	billed := h.now.Add(-5 * day)
	h.seed(t, "u1", 3, 100, billed)

	result := h.tick(t, "u1")

	assert.Empty(t, result.Transitions)
	assert.Equal(t, int64(100), result.Account.KPCBalance)
	assert.Equal(t, billed, *result.Account.LastBillingDate)
	assert.Empty(t, h.notifier.sent())
}

func TestTickStartsCycleForNewAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.repo.Create(context.Background(), account.New(account.Identity{ID: "u1"}, h.now))
	require.NoError(t, err)

	result := h.tick(t, "u1")

	assert.True(t, result.Has(TransitionRenewal))
	assert.Zero(t, result.Charged)
	require.NotNil(t, result.Account.LastBillingDate)
	assert.Equal(t, h.now, *result.Account.LastBillingDate)
}

func TestTickSuspendsWhenBalanceIsShort(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", 3, 10, h.now.Add(-31*day))

	result := h.tick(t, "u1")

	acct := result.Account
	assert.True(t, result.Has(TransitionSuspension))
	assert.Equal(t, account.StatusSuspended, acct.Status)
	assert.Equal(t, int64(10), acct.KPCBalance)
	require.NotNil(t, acct.SuspensionStartDate)
	require.NotNil(t, acct.AutoDeleteDate)
	assert.Equal(t, h.now, *acct.SuspensionStartDate)
	assert.Equal(t, h.now.Add(15*day), *acct.AutoDeleteDate)
	assert.Equal(t, []notify.Kind{notify.KindAccountLocked}, h.notifier.sent())

	// a second tick on the same day must not restart the grace window
	h.now = h.now.Add(time.Hour)
	again := h.tick(t, "u1")
	assert.Empty(t, again.Transitions)
	assert.Equal(t, *acct.AutoDeleteDate, *again.Account.AutoDeleteDate)
}

func TestTickSendsEachWarningOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", 3, 0, h.now.Add(-31*day))
	suspendedAt := h.now
	h.tick(t, "u1")

	h.now = suspendedAt.Add(6 * day)
	assert.Empty(t, h.tick(t, "u1").Transitions)

	h.now = suspendedAt.Add(7 * day)
	result := h.tick(t, "u1")
	assert.Equal(t, []Transition{TransitionDay7Warning}, result.Transitions)
	assert.True(t, result.Account.Warnings.Day7Sent)

	h.now = suspendedAt.Add(8 * day)
	assert.Empty(t, h.tick(t, "u1").Transitions)

	h.now = suspendedAt.Add(13 * day)
	result = h.tick(t, "u1")
	assert.Equal(t, []Transition{TransitionFinalWarning}, result.Transitions)

	h.now = suspendedAt.Add(14 * day)
	assert.Empty(t, h.tick(t, "u1").Transitions)

	assert.Equal(t, []notify.Kind{
		notify.KindAccountLocked,
		notify.KindSuspensionDay7,
		notify.KindSuspensionFinal,
	}, h.notifier.sent())
}

func TestTickRecoversAfterTopUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "u1", 3, 10, h.now.Add(-31*day))
	suspendedAt := h.now
	h.tick(t, "u1")

	h.now = suspendedAt.Add(7 * day)
	h.tick(t, "u1")

	acct, err := h.repo.Get(ctx, "u1")
	require.NoError(t, err)
	acct.KPCBalance += 90
	require.NoError(t, h.repo.Save(ctx, acct))

	h.now = suspendedAt.Add(10 * day)
	result := h.tick(t, "u1")

	assert.True(t, result.Has(TransitionRecovery))
	assert.Equal(t, account.StatusActive, result.Account.Status)
	assert.Equal(t, int64(50), result.Account.KPCBalance)
	assert.Nil(t, result.Account.SuspensionStartDate)
	assert.Nil(t, result.Account.AutoDeleteDate)
	assert.Equal(t, account.WarningFlags{}, result.Account.Warnings)

	h.now = suspendedAt.Add(13 * day)
	assert.Empty(t, h.tick(t, "u1").Transitions)
	assert.NotContains(t, h.notifier.sent(), notify.KindSuspensionFinal)
	assert.Contains(t, h.recorder.actions, activity.ActionBillingRecovery)
}

func TestTickRecoversWithinCycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := h.now.Add(-2 * day)
	deadline := start.Add(15 * day)
	billed := h.now.Add(-10 * day)

	acct := account.New(account.Identity{ID: "u1"}, billed)
	acct.MonthlyQuotaGB = 2
	acct.KPCBalance = 25
	acct.Status = account.StatusSuspended
	acct.LastBillingDate = &billed
	acct.SuspensionStartDate = &start
	acct.AutoDeleteDate = &deadline
	_, err := h.repo.Create(ctx, acct)
	require.NoError(t, err)

	result := h.tick(t, "u1")

	assert.Equal(t, []Transition{TransitionRecovery}, result.Transitions)
	assert.Zero(t, result.Account.KPCBalance)
	assert.Equal(t, h.now, *result.Account.LastBillingDate)
}

func TestTickPurgesAfterGracePeriod(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", 3, 0, h.now.Add(-31*day))
	h.put(t, "u1/a.txt", "alpha")
	h.put(t, "u1/docs/b.txt", "beta")
	h.put(t, "u1/.trash/c.txt", "gamma")
	h.put(t, "u2/keep.txt", "other user")

	suspendedAt := h.now
	billed := *h.tick(t, "u1").Account.LastBillingDate

	h.now = suspendedAt.Add(15*day + time.Second)
	result := h.tick(t, "u1")

	acct := result.Account
	assert.True(t, result.Has(TransitionPurge))
	assert.NoError(t, result.PurgeErr)
	assert.Equal(t, 3, result.PurgedObjects)
	assert.Equal(t, account.StatusDeleted, acct.Status)
	assert.Equal(t, account.FreeQuotaGB, acct.MonthlyQuotaGB)
	assert.Zero(t, acct.KPCBalance)
	assert.Nil(t, acct.SuspensionStartDate)
	assert.Nil(t, acct.AutoDeleteDate)
	assert.Equal(t, account.WarningFlags{}, acct.Warnings)
	assert.Equal(t, billed, *acct.LastBillingDate)
	assert.Equal(t, []string{"u2/keep.txt"}, h.store.Keys())
	assert.Contains(t, h.notifier.sent(), notify.KindDataPurged)
	assert.Contains(t, h.recorder.actions, activity.ActionAutoPurge)

	// the free tier costs nothing, so the next tick reactivates the account
	h.now = h.now.Add(time.Minute)
	next := h.tick(t, "u1")
	assert.True(t, next.Has(TransitionRecovery))
	assert.Equal(t, account.StatusActive, next.Account.Status)
}

func TestTickKeepsAccountSuspendedWhenPurgeFails(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", 3, 0, h.now.Add(-31*day))
	h.put(t, "u1/a.txt", "alpha")
	suspendedAt := h.now
	h.tick(t, "u1")

	h.store.Fail = func(op, _ string) error {
		if op == "delete" {
			return errors.New("store unavailable")
		}
		return nil
	}
	h.now = suspendedAt.Add(16 * day)
	result := h.tick(t, "u1")

	assert.Error(t, result.PurgeErr)
	assert.False(t, result.Has(TransitionPurge))
	assert.Equal(t, account.StatusSuspended, result.Account.Status)
	assert.Equal(t, 1, h.store.Len())
	assert.NotContains(t, h.notifier.sent(), notify.KindDataPurged)

	h.store.Fail = nil
	h.now = h.now.Add(time.Hour)
	result = h.tick(t, "u1")
	assert.True(t, result.Has(TransitionPurge))
	assert.Zero(t, h.store.Len())
}

func TestTickIgnoresNotificationFailures(t *testing.T) {
	h := newHarness(t)
	dispatcher := notify.NewDispatcher(failingSender{}, zaptest.NewLogger(t))
	h.service = NewService(h.repo, h.store, account.NewLocker(), dispatcher, h.recorder, testBilling, zaptest.NewLogger(t))
	h.service.nowFunc = func() time.Time { return h.now }
	h.seed(t, "u1", 3, 10, h.now.Add(-31*day))

	result := h.tick(t, "u1")
	assert.Equal(t, account.StatusSuspended, result.Account.Status)

	stored, err := h.repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, account.StatusSuspended, stored.Status)
}

func TestTickRepairsSuspendedAccountWithoutDates(t *testing.T) {
	h := newHarness(t)
	billed := h.now.Add(-day)
	acct := account.New(account.Identity{ID: "u1"}, billed)
	acct.MonthlyQuotaGB = 5
	acct.Status = account.StatusSuspended
	acct.LastBillingDate = &billed
	_, err := h.repo.Create(context.Background(), acct)
	require.NoError(t, err)

	result := h.tick(t, "u1")

	require.NotNil(t, result.Account.SuspensionStartDate)
	assert.Equal(t, h.now.Add(15*day), *result.Account.AutoDeleteDate)
}

func TestTickUnknownAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Tick(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
	assert.True(t, Error.Has(err))
}

func TestStorageStatusEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	h.seed(t, "u1", 2, 100, h.now.Add(-31*day))
	h.put(t, "u1/a.txt", "0123456789")
	h.put(t, "u1/.trash/b.txt", "01234")

	r := gin.New()
	group := r.Group("/v1", func(c *gin.Context) {
		auth.SetUser(c, auth.ContextUser{ID: "u1"})
	})
	RegisterRoutes(group, h.service, usage.NewAccountant(h.store, time.Second))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/storage", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `"usedBytes":15`)
	assert.Contains(t, body, `"trashBytes":5`)
	assert.Contains(t, body, `"tier":"premium"`)
	assert.Contains(t, body, `"kpcBalance":75`)
	assert.Contains(t, body, `"monthlyCost":25`)
	assert.Contains(t, body, `"nextBillingDate"`)
}

func TestStorageStatusEndpointFailsWhenUsageUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	lastBilled := h.now.Add(-31 * day)
	h.seed(t, "u1", 3, 100, lastBilled)
	h.store.Fail = func(op, _ string) error {
		if op == "list" {
			return errors.New("timeout")
		}
		return nil
	}

	r := gin.New()
	group := r.Group("/v1", func(c *gin.Context) {
		auth.SetUser(c, auth.ContextUser{ID: "u1"})
	})
	RegisterRoutes(group, h.service, usage.NewAccountant(h.store, time.Second))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/storage", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	acct, err := h.repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acct.KPCBalance)
	assert.Equal(t, account.StatusActive, acct.Status)
	require.NotNil(t, acct.LastBillingDate)
	assert.True(t, acct.LastBillingDate.Equal(lastBilled))
	assert.Empty(t, h.recorder.actions)
}

func TestStatusReportsEmptyUsageAfterPurge(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", 3, 0, h.now.Add(-31*day))
	h.put(t, "u1/a.txt", "0123456789")
	h.tick(t, "u1")

	h.now = h.now.Add(16 * day)
	status, err := h.service.Status(context.Background(), "u1", usage.NewAccountant(h.store, time.Second))
	require.NoError(t, err)

	assert.Equal(t, account.StatusDeleted, status.Status)
	assert.Zero(t, status.UsedBytes)
	assert.Zero(t, status.ObjectCount)
	assert.Contains(t, status.Transitions, TransitionPurge)
}
