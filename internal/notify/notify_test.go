package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	f.topic = topic
	f.payload = payload
	return "msg-1", f.err
}

type failingSender struct{}

func (failingSender) Send(context.Context, Notice) error { return errors.New("smtp down") }

func TestNoticeSubjects(t *testing.T) {
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	deadline := now.Add(15 * 24 * time.Hour)
	to := Recipient{UserID: "u1", Email: "u1@example.com"}

	assert.Equal(t, KindAccountLocked, AccountLocked(to, deadline, now).Kind)
	assert.Equal(t, "7 days in, 8 remain", SuspensionDay7(to, deadline, now).Subject)
	assert.Equal(t, "48 hours left", SuspensionFinal(to, deadline, now).Subject)
	assert.Contains(t, AccountLocked(to, deadline, now).Body, "2025-05-16")
	assert.NotContains(t, DataPurged(to, now).Body, "%")
}

func TestPubSubSenderPublishesMailJob(t *testing.T) {
	pub := &fakePublisher{}
	sender := NewPubSubSender(pub, "notices", "noreply@kpcloud.app")
	now := time.Now()

	err := sender.Send(context.Background(), DataPurged(Recipient{UserID: "u1", Email: "u1@example.com"}, now))
	require.NoError(t, err)

	assert.Equal(t, "notices", pub.topic)
	var job map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &job))
	assert.Equal(t, "noreply@kpcloud.app", job["from"])
	assert.Equal(t, "u1@example.com", job["email"])
	assert.Equal(t, string(KindDataPurged), job["kind"])
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	d := NewDispatcher(failingSender{}, zaptest.NewLogger(t))
	ok := d.Notify(context.Background(), DataPurged(Recipient{UserID: "u1"}, time.Now()))
	assert.False(t, ok)
}

func TestDispatcherWithLogSender(t *testing.T) {
	log := zaptest.NewLogger(t)
	d := NewDispatcher(NewLogSender(log), log)
	assert.True(t, d.Notify(context.Background(), DataPurged(Recipient{UserID: "u1"}, time.Now())))
}
