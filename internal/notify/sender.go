package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/metrics"
	"go.uber.org/zap"
)

// Sender delivers a notice or reports why it could not.
type Sender interface {
	Send(ctx context.Context, notice Notice) error
}

// LogSender writes notices to the structured log. It is the default sender
// when no mail pipeline is configured.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log.Named("notify")}
}

func (s *LogSender) Send(ctx context.Context, notice Notice) error {
	logger.FromContext(ctx, s.log).Info("account notice",
		zap.String("kind", string(notice.Kind)),
		zap.String("user_id", notice.UserID),
		zap.String("email", notice.Email),
		zap.String("subject", notice.Subject),
	)
	return nil
}

// Publisher publishes a payload to a topic and returns the message id.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// PubSubSender publishes notices as JSON mail jobs for an external mailer.
type PubSubSender struct {
	publisher Publisher
	topic     string
	from      string
}

// NewPubSubSender constructs a sender publishing to topic.
func NewPubSubSender(publisher Publisher, topic, from string) *PubSubSender {
	return &PubSubSender{publisher: publisher, topic: topic, from: from}
}

type mailJob struct {
	From string `json:"from"`
	Notice
}

func (s *PubSubSender) Send(ctx context.Context, notice Notice) error {
	payload, err := json.Marshal(mailJob{From: s.from, Notice: notice})
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	if _, err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		return err
	}
	return nil
}

// Dispatcher sends notices without ever failing the caller: delivery
// errors are logged and counted.
type Dispatcher struct {
	sender Sender
	log    *zap.Logger
}

// NewDispatcher wraps sender.
func NewDispatcher(sender Sender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log.Named("notify")}
}

// Notify delivers notice and reports whether it was accepted.
func (d *Dispatcher) Notify(ctx context.Context, notice Notice) bool {
	if err := d.sender.Send(ctx, notice); err != nil {
		metrics.NotificationFailed(string(notice.Kind))
		logger.FromContext(ctx, d.log).Warn("notice not delivered",
			zap.String("kind", string(notice.Kind)),
			zap.String("user_id", notice.UserID),
			zap.Error(err),
		)
		return false
	}
	return true
}
