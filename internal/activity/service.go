package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kpcloud/kpcloud/internal/logger"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Store persists activity entries.
type Store interface {
	Insert(ctx context.Context, entry Entry) error
	List(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Service records and lists user activity. Recording is best effort.
type Service struct {
	store   Store
	log     *zap.Logger
	nowFunc func() time.Time
}

// NewService constructs an activity service.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		log:     log.Named("activity"),
		nowFunc: time.Now,
	}
}

// Record appends an entry. Failures are logged and never returned.
func (s *Service) Record(ctx context.Context, userID string, action Action, path, detail string) {
	entry := Entry{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Path:      path,
		Detail:    detail,
		CreatedAt: s.nowFunc().UTC(),
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		logger.FromContext(ctx, s.log).Warn("record activity",
			zap.String("user_id", userID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// List returns the newest entries for userID. limit is clamped to a sane range.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	entries, err := s.store.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
