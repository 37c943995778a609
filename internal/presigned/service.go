// Package presigned issues time-limited capability URLs for single objects.
// Grants are not revocable and are not re-checked against billing state once
// issued.
package presigned

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/config"
	"github.com/kpcloud/kpcloud/internal/objectstore"
)

// Purpose selects the lifetime and disposition of a grant.
type Purpose string

const (
	PurposeUpload   Purpose = "upload"
	PurposeDownload Purpose = "download"
	PurposePreview  Purpose = "preview"
	PurposeShare    Purpose = "share"
)

var (
	// ErrUnsupportedPurpose is returned for unknown purposes.
	ErrUnsupportedPurpose = errors.New("unsupported grant purpose")
	// ErrFolder is returned when a grant targets a folder.
	ErrFolder = errors.New("grants cannot target folders")
	// ErrTrashTarget is returned for uploads into the trash.
	ErrTrashTarget = errors.New("cannot upload into trash")
)

// Grant is an issued capability URL.
type Grant struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Purpose   Purpose   `json:"purpose"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type uploadGuard interface {
	CheckQuota(ctx context.Context, userID string, incoming int64) error
}

type activityRecorder interface {
	Record(ctx context.Context, userID string, action activity.Action, path, detail string)
}

// Service signs grants against the object store.
type Service struct {
	store    objectstore.Store
	guard    uploadGuard
	recorder activityRecorder
	ttls     config.GrantsConfig
	nowFunc  func() time.Time
}

// NewService constructs a grant service.
func NewService(store objectstore.Store, guard uploadGuard, recorder activityRecorder, ttls config.GrantsConfig) *Service {
	return &Service{
		store:    store,
		guard:    guard,
		recorder: recorder,
		ttls:     ttls,
		nowFunc:  time.Now,
	}
}

// TTL returns the lifetime of grants issued for p.
func (s *Service) TTL(p Purpose) (time.Duration, error) {
	switch p {
	case PurposeUpload:
		return s.ttls.UploadTTL, nil
	case PurposeDownload:
		return s.ttls.DownloadTTL, nil
	case PurposePreview:
		return s.ttls.PreviewTTL, nil
	case PurposeShare:
		return s.ttls.ShareTTL, nil
	default:
		return 0, ErrUnsupportedPurpose
	}
}

// IssueRead signs a GET for an existing object owned by userID.
func (s *Service) IssueRead(ctx context.Context, userID, rel string, purpose Purpose) (Grant, error) {
	if purpose == PurposeUpload {
		return Grant{}, ErrUnsupportedPurpose
	}
	ttl, err := s.TTL(purpose)
	if err != nil {
		return Grant{}, err
	}
	rel, key, err := fileKey(userID, rel)
	if err != nil {
		return Grant{}, err
	}
	if _, err := s.store.Stat(ctx, key); err != nil {
		return Grant{}, err
	}

	opts := objectstore.PresignOptions{Filename: objectstore.BaseName(rel)}
	if purpose == PurposePreview {
		opts.Inline = true
	}
	issuedAt := s.nowFunc().UTC()
	u, err := s.store.PresignGet(ctx, key, ttl, opts)
	if err != nil {
		return Grant{}, fmt.Errorf("presign get: %w", err)
	}

	s.recorder.Record(ctx, userID, readAction(purpose), rel, "")
	return Grant{URL: u, Method: "GET", Path: rel, Purpose: purpose, ExpiresAt: issuedAt.Add(ttl)}, nil
}

// IssueUpload signs a PUT for rel after checking that size bytes fit the
// caller's quota. The check happens at issue time only.
func (s *Service) IssueUpload(ctx context.Context, userID, rel string, size int64, contentType string) (Grant, error) {
	rel, key, err := fileKey(userID, rel)
	if err != nil {
		return Grant{}, err
	}
	if objectstore.IsTrashKey(key) {
		return Grant{}, ErrTrashTarget
	}
	if err := s.guard.CheckQuota(ctx, userID, size); err != nil {
		return Grant{}, err
	}

	issuedAt := s.nowFunc().UTC()
	u, err := s.store.PresignPut(ctx, key, s.ttls.UploadTTL, contentType)
	if err != nil {
		return Grant{}, fmt.Errorf("presign put: %w", err)
	}

	s.recorder.Record(ctx, userID, activity.ActionUploadStarted, rel, fmt.Sprintf("%d bytes", size))
	return Grant{URL: u, Method: "PUT", Path: rel, Purpose: PurposeUpload, ExpiresAt: issuedAt.Add(s.ttls.UploadTTL)}, nil
}

func fileKey(userID, rel string) (string, string, error) {
	rel, err := objectstore.CleanRelative(rel)
	if err != nil {
		return "", "", err
	}
	if objectstore.IsFolder(rel) {
		return "", "", ErrFolder
	}
	return rel, objectstore.Key(userID, rel), nil
}

func readAction(p Purpose) activity.Action {
	switch p {
	case PurposePreview:
		return activity.ActionPreview
	case PurposeShare:
		return activity.ActionShareLink
	default:
		return activity.ActionDownload
	}
}
