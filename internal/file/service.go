package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"strings"

	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/kpcloud/kpcloud/internal/trash"
	"go.uber.org/zap"
)

const (
	// S3 rejects single PUTs above 5 GiB.
	defaultMaxFileSize = 5 << 30
)

type uploadGuard interface {
	CheckQuota(ctx context.Context, userID string, incoming int64) error
}

type trashService interface {
	SoftDelete(ctx context.Context, userID, rel string) (trash.BatchResult, error)
	PermanentDelete(ctx context.Context, userID, rel string) (trash.BatchResult, error)
}

type activityRecorder interface {
	Record(ctx context.Context, userID string, action activity.Action, path, detail string)
}

// Service browses and stores a user's files.
type Service struct {
	store       objectstore.Store
	guard       uploadGuard
	trash       trashService
	recorder    activityRecorder
	maxFileSize int64
	log         *zap.Logger
}

// NewService constructs a file service.
func NewService(store objectstore.Store, guard uploadGuard, trash trashService, recorder activityRecorder, log *zap.Logger) *Service {
	return &Service{
		store:       store,
		guard:       guard,
		trash:       trash,
		recorder:    recorder,
		maxFileSize: defaultMaxFileSize,
		log:         log.Named("file"),
	}
}

// List returns the non-trash entries under folder. Without recursive, keys
// deeper than one level collapse into folder entries named after their first
// path segment.
func (s *Service) List(ctx context.Context, userID, folder string, recursive bool) ([]Entry, error) {
	folder, err := cleanFolder(folder)
	if err != nil {
		return nil, err
	}
	objects, err := objectstore.ListAll(ctx, s.store, objectstore.Key(userID, folder))
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	entries := make([]Entry, 0, len(objects))
	folders := make(map[string]int)
	for _, obj := range objects {
		if objectstore.IsTrashKey(obj.Key) {
			continue
		}
		rel := objectstore.Relative(userID, obj.Key)
		rest := strings.TrimPrefix(rel, folder)
		if rest == "" || (recursive && objectstore.IsFolder(rest)) {
			continue
		}

		if i := strings.Index(rest, "/"); i >= 0 && !recursive {
			name := rest[:i]
			idx, ok := folders[name]
			if !ok {
				idx = len(entries)
				folders[name] = idx
				entries = append(entries, Entry{Kind: KindFolder, Name: name, Path: folder + name + "/"})
			}
			entries[idx].Size += obj.Size
			if obj.LastModified.After(entries[idx].LastModified) {
				entries[idx].LastModified = obj.LastModified
			}
			continue
		}

		name := objectstore.BaseName(rel)
		entries = append(entries, Entry{
			Kind:         KindFile,
			Name:         name,
			Path:         rel,
			Size:         obj.Size,
			Type:         Classify(name),
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == KindFolder
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// Upload stores fileHeader under folder after a quota check.
func (s *Service) Upload(ctx context.Context, userID, folder string, fileHeader *multipart.FileHeader) (UploadResult, error) {
	if fileHeader == nil {
		return UploadResult{}, fmt.Errorf("missing file payload")
	}
	folder, err := cleanFolder(folder)
	if err != nil {
		return UploadResult{}, err
	}
	rel, err := objectstore.CleanRelative(folder + sanitizeFilename(fileHeader.Filename))
	if err != nil {
		return UploadResult{}, err
	}
	key := objectstore.Key(userID, rel)
	if objectstore.IsTrashKey(key) {
		return UploadResult{}, ErrTrashTarget
	}

	size := fileHeader.Size
	if size > s.maxFileSize {
		return UploadResult{}, ErrFileTooLarge
	}
	if err := s.guard.CheckQuota(ctx, userID, size); err != nil {
		return UploadResult{}, err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return UploadResult{}, fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	info, err := s.store.Put(ctx, key, io.TeeReader(file, hasher), size, detectContentType(fileHeader))
	if err != nil {
		return UploadResult{}, fmt.Errorf("store object: %w", err)
	}

	s.recorder.Record(ctx, userID, activity.ActionUpload, rel, fmt.Sprintf("%d bytes", info.Size))
	name := objectstore.BaseName(rel)
	return UploadResult{
		Entry: Entry{
			Kind:         KindFile,
			Name:         name,
			Path:         rel,
			Size:         info.Size,
			Type:         Classify(name),
			ContentType:  info.ContentType,
			LastModified: info.LastModified,
		},
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Delete trashes rel, or removes it outright when permanent is set.
func (s *Service) Delete(ctx context.Context, userID, rel string, permanent bool) (trash.BatchResult, error) {
	if permanent {
		return s.trash.PermanentDelete(ctx, userID, rel)
	}
	return s.trash.SoftDelete(ctx, userID, rel)
}

// cleanFolder normalizes a folder path; "" is the user's root.
func cleanFolder(folder string) (string, error) {
	if strings.TrimSpace(folder) == "" || folder == "/" {
		return "", nil
	}
	if !objectstore.IsFolder(folder) {
		folder += "/"
	}
	return objectstore.CleanRelative(folder)
}

func detectContentType(fileHeader *multipart.FileHeader) string {
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = name[strings.LastIndexAny(name, `/\`)+1:]
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}
