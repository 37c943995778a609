// Package trash moves objects in and out of the per-user .trash folder.
// Trash membership is a location: a trashed object lives at
// {userId}/.trash/{relativePath}.
package trash

import (
	"context"
	"fmt"
	"time"

	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/logger"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"go.uber.org/zap"
)

const deleteBatchSize = 1000

type activityRecorder interface {
	Record(ctx context.Context, userID string, action activity.Action, path, detail string)
}

// Item is a trashed object and the path it restores to.
type Item struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Service implements soft delete, restore and permanent delete.
type Service struct {
	store    objectstore.Store
	recorder activityRecorder
	log      *zap.Logger
}

// NewService constructs a trash service.
func NewService(store objectstore.Store, recorder activityRecorder, log *zap.Logger) *Service {
	return &Service{store: store, recorder: recorder, log: log.Named("trash")}
}

// SoftDelete moves rel into the trash. Folders (trailing slash) move every
// object under them; objects already in a trash folder are skipped. A missing
// source counts as skipped, so repeating the call is a no-op.
func (s *Service) SoftDelete(ctx context.Context, userID, rel string) (BatchResult, error) {
	rel, err := objectstore.CleanRelative(rel)
	if err != nil {
		return BatchResult{}, err
	}
	keys, err := s.resolve(ctx, objectstore.Key(userID, rel))
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, key := range keys {
		if objectstore.IsTrashKey(key) {
			result.Skipped++
			continue
		}
		dst := objectstore.TrashKey(userID, objectstore.Relative(userID, key))
		s.move(ctx, key, dst, &result)
	}

	if result.Processed > 0 {
		s.recorder.Record(ctx, userID, activity.ActionMoveToTrash, rel, summary(result))
	}
	return result, s.finish(ctx, "soft delete", userID, result)
}

// Restore moves trashRel out of the trash back to its original path,
// overwriting anything stored there since.
func (s *Service) Restore(ctx context.Context, userID, trashRel string) (BatchResult, error) {
	trashRel, err := objectstore.CleanRelative(trashRel)
	if err != nil {
		return BatchResult{}, err
	}
	keys, err := s.resolve(ctx, objectstore.TrashKey(userID, trashRel))
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, key := range keys {
		dst := objectstore.Key(userID, objectstore.TrashRelative(userID, key))
		s.move(ctx, key, dst, &result)
	}

	if result.Processed > 0 {
		s.recorder.Record(ctx, userID, activity.ActionRestore, trashRel, summary(result))
	}
	return result, s.finish(ctx, "restore", userID, result)
}

// PermanentDelete removes rel, or everything under it for folders, without
// passing through the trash.
func (s *Service) PermanentDelete(ctx context.Context, userID, rel string) (BatchResult, error) {
	rel, err := objectstore.CleanRelative(rel)
	if err != nil {
		return BatchResult{}, err
	}
	keys, err := s.resolve(ctx, objectstore.Key(userID, rel))
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	for _, key := range keys {
		if _, err := s.store.Stat(ctx, key); err != nil {
			if objectstore.IsNotFound(err) {
				result.Skipped++
				continue
			}
			result.fail(key, err)
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			result.fail(key, err)
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 {
		s.recorder.Record(ctx, userID, activity.ActionPermanentDelete, rel, summary(result))
	}
	return result, s.finish(ctx, "permanent delete", userID, result)
}

// EmptyTrash deletes everything in the caller's trash in batches. A failed
// batch is counted as failed and the remaining batches still run.
func (s *Service) EmptyTrash(ctx context.Context, userID string) (BatchResult, error) {
	objects, err := objectstore.ListAll(ctx, s.store, objectstore.TrashPrefix(userID))
	if err != nil {
		return BatchResult{}, Error.Wrap(err)
	}

	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}

	var result BatchResult
	for start := 0; start < len(keys); start += deleteBatchSize {
		batch := keys[start:min(start+deleteBatchSize, len(keys))]
		if err := s.store.DeleteMany(ctx, batch); err != nil {
			for _, key := range batch {
				result.fail(key, err)
			}
			continue
		}
		result.Processed += len(batch)
	}

	if result.Processed > 0 {
		s.recorder.Record(ctx, userID, activity.ActionEmptyTrash, "", summary(result))
	}
	return result, s.finish(ctx, "empty trash", userID, result)
}

// List returns the caller's trashed objects.
func (s *Service) List(ctx context.Context, userID string) ([]Item, error) {
	objects, err := objectstore.ListAll(ctx, s.store, objectstore.TrashPrefix(userID))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	items := make([]Item, 0, len(objects))
	for _, obj := range objects {
		rel := objectstore.TrashRelative(userID, obj.Key)
		items = append(items, Item{
			Path:         rel,
			Name:         objectstore.BaseName(rel),
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	return items, nil
}

// resolve expands a folder key into the keys below it. A file key resolves
// to itself without touching the store.
func (s *Service) resolve(ctx context.Context, key string) ([]string, error) {
	if !objectstore.IsFolder(key) {
		return []string{key}, nil
	}
	objects, err := objectstore.ListAll(ctx, s.store, key)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	return keys, nil
}

// move copies src to dst and then deletes src. If the delete fails the copy
// stays behind; a retry copies again and overwrites it.
func (s *Service) move(ctx context.Context, src, dst string, result *BatchResult) {
	if err := s.store.Copy(ctx, src, dst); err != nil {
		if objectstore.IsNotFound(err) {
			result.Skipped++
			return
		}
		result.fail(src, err)
		return
	}
	if err := s.store.Delete(ctx, src); err != nil {
		result.fail(src, err)
		return
	}
	result.Processed++
}

func (s *Service) finish(ctx context.Context, op, userID string, result BatchResult) error {
	if result.Failed == 0 {
		return nil
	}
	logger.FromContext(ctx, s.log).Warn("batch partially failed",
		zap.String("op", op),
		zap.String("user_id", userID),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed))
	return &BatchError{Op: op, Result: result}
}

func summary(r BatchResult) string {
	if r.Skipped == 0 {
		return fmt.Sprintf("%d objects", r.Processed)
	}
	return fmt.Sprintf("%d objects, %d skipped", r.Processed, r.Skipped)
}
