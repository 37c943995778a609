package file

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/objectstore"
)

// Archive is a folder snapshot ready to be streamed as a zip file.
type Archive struct {
	Name string

	service *Service
	userID  string
	folder  string
	objects []objectstore.ObjectInfo
}

// OpenArchive snapshots the non-trash objects under folder. Objects added
// after this call are not included; objects removed before they are streamed
// are skipped.
func (s *Service) OpenArchive(ctx context.Context, userID, folder string) (*Archive, error) {
	folder, err := cleanFolder(folder)
	if err != nil {
		return nil, err
	}
	if folder == "" {
		return nil, ErrNotFolder
	}

	all, err := objectstore.ListAll(ctx, s.store, objectstore.Key(userID, folder))
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	objects := all[:0]
	for _, obj := range all {
		if objectstore.IsTrashKey(obj.Key) || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		objects = append(objects, obj)
	}
	if len(objects) == 0 {
		return nil, ErrFileNotFound
	}

	return &Archive{
		Name:    objectstore.BaseName(folder) + ".zip",
		service: s,
		userID:  userID,
		folder:  folder,
		objects: objects,
	}, nil
}

// Stream writes the archive into w. Entry names are relative to the folder.
func (a *Archive) Stream(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	written := 0
	for _, obj := range a.objects {
		ok, err := a.writeEntry(ctx, zw, obj)
		if err != nil {
			_ = zw.Close()
			return err
		}
		if ok {
			written++
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	a.service.recorder.Record(ctx, a.userID, activity.ActionDownload, a.folder, fmt.Sprintf("archive of %d objects", written))
	return nil
}

func (a *Archive) writeEntry(ctx context.Context, zw *zip.Writer, obj objectstore.ObjectInfo) (bool, error) {
	body, _, err := a.service.store.Get(ctx, obj.Key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", obj.Key, err)
	}
	defer body.Close()

	rel := strings.TrimPrefix(objectstore.Relative(a.userID, obj.Key), a.folder)
	header := &zip.FileHeader{
		Name:     rel,
		Method:   zip.Deflate,
		Modified: obj.LastModified,
	}
	if Classify(rel).compressed() {
		header.Method = zip.Store
	}
	fw, err := zw.CreateHeader(header)
	if err != nil {
		return false, fmt.Errorf("add %s: %w", rel, err)
	}
	if _, err := io.Copy(fw, body); err != nil {
		return false, fmt.Errorf("copy %s: %w", rel, err)
	}
	return true, nil
}
