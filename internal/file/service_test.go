package file

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zip"
	"github.com/kpcloud/kpcloud/internal/activity"
	"github.com/kpcloud/kpcloud/internal/auth"
	"github.com/kpcloud/kpcloud/internal/objectstore"
	"github.com/kpcloud/kpcloud/internal/quota"
	"github.com/kpcloud/kpcloud/internal/trash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeGuard struct {
	err error
}

func (g *fakeGuard) CheckQuota(context.Context, string, int64) error { return g.err }

type fakeRecorder struct {
	mu      sync.Mutex
	actions []activity.Action
}

func (f *fakeRecorder) Record(_ context.Context, _ string, action activity.Action, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func newTestService(t *testing.T) (*Service, *objectstore.MemoryStore, *fakeGuard, *fakeRecorder) {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := objectstore.NewMemoryStore(3)
	guard := &fakeGuard{}
	recorder := &fakeRecorder{}
	service := NewService(store, guard, trash.NewService(store, recorder, log), recorder, log)
	return service, store, guard, recorder
}

func put(t *testing.T, store objectstore.Store, key, body string) {
	t.Helper()
	_, err := store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), "application/octet-stream")
	require.NoError(t, err)
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Kind) + ":" + e.Name
	}
	return out
}

func TestListCollapsesNestedKeysIntoFolders(t *testing.T) {
	service, store, _, _ := newTestService(t)
	put(t, store, "u1/a/b.txt", "bb")
	put(t, store, "u1/a/c/d.txt", "ddd")
	put(t, store, "u1/a/.trash/old.txt", "old")
	put(t, store, "u1/.trash/gone.txt", "gone")
	put(t, store, "u1/top.png", "png")
	put(t, store, "u2/a/b.txt", "other")

	entries, err := service.List(context.Background(), "u1", "a/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"folder:c", "file:b.txt"}, names(entries))
	assert.Equal(t, "a/c/", entries[0].Path)
	assert.Equal(t, int64(3), entries[0].Size)
	assert.Equal(t, TypeDocument, entries[1].Type)

	root, err := service.List(context.Background(), "u1", "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"folder:a", "file:top.png"}, names(root))
	assert.Equal(t, TypeImage, root[1].Type)

	withoutSlash, err := service.List(context.Background(), "u1", "a", false)
	require.NoError(t, err)
	assert.Equal(t, names(entries), names(withoutSlash))
}

func TestListRecursive(t *testing.T) {
	service, store, _, _ := newTestService(t)
	put(t, store, "u1/a/b.txt", "bb")
	put(t, store, "u1/a/c/d.go", "ddd")
	put(t, store, "u1/a/empty/", "")

	entries, err := service.List(context.Background(), "u1", "a/", true)
	require.NoError(t, err)

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
		assert.Equal(t, KindFile, e.Kind)
	}
	assert.Equal(t, []string{"a/b.txt", "a/c/d.go"}, paths)
	assert.Equal(t, TypeCode, entries[1].Type)
}

func TestListRejectsEscapingPrefix(t *testing.T) {
	service, _, _, _ := newTestService(t)
	_, err := service.List(context.Background(), "u1", "../u2/", false)
	assert.ErrorIs(t, err, objectstore.ErrInvalidPath)
}

func TestClassify(t *testing.T) {
	cases := map[string]FileType{
		"photo.JPG":      TypeImage,
		"clip.mp4":       TypeVideo,
		"song.flac":      TypeAudio,
		"report.pdf":     TypeDocument,
		"backup.tar.gz":  TypeArchive,
		"main.go":        TypeCode,
		"kp_core.bin":    TypeOther,
		"no-extension":   TypeOther,
		"archive.zip/":   TypeArchive,
		".hidden_config": TypeOther,
	}
	for name, want := range cases {
		assert.Equal(t, want, Classify(strings.TrimSuffix(name, "/")), name)
	}
}

func TestUploadStoresObjectUnderFolder(t *testing.T) {
	service, store, _, recorder := newTestService(t)
	fileHeader := buildFileHeader(t, "file", "notes.txt", "text/plain", []byte("hello world"))

	result, err := service.Upload(context.Background(), "u1", "docs", fileHeader)
	require.NoError(t, err)

	assert.Equal(t, "docs/notes.txt", result.Path)
	assert.Equal(t, int64(11), result.Size)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", result.Checksum)
	data, ok := store.Bytes("u1/docs/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, []activity.Action{activity.ActionUpload}, recorder.actions)
}

func TestUploadDeniedByQuotaStoresNothing(t *testing.T) {
	service, store, guard, _ := newTestService(t)
	guard.err = &quota.ExceededError{UsedGB: 1, TotalGB: 1}
	fileHeader := buildFileHeader(t, "file", "big.iso", "application/octet-stream", []byte("payload"))

	_, err := service.Upload(context.Background(), "u1", "", fileHeader)
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Zero(t, store.Len())
}

func TestUploadRejectsTrashFolder(t *testing.T) {
	service, store, _, _ := newTestService(t)
	fileHeader := buildFileHeader(t, "file", "x.txt", "text/plain", []byte("x"))

	_, err := service.Upload(context.Background(), "u1", ".trash", fileHeader)
	assert.ErrorIs(t, err, ErrTrashTarget)
	assert.Zero(t, store.Len())
}

func TestDeleteDelegatesToTrash(t *testing.T) {
	service, store, _, _ := newTestService(t)
	put(t, store, "u1/a.txt", "a")
	put(t, store, "u1/b.txt", "b")

	_, err := service.Delete(context.Background(), "u1", "a.txt", false)
	require.NoError(t, err)
	_, err = service.Delete(context.Background(), "u1", "b.txt", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"u1/.trash/a.txt"}, store.Keys())
}

func TestArchiveContainsFolderContents(t *testing.T) {
	service, store, _, recorder := newTestService(t)
	put(t, store, "u1/photos/cat.jpg", "meow")
	put(t, store, "u1/photos/2024/notes.txt", "summer")
	put(t, store, "u1/photos/.trash/old.jpg", "old")
	put(t, store, "u1/other.txt", "skip")

	archive, err := service.OpenArchive(context.Background(), "u1", "photos/")
	require.NoError(t, err)
	assert.Equal(t, "photos.zip", archive.Name)

	var buf bytes.Buffer
	require.NoError(t, archive.Stream(context.Background(), &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		contents[f.Name] = string(data)
	}
	assert.Equal(t, map[string]string{"cat.jpg": "meow", "2024/notes.txt": "summer"}, contents)
	assert.Equal(t, []activity.Action{activity.ActionDownload}, recorder.actions)
}

func TestOpenArchiveErrors(t *testing.T) {
	service, _, _, _ := newTestService(t)

	_, err := service.OpenArchive(context.Background(), "u1", "empty/")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = service.OpenArchive(context.Background(), "u1", "")
	assert.ErrorIs(t, err, ErrNotFolder)
}

func TestFileEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service, store, _, _ := newTestService(t)
	put(t, store, "u1/a/b.txt", "bb")

	r := gin.New()
	group := r.Group("/v1", func(c *gin.Context) {
		auth.SetUser(c, auth.ContextUser{ID: "u1"})
	})
	RegisterReadRoutes(group, service)
	RegisterDestructiveRoutes(group, service)
	RegisterWriteRoutes(group, service)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "song.mp3")
	require.NoError(t, err)
	_, err = part.Write([]byte("la-la"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("path", "music/"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"type":"AUDIO"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/files", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"music"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/files?path=a/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"processed":1`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/files/archive?path=music/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))

	keys := store.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"u1/.trash/a/b.txt", "u1/music/song.mp3"}, keys)
}

func buildFileHeader(t *testing.T, fieldName, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))

	fh := req.MultipartForm.File[fieldName][0]
	fh.Header.Set("Content-Type", contentType)
	return fh
}
