package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string]memoryObject
	pageSize int
	now      func() time.Time

	// Fail, when set, is consulted before every operation; a non-nil return
	// is reported as the operation's error.
	Fail func(op, key string) error
}

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewMemoryStore returns an empty store whose listings return at most pageSize objects per page.
func NewMemoryStore(pageSize int) *MemoryStore {
	if pageSize <= 0 {
		pageSize = deleteBatchSize
	}
	return &MemoryStore{
		objects:  make(map[string]memoryObject),
		pageSize: pageSize,
		now:      time.Now,
	}
}

func (m *MemoryStore) fail(op, key string) error {
	if m.Fail == nil {
		return nil
	}
	if err := m.Fail(op, key); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix, token string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if err := m.fail("list", prefix); err != nil {
		return Page{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) && key > token {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var page Page
	for i, key := range keys {
		if i == m.pageSize {
			page.NextToken = keys[i-1]
			break
		}
		page.Objects = append(page.Objects, m.info(key))
	}
	return page, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) (ObjectInfo, error) {
	if err := m.fail("put", key); err != nil {
		return ObjectInfo{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, Error.Wrap(err)
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, modified: m.now().UTC()}
	return m.info(key), nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := m.fail("get", key); err != nil {
		return nil, ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectInfo{}, notFound(key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), m.info(key), nil
}

func (m *MemoryStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	if err := m.fail("stat", key); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return ObjectInfo{}, notFound(key)
	}
	return m.info(key), nil
}

func (m *MemoryStore) Copy(_ context.Context, src, dst string) error {
	if err := m.fail("copy", src); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[src]
	if !ok {
		return notFound(src)
	}
	obj.data = append([]byte(nil), obj.data...)
	obj.modified = m.now().UTC()
	m.objects[dst] = obj
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if err := m.fail("delete", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) DeleteMany(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := m.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) PresignGet(_ context.Context, key string, ttl time.Duration, opts PresignOptions) (string, error) {
	if err := m.fail("presign", key); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("method", "GET")
	q.Set("expires", m.now().Add(ttl).UTC().Format(time.RFC3339))
	if disposition := opts.disposition(); disposition != "" {
		q.Set("response-content-disposition", disposition)
	}
	return fmt.Sprintf("memory:///%s?%s", key, q.Encode()), nil
}

func (m *MemoryStore) PresignPut(_ context.Context, key string, ttl time.Duration, contentType string) (string, error) {
	if err := m.fail("presign", key); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("method", "PUT")
	q.Set("expires", m.now().Add(ttl).UTC().Format(time.RFC3339))
	if contentType != "" {
		q.Set("content-type", contentType)
	}
	return fmt.Sprintf("memory:///%s?%s", key, q.Encode()), nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return m.fail("ping", "")
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Bytes returns a copy of the object stored at key.
func (m *MemoryStore) Bytes(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Keys returns every stored key in lexical order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// info must be called with mu held.
func (m *MemoryStore) info(key string) ObjectInfo {
	obj := m.objects[key]
	sum := md5.Sum(obj.data)
	return ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: obj.modified,
	}
}
