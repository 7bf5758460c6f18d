package objstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Memory is an in-process Store. It backs dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	bucket  string
	baseURL string
	objects map[string]memoryObject
	puts    int
}

// NewMemory creates an empty in-memory store whose URLs start with baseURL.
func NewMemory(bucket, baseURL string) *Memory {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &Memory{
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]memoryObject),
	}
}

func (m *Memory) Probe(ctx context.Context, key string) (Presence, error) {
	if err := ctx.Err(); err != nil {
		return ProbeFailed, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; ok {
		return Exists, nil
	}
	return NotFound, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get s3://%s/%s: %w", m.bucket, key, ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{
		data:         append([]byte(nil), data...),
		contentType:  contentType,
		lastModified: time.Now().UTC(),
	}
	m.puts++
	return nil
}

func (m *Memory) UploadFile(ctx context.Context, path, key, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return m.Put(ctx, key, data, contentType)
}

func (m *Memory) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Object
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Object{Key: key, Size: int64(len(obj.data)), LastModified: obj.lastModified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) URL(key string) string {
	return m.baseURL + "/" + key
}

func (m *Memory) Bucket() string {
	return m.bucket
}

// ContentType returns the content type key was written with.
func (m *Memory) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[key].contentType
}

// Keys returns every stored key in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Puts counts successful writes since creation.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
