package client

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// StoredObject is an object held by MemoryStorage
type StoredObject struct {
	Data        []byte
	ContentType string
}

// MemoryStorage is an in-process StorageClient used when no bucket is
// configured and in tests.
type MemoryStorage struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]StoredObject
}

// NewMemoryStorage creates an empty store whose URLs start with baseURL
func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]StoredObject),
	}
}

func (m *MemoryStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload body: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = StoredObject{Data: data, ContentType: contentType}
	m.mu.Unlock()

	return m.GetPublicURL(key), nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", m.GetPublicURL(key), int(expiry.Seconds())), nil
}

func (m *MemoryStorage) GetPublicURL(key string) string {
	return fmt.Sprintf("%s/%s", m.baseURL, key)
}

// Object returns a stored object by key
func (m *MemoryStorage) Object(key string) (StoredObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys in lexical order
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
