package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by MemStore for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// ImportKey — ключ архива загруженного файла плана.
func ImportKey(scope string, at time.Time, id uuid.UUID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return path.Join("imports", scope, fmt.Sprintf("%s_%s.%s", at.UTC().Format("20060102T150405Z"), id, ext))
}

// ExportKey — ключ выгрузки выполнения.
func ExportKey(profileID, exportID uuid.UUID, format string) string {
	return path.Join("exports", profileID.String(), exportID.String()+"."+format)
}

// MemStore keeps objects in process memory. Presigned URLs are fake but stable.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *MemStore) PutObject(ctx context.Context, key string, data []byte, contentType string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = bytes.Clone(data)
	m.types[key] = contentType
	return int64(len(data)), nil
}

func (m *MemStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return bytes.Clone(data), nil
}

func (m *MemStore) PresignGet(ctx context.Context, key string, ttlSeconds int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrObjectNotFound
	}
	return fmt.Sprintf("memory://%s?ttl=%d", key, ttlSeconds), nil
}

func (m *MemStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

// Keys lists stored keys with the given prefix.
func (m *MemStore) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
