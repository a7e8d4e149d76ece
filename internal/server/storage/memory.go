package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/RightsTracker/NuGetGallery/internal/common"
)

// MemoryBlobStore keeps blobs in process memory. It honours the same
// collision rules as S3BlobStore.
type MemoryBlobStore struct {
	mu         sync.Mutex
	validation map[string][]byte
	public     map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		validation: make(map[string][]byte),
		public:     make(map[string][]byte),
	}
}

func (m *MemoryBlobStore) SaveValidationFile(ctx context.Context, id, normalizedVersion string, body io.ReadSeeker) error {
	return m.put(m.validation, FileName(id, normalizedVersion), body, false)
}

func (m *MemoryBlobStore) SavePublicFile(ctx context.Context, id, normalizedVersion string, body io.ReadSeeker, overwrite bool) error {
	return m.put(m.public, FileName(id, normalizedVersion), body, overwrite)
}

func (m *MemoryBlobStore) DeleteValidationFile(ctx context.Context, id, normalizedVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.validation, FileName(id, normalizedVersion))
	return nil
}

func (m *MemoryBlobStore) DeletePublicFile(ctx context.Context, id, normalizedVersion string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.public, FileName(id, normalizedVersion))
	return nil
}

// ValidationFile returns the content of a validation blob.
func (m *MemoryBlobStore) ValidationFile(id, normalizedVersion string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.validation[FileName(id, normalizedVersion)]
	return b, ok
}

// PublicFile returns the content of a public blob.
func (m *MemoryBlobStore) PublicFile(id, normalizedVersion string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.public[FileName(id, normalizedVersion)]
	return b, ok
}

func (m *MemoryBlobStore) put(dst map[string][]byte, key string, body io.ReadSeeker, overwrite bool) error {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", key, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := dst[key]; exists && !overwrite {
		return fmt.Errorf("%s: %w", key, common.ErrBlobAlreadyExists)
	}
	dst[key] = buf.Bytes()
	return nil
}
