package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia/storage"
)

// Backend is an in-memory implementation of the storage.BlobStore
// interface, used in tests and local development. Its multipart completion
// enforces the same strict ascending part order real storage services do.
type Backend struct {
	mu        sync.RWMutex
	objects   map[string][]byte
	mimeTypes map[string]string
	sessions  map[string]*session // uploadID -> session
}

type session struct {
	key         string
	contentType string
	parts       map[int32][]byte
	etags       map[int32]string
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
		sessions:  make(map[string]*session),
	}
}

// Upload uploads content directly. Re-uploading the same key overwrites.
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b.mimeTypes[key] = contentType
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[key]
	if !exists {
		return nil, storage.ErrKeyNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete deletes content. Missing keys surface ErrKeyNotFound so callers
// can decide whether that matters.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return storage.ErrKeyNotFound
	}
	delete(b.objects, key)
	delete(b.mimeTypes, key)
	return nil
}

// PresignPut returns a fake URL; the memory backend has no HTTP surface.
func (b *Backend) PresignPut(ctx context.Context, key, contentType string, contentLength int64, expires time.Duration) (string, error) {
	return "memory://put/" + key, nil
}

// PresignGet returns a fake URL; the memory backend has no HTTP surface.
func (b *Backend) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, exists := b.objects[key]; !exists {
		return "", storage.ErrKeyNotFound
	}
	return "memory://get/" + key, nil
}

// InitiateMultipart opens an in-memory multipart session
func (b *Backend) InitiateMultipart(ctx context.Context, key, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	uploadID := uuid.NewString()
	b.sessions[uploadID] = &session{
		key:         key,
		contentType: contentType,
		parts:       make(map[int32][]byte),
		etags:       make(map[int32]string),
	}
	return uploadID, nil
}

// PresignPart returns a fake per-part URL
func (b *Backend) PresignPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, exists := b.sessions[uploadID]; !exists {
		return "", storage.ErrKeyNotFound
	}
	return fmt.Sprintf("memory://part/%s/%d", uploadID, partNumber), nil
}

// PutPart stores one part's bytes and returns its ETag. Test helper
// standing in for the PUT a real backend receives on the presigned URL.
func (b *Backend) PutPart(uploadID string, partNumber int32, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.sessions[uploadID]
	if !exists {
		return "", storage.ErrKeyNotFound
	}
	etag := fmt.Sprintf("%x", md5.Sum(data))
	s.parts[partNumber] = append([]byte(nil), data...)
	s.etags[partNumber] = etag
	return etag, nil
}

// CompleteMultipart concatenates the session's parts into the final
// object. It rejects part lists that are out of ascending order,
// incomplete, or carry mismatched ETags, mirroring the real storage
// contract.
func (b *Backend) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	if !storage.PartsAscending(parts) {
		return storage.ErrPartsOutOfOrder
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.sessions[uploadID]
	if !exists {
		return storage.ErrKeyNotFound
	}
	if len(parts) != len(s.parts) {
		return fmt.Errorf("incomplete part list: got %d, session has %d", len(parts), len(s.parts))
	}

	var assembled []byte
	for _, p := range parts {
		data, ok := s.parts[p.PartNumber]
		if !ok {
			return fmt.Errorf("unknown part %d", p.PartNumber)
		}
		if s.etags[p.PartNumber] != p.ETag {
			return fmt.Errorf("etag mismatch for part %d", p.PartNumber)
		}
		assembled = append(assembled, data...)
	}

	b.objects[s.key] = assembled
	b.mimeTypes[s.key] = s.contentType
	delete(b.sessions, uploadID)
	return nil
}

// AbortMultipart abandons a session
func (b *Backend) AbortMultipart(ctx context.Context, key, uploadID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, uploadID)
	return nil
}

// Keys returns all stored keys sorted, for test assertions.
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Object returns the stored bytes for a key, for test assertions.
func (b *Backend) Object(key string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[key]
	return data, ok
}
