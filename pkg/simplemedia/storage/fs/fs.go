package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia/storage"
)

// Config options for the filesystem backend
type Config struct {
	// BaseDir is the root directory for this namespace
	BaseDir string
	// URLPrefix, when set, makes presigned GET URLs resolvable through a
	// static file server mounted at that prefix
	URLPrefix string
}

// Backend is a local-filesystem implementation of the storage.BlobStore
// interface, for development and single-node deployments. It does not
// support presigned PUT or multipart sessions.
type Backend struct {
	baseDir   string
	urlPrefix string
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{baseDir: config.BaseDir, urlPrefix: strings.TrimSuffix(config.URLPrefix, "/")}, nil
}

func (b *Backend) path(key string) string {
	return filepath.Join(b.baseDir, filepath.FromSlash(key))
}

// Upload writes content under the base directory. Overwrites an existing
// key.
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	p := b.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Download reads content from under the base directory
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes a key
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := os.Remove(b.path(key)); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrKeyNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// PresignPut is not supported; clients must upload through the server.
func (b *Backend) PresignPut(ctx context.Context, key, contentType string, contentLength int64, expires time.Duration) (string, error) {
	return "", storage.ErrNotSupported
}

// PresignGet returns a static URL when a URL prefix is configured.
func (b *Backend) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if b.urlPrefix == "" {
		return "", storage.ErrNotSupported
	}
	if _, err := os.Stat(b.path(key)); err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrKeyNotFound
		}
		return "", err
	}
	return b.urlPrefix + "/" + key, nil
}

// InitiateMultipart is not supported on the filesystem backend.
func (b *Backend) InitiateMultipart(ctx context.Context, key, contentType string) (string, error) {
	return "", storage.ErrNotSupported
}

// PresignPart is not supported on the filesystem backend.
func (b *Backend) PresignPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error) {
	return "", storage.ErrNotSupported
}

// CompleteMultipart is not supported on the filesystem backend.
func (b *Backend) CompleteMultipart(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	return storage.ErrNotSupported
}

// AbortMultipart is not supported on the filesystem backend.
func (b *Backend) AbortMultipart(ctx context.Context, key, uploadID string) error {
	return storage.ErrNotSupported
}
