// Package storage provides the object storage gateway: a uniform client
// over two logical namespaces, a private originals area and a public assets
// area. The gateway holds no internal state; every call is independently
// retriable by its caller.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Error types
var (
	// ErrKeyNotFound indicates the object key is absent from the backend
	ErrKeyNotFound = errors.New("object key not found")

	// ErrNotSupported indicates the backend does not implement the
	// operation (e.g. presigning on the memory backend)
	ErrNotSupported = errors.New("operation not supported by backend")

	// ErrPartsOutOfOrder indicates a multipart completion whose parts are
	// not sorted ascending by part number
	ErrPartsOutOfOrder = errors.New("multipart completion parts out of ascending order")
)

// CompletedPart pairs an uploaded part number with the ETag the backend
// returned for it.
type CompletedPart struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

// BlobStore is one namespace of a storage backend.
type BlobStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key, contentType string, contentLength int64, expires time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// Multipart session: initiate -> per-part presigned PUT ->
	// complete-with-ETag-list. Completion requires parts sorted ascending
	// by part number.
	InitiateMultipart(ctx context.Context, key, contentType string) (string, error)
	PresignPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) error
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

// GatewayConfig holds gateway parameters. PresignTTL is the fixed validity
// window for presigned PUT URLs.
type GatewayConfig struct {
	PresignTTL time.Duration
}

// DefaultGatewayConfig returns the production gateway parameters.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{PresignTTL: 10 * time.Minute}
}

// Gateway is the uniform storage client over the originals and assets
// namespaces. It implements the pipeline's Storage contract.
type Gateway struct {
	originals BlobStore
	assets    BlobStore
	cfg       GatewayConfig
}

// NewGateway creates a gateway over the two namespaces.
func NewGateway(originals, assets BlobStore, cfg GatewayConfig) *Gateway {
	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = DefaultGatewayConfig().PresignTTL
	}
	return &Gateway{originals: originals, assets: assets, cfg: cfg}
}

// Originals exposes the originals namespace for multipart transfer
// planning.
func (g *Gateway) Originals() BlobStore { return g.originals }

// IssuePresignedPut returns a presigned PUT URL into the originals
// namespace, valid for the configured window.
func (g *Gateway) IssuePresignedPut(ctx context.Context, key, contentType string, contentLength int64) (string, error) {
	url, err := g.originals.PresignPut(ctx, key, contentType, contentLength, g.cfg.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return url, nil
}

// UploadOriginal writes a local file into the originals namespace.
func (g *Gateway) UploadOriginal(ctx context.Context, key, localPath, contentType string) error {
	return uploadLocal(ctx, g.originals, key, localPath, contentType)
}

// DownloadToLocal fetches an original into dir and returns the local path.
// An absent key surfaces as a hard error.
func (g *Gateway) DownloadToLocal(ctx context.Context, key, dir string) (string, error) {
	body, err := g.originals.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	defer body.Close()

	local := filepath.Join(dir, filepath.Base(key))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("write %s: %w", local, err)
	}
	return local, nil
}

// UploadAsset writes a local file into the assets namespace. Re-uploading
// the same key overwrites.
func (g *Gateway) UploadAsset(ctx context.Context, key, localPath, contentType string) error {
	return uploadLocal(ctx, g.assets, key, localPath, contentType)
}

// DeleteKeys is a best-effort batch delete. Missing keys are skipped; real
// delete failures are joined and returned, and the caller must not assume
// atomicity across keys.
func (g *Gateway) DeleteKeys(ctx context.Context, originalKeys, assetKeys []string) error {
	var errs []error
	for _, key := range originalKeys {
		if err := g.originals.Delete(ctx, key); err != nil && !errors.Is(err, ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("delete original %s: %w", key, err))
		}
	}
	for _, key := range assetKeys {
		if err := g.assets.Delete(ctx, key); err != nil && !errors.Is(err, ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("delete asset %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// AssetURL returns a presigned GET URL for a derivative.
func (g *Gateway) AssetURL(ctx context.Context, key string) (string, error) {
	return g.assets.PresignGet(ctx, key, g.cfg.PresignTTL)
}

// InitiateMultipart opens a multipart session for an original.
func (g *Gateway) InitiateMultipart(ctx context.Context, key, contentType string) (string, error) {
	return g.originals.InitiateMultipart(ctx, key, contentType)
}

// PresignUploadPart returns a presigned PUT URL for one part.
func (g *Gateway) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	return g.originals.PresignPart(ctx, key, uploadID, partNumber, g.cfg.PresignTTL)
}

// CompleteMultipart closes a multipart session. Parts must be sorted
// ascending by part number; storage services reject out-of-order or
// incomplete part lists.
func (g *Gateway) CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) error {
	return g.originals.CompleteMultipart(ctx, key, uploadID, parts)
}

// AbortMultipart abandons a multipart session.
func (g *Gateway) AbortMultipart(ctx context.Context, key, uploadID string) error {
	return g.originals.AbortMultipart(ctx, key, uploadID)
}

func uploadLocal(ctx context.Context, store BlobStore, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	if err := store.Upload(ctx, key, f, contentType); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PartsAscending reports whether parts are strictly ascending by part
// number, the order storage services require on completion.
func PartsAscending(parts []CompletedPart) bool {
	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return false
		}
	}
	return true
}
