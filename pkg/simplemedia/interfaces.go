package simplemedia

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage is the contract the pipeline requires of the object storage
// gateway. Two logical namespaces back it: a private originals area and a
// public assets area. Every call is independently retriable by its caller.
type Storage interface {
	// IssuePresignedPut returns a time-limited URL permitting a single PUT
	// of the original bytes. The key must already be reserved for exactly
	// one media item.
	IssuePresignedPut(ctx context.Context, key, contentType string, contentLength int64) (string, error)

	// UploadOriginal writes a local file into the originals namespace.
	UploadOriginal(ctx context.Context, key, localPath, contentType string) error

	// DownloadToLocal fetches an original into dir and returns the local
	// path. A missing key is a hard error, not a transient state.
	DownloadToLocal(ctx context.Context, key, dir string) (string, error)

	// UploadAsset writes a local file into the assets namespace.
	// Re-uploading the same key overwrites.
	UploadAsset(ctx context.Context, key, localPath, contentType string) error

	// DeleteKeys is a best-effort batch delete across both namespaces.
	// Missing keys are not errors; the caller must not assume atomicity.
	DeleteKeys(ctx context.Context, originalKeys, assetKeys []string) error

	// AssetURL returns a time-limited GET URL for a derivative in the
	// assets namespace.
	AssetURL(ctx context.Context, key string) (string, error)
}

// Repository defines persistence for media items, albums, and the tag
// vocabulary. WithTx runs fn against a transactional view; an error rolls
// the whole unit back.
type Repository interface {
	WithTx(ctx context.Context, fn func(Repository) error) error

	// Album operations
	CreateAlbum(ctx context.Context, album *Album) error
	GetAlbum(ctx context.Context, id uuid.UUID) (*Album, error)
	DeleteAlbum(ctx context.Context, id uuid.UUID) error

	// Media operations
	CreateMedia(ctx context.Context, item *MediaItem) error
	GetMedia(ctx context.Context, id uuid.UUID) (*MediaItem, error)
	// GetMediaWithDeleted also resolves soft-deleted rows, for purge and
	// administrative delete paths.
	GetMediaWithDeleted(ctx context.Context, id uuid.UUID) (*MediaItem, error)
	UpdateMedia(ctx context.Context, item *MediaItem) error
	DeleteMedia(ctx context.Context, id uuid.UUID) error
	ListMediaByOwner(ctx context.Context, ownerID uuid.UUID) ([]*MediaItem, error)
	// ListAlbumMembers returns members ordered by (created_at, id).
	ListAlbumMembers(ctx context.Context, albumID uuid.UUID, withDeleted bool) ([]*MediaItem, error)

	// Reconciliation queries
	ListRequeueCandidates(ctx context.Context, stalledBefore, leaseExpiredBefore time.Time) ([]*MediaItem, error)
	ListExpired(ctx context.Context, deletedBefore time.Time) ([]*MediaItem, error)

	// Tag vocabulary
	ResolveTags(ctx context.Context, names []string) ([]string, error)
	AddTag(ctx context.Context, name string) error
}

// EventBus is a fire-and-forget publisher of processing events.
// At-least-once delivery is assumed; at-most-once is not.
type EventBus interface {
	Publish(ctx context.Context, evt ProcessingEvent) error
}

// Resizer resizes an image to fit a bounding box on its long edge,
// preserving aspect ratio and never upscaling.
type Resizer interface {
	Resize(ctx context.Context, inputPath string, maxEdgePx int, outputPath string) error
}

// Transcoder is the black-box video tool: transcode to the standard
// playback format, extract a single frame, cut a clip, and probe duration
// metadata from actual bytes.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
	ExtractFrame(ctx context.Context, inputPath string, at time.Duration, outputPath string) error
	Clip(ctx context.Context, inputPath string, duration time.Duration, outputPath string) error
	Probe(ctx context.Context, inputPath string) (MediaProbe, error)
}
