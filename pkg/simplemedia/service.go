package simplemedia

import (
	"context"

	"github.com/google/uuid"
)

// Service is the intake surface of the pipeline: it validates batches,
// records intent transactionally, and hands work to the processing bus.
type Service interface {
	// CreateBatch validates a batch, creates (optionally) an album and N
	// pending media items in one transaction, and either emits processing
	// events (server-received mode) or returns presigned upload URLs
	// (client-direct mode).
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResult, error)

	// MarkReady completes a client-direct transfer: it re-validates
	// ownership and pending status, probes video duration against the
	// uploaded bytes, flips items to processing, and emits events.
	MarkReady(ctx context.Context, req MarkReadyRequest) error

	// GetMedia returns one item to its owner regardless of status, so
	// clients can poll processing progress.
	GetMedia(ctx context.Context, ownerID, id uuid.UUID) (*MediaItem, error)

	// ListMedia returns the owner's active items only.
	ListMedia(ctx context.Context, ownerID uuid.UUID) ([]*MediaItem, error)

	// GetAlbum returns an album with its active members and the resolved
	// thumbnail key (small key of the first member by creation order).
	GetAlbum(ctx context.Context, ownerID, id uuid.UUID) (*AlbumView, error)

	// IssueDownloadURL returns a time-limited URL for an active item's
	// primary derivative and increments its download counter.
	IssueDownloadURL(ctx context.Context, ownerID, id uuid.UUID) (string, error)

	// Delete soft-deletes an owner's item. Storage objects survive until
	// the retention purge; the item leaves all read paths immediately.
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

// AlbumView is an album joined with its surfaced members.
type AlbumView struct {
	Album        *Album       `json:"album"`
	Members      []*MediaItem `json:"members"`
	ThumbnailKey string       `json:"thumbnail_key,omitempty"`
}
