package simplemedia

import "github.com/google/uuid"

// Request/Response DTOs

// IntakeMode selects how original bytes reach the originals namespace.
type IntakeMode string

const (
	// ModeServerReceived means the server already holds the bytes locally
	// and uploads them itself before emitting processing events.
	ModeServerReceived IntakeMode = "server"
	// ModeClientDirect means the client PUTs bytes to presigned URLs and
	// reports completion through MarkReady.
	ModeClientDirect IntakeMode = "client"
)

// IntakeFile describes one file in a batch.
type IntakeFile struct {
	FileName string
	MimeType string
	Size     int64
	// LocalPath is set in server-received mode only.
	LocalPath string
}

// CreateBatchRequest contains parameters for creating a batch of media
// items, optionally grouped into an album.
type CreateBatchRequest struct {
	OwnerID     uuid.UUID
	Type        MediaType
	Files       []IntakeFile
	Title       string
	Description string
	Tags        []string
	IsAlbum     bool
	Mode        IntakeMode
}

// PresignedUpload pairs a created media item with the URL the client PUTs
// its bytes to.
type PresignedUpload struct {
	MediaID   uuid.UUID `json:"media_id"`
	SourceKey string    `json:"source_key"`
	URL       string    `json:"url"`
}

// BatchResult is the outcome of a committed intake batch.
type BatchResult struct {
	Album   *Album            `json:"album,omitempty"`
	Items   []*MediaItem      `json:"items"`
	Uploads []PresignedUpload `json:"uploads,omitempty"`
}

// MarkReadyRequest reports that a client-direct transfer finished.
type MarkReadyRequest struct {
	OwnerID  uuid.UUID
	MediaIDs []uuid.UUID
}

// DeleteTarget identifies one entry in an administrative bulk delete.
type DeleteTarget struct {
	ID      uuid.UUID `json:"id"`
	IsAlbum bool      `json:"is_album"`
}

// BulkDeleteResult counts what an administrative bulk delete removed.
type BulkDeleteResult struct {
	Albums     int `json:"albums"`
	MediaItems int `json:"media_items"`
}

// PurgeResult counts what an expiry purge removed.
type PurgeResult struct {
	MediaItems int `json:"media_items"`
	Keys       int `json:"keys"`
}
