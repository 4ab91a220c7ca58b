package simplemedia

import (
	"time"

	"github.com/google/uuid"
)

// MediaType classifies an uploaded asset. It is fixed at creation.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MediaStatus is the domain type for media lifecycle states.
type MediaStatus string

// Media status constants (typed).
const (
	MediaStatusPending    MediaStatus = "pending"
	MediaStatusProcessing MediaStatus = "processing"
	MediaStatusActive     MediaStatus = "active"
	MediaStatusFailed     MediaStatus = "failed"
	MediaStatusDead       MediaStatus = "dead"
	MediaStatusDeleted    MediaStatus = "deleted"
)

// MediaItem represents one uploaded asset and its derivatives.
//
// SourceKey points at the original, untransformed bytes in the private
// originals namespace and is never empty once the row exists. Derivative
// keys live in the public assets namespace and stay empty until processing
// completes. For video, SmallKey holds the extracted thumbnail frame.
type MediaItem struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	AlbumID     *uuid.UUID  `json:"album_id,omitempty"`
	Type        MediaType   `json:"type"`
	Status      MediaStatus `json:"status"`
	SourceKey   string      `json:"source_key"`
	SmallKey    string      `json:"small_key,omitempty"`
	MediumKey   string      `json:"medium_key,omitempty"`
	LargeKey    string      `json:"large_key,omitempty"`
	PlaybackKey string      `json:"playback_key,omitempty"`
	PreviewKey  string      `json:"preview_key,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Downloads   int64       `json:"downloads"`
	Attempts    int         `json:"attempts"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
}

// IsReady reports whether the item carries the derivative keys its type
// requires to be surfaced as active.
func (m *MediaItem) IsReady() bool {
	switch m.Type {
	case MediaTypeImage:
		return m.SmallKey != ""
	case MediaTypeVideo:
		return m.PlaybackKey != "" && m.PreviewKey != ""
	}
	return false
}

// DerivativeKeys returns every non-empty derivative key on the item.
func (m *MediaItem) DerivativeKeys() []string {
	var keys []string
	for _, k := range []string{m.SmallKey, m.MediumKey, m.LargeKey, m.PlaybackKey, m.PreviewKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Album groups media items uploaded together. It has no derivative keys of
// its own: its thumbnail is resolved from its first member ordered by
// (created_at, id).
type Album struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ProcessingEvent is the sole contract between anything that creates work
// and the processing worker. The bus guarantees at-least-once delivery, not
// at-most-once; the worker tolerates re-delivery by overwriting derivative
// keys.
type ProcessingEvent struct {
	MediaID   uuid.UUID `json:"media_id"`
	SourceKey string    `json:"source_key"`
	MimeType  string    `json:"mime_type"`
	MediaType MediaType `json:"media_type"`
}

// MediaProbe carries metadata probed from actual bytes, used for video
// duration validation.
type MediaProbe struct {
	Duration time.Duration
	Width    int
	Height   int
}
