package simplemedia

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrMediaNotFound indicates a media item was not found
	ErrMediaNotFound = errors.New("media not found")

	// ErrAlbumNotFound indicates an album was not found
	ErrAlbumNotFound = errors.New("album not found")

	// ErrInvalidMediaStatus indicates a media item is not in a state valid
	// for the attempted operation
	ErrInvalidMediaStatus = errors.New("invalid media status")

	// ErrBatchTooLarge indicates the batch exceeds the file-count ceiling
	ErrBatchTooLarge = errors.New("batch exceeds file count limit")

	// ErrFileTooLarge indicates a file exceeds its per-type size ceiling
	ErrFileTooLarge = errors.New("file exceeds size limit")

	// ErrUnsupportedFormat indicates a declared MIME type outside the
	// allow-list
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrTypeMismatch indicates a file whose detected type differs from the
	// batch's declared type
	ErrTypeMismatch = errors.New("file type does not match batch type")

	// ErrDurationExceeded indicates a video longer than the duration ceiling
	ErrDurationExceeded = errors.New("video duration exceeds limit")

	// ErrNotOwner indicates the caller does not own the referenced item
	ErrNotOwner = errors.New("media not owned by caller")

	// ErrProcessingFailed indicates derivative generation failed
	ErrProcessingFailed = errors.New("processing failed")
)

// MediaError represents an error related to a media item operation
type MediaError struct {
	MediaID uuid.UUID
	Op      string
	Err     error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media operation %s failed for media %s: %v", e.Op, e.MediaID, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// ValidationError represents a per-file validation failure surfaced
// synchronously to the caller before any state is created.
type ValidationError struct {
	FileName string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %q: %v", e.FileName, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
