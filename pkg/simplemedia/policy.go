package simplemedia

import (
	"fmt"
	"time"
)

// Policy holds the validation ceilings applied before any database write.
// It is immutable once constructed; tests inject boundary values directly.
type Policy struct {
	MaxFilesPerBatch int
	MaxImageBytes    int64
	MaxVideoBytes    int64
	MaxVideoDuration time.Duration
	ImageMimeTypes   []string
	VideoMimeTypes   []string
}

// DefaultPolicy returns the production ceilings.
func DefaultPolicy() Policy {
	return Policy{
		MaxFilesPerBatch: 50,
		MaxImageBytes:    25 << 20,  // 25 MiB
		MaxVideoBytes:    500 << 20, // 500 MiB
		MaxVideoDuration: 10 * time.Minute,
		ImageMimeTypes:   []string{"image/jpeg", "image/png", "image/webp"},
		VideoMimeTypes:   []string{"video/mp4", "video/quicktime", "video/webm"},
	}
}

// DetectType maps a declared MIME type onto a media type. Formats outside
// the allow-list (bmp, tiff, gif, everything else) are rejected.
func (p Policy) DetectType(mimeType string) (MediaType, error) {
	for _, m := range p.ImageMimeTypes {
		if m == mimeType {
			return MediaTypeImage, nil
		}
	}
	for _, m := range p.VideoMimeTypes {
		if m == mimeType {
			return MediaTypeVideo, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
}

// ValidateBatch checks the batch against the policy: file-count ceiling,
// per-type size ceilings, MIME allow-list, and type consistency against the
// declared batch type. Video duration is validated separately, against
// actual bytes.
func (p Policy) ValidateBatch(req CreateBatchRequest) error {
	if len(req.Files) == 0 {
		return &ValidationError{Err: fmt.Errorf("batch contains no files")}
	}
	if len(req.Files) > p.MaxFilesPerBatch {
		return &ValidationError{Err: fmt.Errorf("%w: %d files, limit %d", ErrBatchTooLarge, len(req.Files), p.MaxFilesPerBatch)}
	}
	if req.Type != MediaTypeImage && req.Type != MediaTypeVideo {
		return &ValidationError{Err: fmt.Errorf("unknown batch type %q", req.Type)}
	}

	for _, f := range req.Files {
		detected, err := p.DetectType(f.MimeType)
		if err != nil {
			return &ValidationError{FileName: f.FileName, Err: err}
		}
		if detected != req.Type {
			return &ValidationError{FileName: f.FileName, Err: fmt.Errorf("%w: detected %s, batch declares %s", ErrTypeMismatch, detected, req.Type)}
		}

		limit := p.MaxImageBytes
		if detected == MediaTypeVideo {
			limit = p.MaxVideoBytes
		}
		if f.Size > limit {
			return &ValidationError{FileName: f.FileName, Err: fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, f.Size, limit)}
		}
	}
	return nil
}

// ValidateDuration checks a probed video duration against the ceiling.
func (p Policy) ValidateDuration(fileName string, probe MediaProbe) error {
	if probe.Duration > p.MaxVideoDuration {
		return &ValidationError{FileName: fileName, Err: fmt.Errorf("%w: %s, limit %s", ErrDurationExceeded, probe.Duration, p.MaxVideoDuration)}
	}
	return nil
}
