// Package media implements the derivative generators: an image resizer on
// top of disintegration/imaging and a video transcoder/prober driving the
// ffmpeg and ffprobe binaries.
package media

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

// ImagingResizer resizes images with Lanczos resampling. Fit scales down
// to the bounding box preserving aspect ratio and never upscales, which is
// exactly the derivative contract.
type ImagingResizer struct {
	// Quality is the JPEG encode quality (1-100).
	Quality int
}

// NewImagingResizer returns a resizer with the default encode quality.
func NewImagingResizer() *ImagingResizer {
	return &ImagingResizer{Quality: 85}
}

// Resize fits the image into a maxEdgePx square bounding box and writes a
// JPEG to outputPath. Deterministic for a given input and edge.
func (r *ImagingResizer) Resize(ctx context.Context, inputPath string, maxEdgePx int, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}

	fitted := imaging.Fit(img, maxEdgePx, maxEdgePx, imaging.Lanczos)

	if err := imaging.Save(fitted, outputPath, imaging.JPEGQuality(r.Quality)); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}
