package simplemedia

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

// WorkerConfig holds the processing parameters. Immutable after
// construction.
type WorkerConfig struct {
	// ScratchDir is the root for per-invocation scratch directories.
	ScratchDir string
	// ImageEdges are the bounding-box long edges generated for images,
	// largest first.
	ImageEdges [3]int
	// ThumbnailAt is the video frame extraction offset.
	ThumbnailAt time.Duration
	// PreviewDuration is the length of the silent preview clip.
	PreviewDuration time.Duration
}

// DefaultWorkerConfig returns the production processing parameters.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ScratchDir:      os.TempDir(),
		ImageEdges:      [3]int{1920, 1080, 640},
		ThumbnailAt:     time.Second,
		PreviewDuration: 5 * time.Second,
	}
}

// Worker turns processing events into derivative assets and drives the
// media state machine: pending -> processing -> active or failed.
//
// The worker is triggered in-process with no cross-instance deduplication;
// concurrent re-delivery of one event is possible and tolerated. Each run
// writes under a fresh per-item derivative prefix and the last writer wins.
type Worker struct {
	repo       Repository
	store      Storage
	resizer    Resizer
	transcoder Transcoder
	cfg        WorkerConfig
	logger     *slog.Logger
}

// NewWorker creates a processing worker.
func NewWorker(repo Repository, store Storage, resizer Resizer, transcoder Transcoder, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		repo:       repo,
		store:      store,
		resizer:    resizer,
		transcoder: transcoder,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process handles one event end to end. On any failure after the status
// flip the item moves to failed; the original is preserved and no retry
// happens within this invocation. Scratch files are removed on every exit
// path.
func (w *Worker) Process(ctx context.Context, evt ProcessingEvent) error {
	item, err := w.repo.GetMedia(ctx, evt.MediaID)
	if err != nil {
		return &MediaError{MediaID: evt.MediaID, Op: "process", Err: err}
	}

	item.Status = MediaStatusProcessing
	item.UpdatedAt = time.Now().UTC()
	if err := w.repo.UpdateMedia(ctx, item); err != nil {
		return &MediaError{MediaID: evt.MediaID, Op: "process", Err: err}
	}

	// Scratch path is exclusive to this invocation: item id + timestamp.
	scratch := filepath.Join(w.cfg.ScratchDir, fmt.Sprintf("%s-%d", evt.MediaID, time.Now().UnixNano()))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return w.fail(ctx, item, fmt.Errorf("create scratch: %w", err))
	}
	defer os.RemoveAll(scratch)

	local, err := w.store.DownloadToLocal(ctx, evt.SourceKey, scratch)
	if err != nil {
		return w.fail(ctx, item, fmt.Errorf("download original: %w", err))
	}

	prefix := objectkey.DerivativePrefix(item.ID)

	switch item.Type {
	case MediaTypeImage:
		err = w.processImage(ctx, item, local, scratch, prefix)
	case MediaTypeVideo:
		err = w.processVideo(ctx, item, local, scratch, prefix)
	default:
		err = fmt.Errorf("unknown media type %q", item.Type)
	}
	if err != nil {
		return w.fail(ctx, item, err)
	}

	item.Status = MediaStatusActive
	item.UpdatedAt = time.Now().UTC()
	if err := w.repo.UpdateMedia(ctx, item); err != nil {
		return &MediaError{MediaID: item.ID, Op: "process", Err: err}
	}
	w.logger.Info("media processed", "media_id", item.ID, "type", item.Type)
	return nil
}

// processImage fans out three concurrent resizes, each uploading its result
// independently.
func (w *Worker) processImage(ctx context.Context, item *MediaItem, local, scratch, prefix string) error {
	names := [3]string{"large.jpg", "medium.jpg", "small.jpg"}
	keys := [3]string{}

	g, gctx := errgroup.WithContext(ctx)
	for i := range w.cfg.ImageEdges {
		i := i
		g.Go(func() error {
			out := filepath.Join(scratch, names[i])
			if err := w.resizer.Resize(gctx, local, w.cfg.ImageEdges[i], out); err != nil {
				return fmt.Errorf("resize %d: %w", w.cfg.ImageEdges[i], err)
			}
			key := objectkey.Derivative(prefix, names[i])
			if err := w.store.UploadAsset(gctx, key, out, "image/jpeg"); err != nil {
				return fmt.Errorf("upload %s: %w", names[i], err)
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	item.LargeKey = keys[0]
	item.MediumKey = keys[1]
	item.SmallKey = keys[2]
	return nil
}

// processVideo runs transcode, thumbnail extraction, and preview cut
// sequentially (they contend for the decode of one input), then uploads the
// three outputs concurrently.
func (w *Worker) processVideo(ctx context.Context, item *MediaItem, local, scratch, prefix string) error {
	playback := filepath.Join(scratch, "playback.mp4")
	thumb := filepath.Join(scratch, "thumb.jpg")
	preview := filepath.Join(scratch, "preview.mp4")

	if err := w.transcoder.Transcode(ctx, local, playback); err != nil {
		return fmt.Errorf("transcode: %w", err)
	}
	if err := w.transcoder.ExtractFrame(ctx, local, w.cfg.ThumbnailAt, thumb); err != nil {
		return fmt.Errorf("extract frame: %w", err)
	}
	if err := w.transcoder.Clip(ctx, local, w.cfg.PreviewDuration, preview); err != nil {
		return fmt.Errorf("cut preview: %w", err)
	}

	uploads := []struct {
		name, path, contentType string
		dst                     *string
	}{
		{"playback.mp4", playback, "video/mp4", &item.PlaybackKey},
		{"thumb.jpg", thumb, "image/jpeg", &item.SmallKey},
		{"preview.mp4", preview, "video/mp4", &item.PreviewKey},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		u := u
		g.Go(func() error {
			key := objectkey.Derivative(prefix, u.name)
			if err := w.store.UploadAsset(gctx, key, u.path, u.contentType); err != nil {
				return fmt.Errorf("upload %s: %w", u.name, err)
			}
			*u.dst = key
			return nil
		})
	}
	return g.Wait()
}

// fail moves the item to failed and preserves the original. The returned
// error wraps the cause for the bus/caller.
func (w *Worker) fail(ctx context.Context, item *MediaItem, cause error) error {
	item.Status = MediaStatusFailed
	item.UpdatedAt = time.Now().UTC()
	if err := w.repo.UpdateMedia(ctx, item); err != nil {
		w.logger.Error("failed to record processing failure", "media_id", item.ID, "error", err)
	}
	w.logger.Warn("media processing failed", "media_id", item.ID, "error", cause)
	return &MediaError{MediaID: item.ID, Op: "process", Err: fmt.Errorf("%w: %v", ErrProcessingFailed, cause)}
}
