package simplemedia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
)

// service implements the Service interface
type service struct {
	repo       Repository
	store      Storage
	bus        EventBus
	transcoder Transcoder
	policy     Policy
	logger     *slog.Logger
	scratchDir string
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) { s.repo = repo }
}

// WithStorage sets the object storage gateway
func WithStorage(store Storage) Option {
	return func(s *service) { s.store = store }
}

// WithEventBus sets the processing event bus
func WithEventBus(bus EventBus) Option {
	return func(s *service) { s.bus = bus }
}

// WithTranscoder sets the probe/transcode tool used for video duration
// validation
func WithTranscoder(t Transcoder) Option {
	return func(s *service) { s.transcoder = t }
}

// WithPolicy sets the validation policy
func WithPolicy(p Policy) Option {
	return func(s *service) { s.policy = p }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *service) { s.logger = l }
}

// WithScratchDir sets the directory used for probe downloads
func WithScratchDir(dir string) Option {
	return func(s *service) { s.scratchDir = dir }
}

// NewService creates a new intake service with the given options
func NewService(options ...Option) (Service, error) {
	s := &service{
		policy:     DefaultPolicy(),
		logger:     slog.Default(),
		scratchDir: os.TempDir(),
	}
	for _, option := range options {
		option(s)
	}
	if s.repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if s.bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	return s, nil
}

func (s *service) CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResult, error) {
	if err := s.policy.ValidateBatch(req); err != nil {
		return nil, err
	}

	// Video duration is checked against actual bytes, so it can only run
	// here when the server already holds the file.
	if req.Mode == ModeServerReceived && req.Type == MediaTypeVideo {
		if s.transcoder == nil {
			return nil, fmt.Errorf("transcoder is required for video intake")
		}
		for _, f := range req.Files {
			probe, err := s.transcoder.Probe(ctx, f.LocalPath)
			if err != nil {
				return nil, &ValidationError{FileName: f.FileName, Err: fmt.Errorf("probe failed: %w", err)}
			}
			if err := s.policy.ValidateDuration(f.FileName, probe); err != nil {
				return nil, err
			}
		}
	}

	now := time.Now().UTC()
	result := &BatchResult{}

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		tags, err := tx.ResolveTags(ctx, req.Tags)
		if err != nil {
			return fmt.Errorf("resolve tags: %w", err)
		}

		var albumID *uuid.UUID
		if len(req.Files) > 1 || req.IsAlbum {
			album := &Album{
				ID:          uuid.New(),
				OwnerID:     req.OwnerID,
				Title:       req.Title,
				Description: req.Description,
				Tags:        tags,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.CreateAlbum(ctx, album); err != nil {
				return fmt.Errorf("create album: %w", err)
			}
			albumID = &album.ID
			result.Album = album
		}

		for _, f := range req.Files {
			id := uuid.New()
			item := &MediaItem{
				ID:          id,
				OwnerID:     req.OwnerID,
				AlbumID:     albumID,
				Type:        req.Type,
				Status:      MediaStatusPending,
				SourceKey:   objectkey.Source(id, f.FileName),
				Title:       req.Title,
				Description: req.Description,
				Tags:        tags,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.CreateMedia(ctx, item); err != nil {
				return &MediaError{MediaID: id, Op: "create", Err: err}
			}
			result.Items = append(result.Items, item)
		}
		return nil
	})
	if err != nil {
		result.Album = nil
		result.Items = nil
		return nil, err
	}

	// Everything past the commit is non-transactional by necessity: a
	// failure here leaves pending rows behind for the stalled sweep.
	switch req.Mode {
	case ModeClientDirect:
		for i, item := range result.Items {
			url, err := s.store.IssuePresignedPut(ctx, item.SourceKey, req.Files[i].MimeType, req.Files[i].Size)
			if err != nil {
				return nil, &MediaError{MediaID: item.ID, Op: "presign", Err: err}
			}
			result.Uploads = append(result.Uploads, PresignedUpload{
				MediaID:   item.ID,
				SourceKey: item.SourceKey,
				URL:       url,
			})
		}
	default:
		var errs []error
		for i, item := range result.Items {
			f := req.Files[i]
			if err := s.store.UploadOriginal(ctx, item.SourceKey, f.LocalPath, f.MimeType); err != nil {
				errs = append(errs, &MediaError{MediaID: item.ID, Op: "upload_original", Err: err})
				continue
			}
			if err := s.publish(ctx, item, f.MimeType); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return result, errors.Join(errs...)
		}
	}

	s.logger.Info("batch created",
		"owner_id", req.OwnerID,
		"items", len(result.Items),
		"album", result.Album != nil,
		"mode", req.Mode)
	return result, nil
}

func (s *service) MarkReady(ctx context.Context, req MarkReadyRequest) error {
	items := make([]*MediaItem, 0, len(req.MediaIDs))

	// Validate everything before flipping anything.
	for _, id := range req.MediaIDs {
		item, err := s.repo.GetMedia(ctx, id)
		if err != nil {
			return err
		}
		if item.OwnerID != req.OwnerID {
			return &MediaError{MediaID: id, Op: "mark_ready", Err: ErrNotOwner}
		}
		if item.Status != MediaStatusPending {
			return &MediaError{MediaID: id, Op: "mark_ready", Err: fmt.Errorf("%w: %s", ErrInvalidMediaStatus, item.Status)}
		}
		if item.Type == MediaTypeVideo {
			if err := s.probeUploaded(ctx, item); err != nil {
				return err
			}
		}
		items = append(items, item)
	}

	for _, item := range items {
		item.Status = MediaStatusProcessing
		item.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateMedia(ctx, item); err != nil {
			return &MediaError{MediaID: item.ID, Op: "mark_ready", Err: err}
		}
		if err := s.publish(ctx, item, mimeTypeFor(item)); err != nil {
			return err
		}
	}
	return nil
}

// probeUploaded validates video duration against the just-uploaded object.
func (s *service) probeUploaded(ctx context.Context, item *MediaItem) error {
	if s.transcoder == nil {
		return fmt.Errorf("transcoder is required for video intake")
	}
	dir, err := os.MkdirTemp(s.scratchDir, "probe-")
	if err != nil {
		return fmt.Errorf("create probe scratch: %w", err)
	}
	defer os.RemoveAll(dir)

	local, err := s.store.DownloadToLocal(ctx, item.SourceKey, dir)
	if err != nil {
		return &MediaError{MediaID: item.ID, Op: "probe", Err: err}
	}
	probe, err := s.transcoder.Probe(ctx, local)
	if err != nil {
		return &MediaError{MediaID: item.ID, Op: "probe", Err: err}
	}
	return s.policy.ValidateDuration(item.Title, probe)
}

func (s *service) GetMedia(ctx context.Context, ownerID, id uuid.UUID) (*MediaItem, error) {
	item, err := s.repo.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, ErrMediaNotFound
	}
	return item, nil
}

func (s *service) ListMedia(ctx context.Context, ownerID uuid.UUID) ([]*MediaItem, error) {
	items, err := s.repo.ListMediaByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	active := make([]*MediaItem, 0, len(items))
	for _, item := range items {
		if item.Status == MediaStatusActive {
			active = append(active, item)
		}
	}
	return active, nil
}

func (s *service) GetAlbum(ctx context.Context, ownerID, id uuid.UUID) (*AlbumView, error) {
	album, err := s.repo.GetAlbum(ctx, id)
	if err != nil {
		return nil, err
	}
	if album.OwnerID != ownerID {
		return nil, ErrAlbumNotFound
	}
	members, err := s.repo.ListAlbumMembers(ctx, id, false)
	if err != nil {
		return nil, err
	}
	view := &AlbumView{Album: album}
	for _, m := range members {
		if m.Status != MediaStatusActive {
			continue
		}
		view.Members = append(view.Members, m)
		// The thumbnail is always the first active member in creation
		// order; there is no stored representative flag.
		if view.ThumbnailKey == "" {
			view.ThumbnailKey = m.SmallKey
		}
	}
	return view, nil
}

func (s *service) IssueDownloadURL(ctx context.Context, ownerID, id uuid.UUID) (string, error) {
	item, err := s.GetMedia(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if item.Status != MediaStatusActive {
		return "", &MediaError{MediaID: id, Op: "download_url", Err: fmt.Errorf("%w: %s", ErrInvalidMediaStatus, item.Status)}
	}
	key := item.LargeKey
	if item.Type == MediaTypeVideo {
		key = item.PlaybackKey
	}
	if key == "" {
		key = item.SmallKey
	}
	url, err := s.store.AssetURL(ctx, key)
	if err != nil {
		return "", &MediaError{MediaID: id, Op: "download_url", Err: err}
	}
	item.Downloads++
	item.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateMedia(ctx, item); err != nil {
		s.logger.Warn("download counter update failed", "media_id", id, "error", err)
	}
	return url, nil
}

func (s *service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	item, err := s.GetMedia(ctx, ownerID, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	item.Status = MediaStatusDeleted
	item.DeletedAt = &now
	item.UpdatedAt = now
	if err := s.repo.UpdateMedia(ctx, item); err != nil {
		return &MediaError{MediaID: id, Op: "delete", Err: err}
	}
	s.logger.Info("media soft-deleted", "media_id", id, "owner_id", ownerID)
	return nil
}

func (s *service) publish(ctx context.Context, item *MediaItem, mimeType string) error {
	evt := ProcessingEvent{
		MediaID:   item.ID,
		SourceKey: item.SourceKey,
		MimeType:  mimeType,
		MediaType: item.Type,
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		return &MediaError{MediaID: item.ID, Op: "publish", Err: err}
	}
	return nil
}

func mimeTypeFor(item *MediaItem) string {
	if item.Type == MediaTypeVideo {
		return "video/mp4"
	}
	return "image/jpeg"
}
