package simplemedia_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	repomemory "github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

type workerFixture struct {
	worker    *simplemedia.Worker
	repo      *repomemory.Repository
	originals *memorystorage.Backend
	assets    *memorystorage.Backend
	scratch   string
}

func newWorkerFixture(t *testing.T, resizer simplemedia.Resizer, transcoder simplemedia.Transcoder) *workerFixture {
	t.Helper()
	repo := repomemory.New()
	gateway, originals, assets := newMemoryGateway()

	scratch := t.TempDir()
	cfg := simplemedia.DefaultWorkerConfig()
	cfg.ScratchDir = scratch

	return &workerFixture{
		worker:    simplemedia.NewWorker(repo, gateway, resizer, transcoder, cfg, nil),
		repo:      repo,
		originals: originals,
		assets:    assets,
		scratch:   scratch,
	}
}

// seedItem creates a pending item whose original is already in place.
func (f *workerFixture) seedItem(t *testing.T, mediaType simplemedia.MediaType) *simplemedia.MediaItem {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	item := &simplemedia.MediaItem{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Type:      mediaType,
		Status:    simplemedia.MediaStatusPending,
		SourceKey: "ab/" + uuid.NewString() + "/original",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.repo.CreateMedia(ctx, item))
	require.NoError(t, f.originals.Upload(ctx, item.SourceKey, readerOf("source bytes"), "application/octet-stream"))
	return item
}

func (f *workerFixture) event(item *simplemedia.MediaItem) simplemedia.ProcessingEvent {
	return simplemedia.ProcessingEvent{
		MediaID:   item.ID,
		SourceKey: item.SourceKey,
		MediaType: item.Type,
	}
}

func (f *workerFixture) reload(t *testing.T, id uuid.UUID) *simplemedia.MediaItem {
	t.Helper()
	item, err := f.repo.GetMedia(context.Background(), id)
	require.NoError(t, err)
	return item
}

func TestProcessImageGeneratesThreeDerivatives(t *testing.T) {
	f := newWorkerFixture(t, &copyResizer{}, &stubTranscoder{})
	item := f.seedItem(t, simplemedia.MediaTypeImage)

	require.NoError(t, f.worker.Process(context.Background(), f.event(item)))

	got := f.reload(t, item.ID)
	assert.Equal(t, simplemedia.MediaStatusActive, got.Status)
	assert.NotEmpty(t, got.LargeKey)
	assert.NotEmpty(t, got.MediumKey)
	assert.NotEmpty(t, got.SmallKey)
	assert.Empty(t, got.PlaybackKey)
	assert.True(t, got.IsReady())

	// All three derivatives landed in the assets namespace.
	for _, key := range []string{got.LargeKey, got.MediumKey, got.SmallKey} {
		_, ok := f.assets.Object(key)
		assert.True(t, ok, "missing asset %s", key)
	}
}

func TestProcessVideoGeneratesPlaybackThumbnailPreview(t *testing.T) {
	f := newWorkerFixture(t, &copyResizer{}, &stubTranscoder{})
	item := f.seedItem(t, simplemedia.MediaTypeVideo)

	require.NoError(t, f.worker.Process(context.Background(), f.event(item)))

	got := f.reload(t, item.ID)
	assert.Equal(t, simplemedia.MediaStatusActive, got.Status)
	assert.NotEmpty(t, got.PlaybackKey)
	assert.NotEmpty(t, got.SmallKey)
	assert.NotEmpty(t, got.PreviewKey)
	assert.True(t, got.IsReady())

	for _, key := range []string{got.PlaybackKey, got.SmallKey, got.PreviewKey} {
		_, ok := f.assets.Object(key)
		assert.True(t, ok, "missing asset %s", key)
	}
}

func TestProcessFailureMovesToFailedAndKeepsOriginal(t *testing.T) {
	f := newWorkerFixture(t, &copyResizer{err: errors.New("decode failed")}, &stubTranscoder{})
	item := f.seedItem(t, simplemedia.MediaTypeImage)

	err := f.worker.Process(context.Background(), f.event(item))
	require.Error(t, err)
	assert.ErrorIs(t, err, simplemedia.ErrProcessingFailed)

	got := f.reload(t, item.ID)
	assert.Equal(t, simplemedia.MediaStatusFailed, got.Status)
	assert.Empty(t, got.DerivativeKeys())

	// The original stays for manual inspection and later requeues.
	_, ok := f.originals.Object(item.SourceKey)
	assert.True(t, ok)
}

func TestProcessMissingOriginalFails(t *testing.T) {
	f := newWorkerFixture(t, &copyResizer{}, &stubTranscoder{})
	item := f.seedItem(t, simplemedia.MediaTypeImage)
	require.NoError(t, f.originals.Delete(context.Background(), item.SourceKey))

	err := f.worker.Process(context.Background(), f.event(item))
	require.Error(t, err)
	assert.Equal(t, simplemedia.MediaStatusFailed, f.reload(t, item.ID).Status)
}

func TestProcessCleansScratchOnEveryPath(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newWorkerFixture(t, &copyResizer{}, &stubTranscoder{})
		item := f.seedItem(t, simplemedia.MediaTypeImage)
		require.NoError(t, f.worker.Process(context.Background(), f.event(item)))
		assertEmptyDir(t, f.scratch)
	})

	t.Run("failure", func(t *testing.T) {
		f := newWorkerFixture(t, &copyResizer{err: errors.New("boom")}, &stubTranscoder{})
		item := f.seedItem(t, simplemedia.MediaTypeImage)
		require.Error(t, f.worker.Process(context.Background(), f.event(item)))
		assertEmptyDir(t, f.scratch)
	})
}

func TestProcessToleratesRedelivery(t *testing.T) {
	f := newWorkerFixture(t, &copyResizer{}, &stubTranscoder{})
	item := f.seedItem(t, simplemedia.MediaTypeImage)
	evt := f.event(item)
	ctx := context.Background()

	require.NoError(t, f.worker.Process(ctx, evt))
	first := f.reload(t, item.ID)

	// Redelivery of the same event reprocesses under a fresh generation;
	// last writer wins and the item stays consistent.
	require.NoError(t, f.worker.Process(ctx, evt))
	second := f.reload(t, item.ID)

	assert.Equal(t, simplemedia.MediaStatusActive, second.Status)
	assert.NotEqual(t, first.SmallKey, second.SmallKey)
	for _, key := range second.DerivativeKeys() {
		_, ok := f.assets.Object(key)
		assert.True(t, ok)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
