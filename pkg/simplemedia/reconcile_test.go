package simplemedia_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	repomemory "github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

type reconcilerFixture struct {
	reconciler *simplemedia.Reconciler
	repo       *repomemory.Repository
	bus        *recordingBus
	originals  *memorystorage.Backend
	assets     *memorystorage.Backend
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	repo := repomemory.New()
	gateway, originals, assets := newMemoryGateway()
	bus := &recordingBus{}
	return &reconcilerFixture{
		reconciler: simplemedia.NewReconciler(repo, gateway, bus, simplemedia.DefaultReconcilerConfig(), nil),
		repo:       repo,
		bus:        bus,
		originals:  originals,
		assets:     assets,
	}
}

type seedSpec struct {
	status    simplemedia.MediaStatus
	createdAt time.Time
	updatedAt time.Time
	attempts  int
	sourceKey string
	deletedAt *time.Time
	albumID   *uuid.UUID
	smallKey  string
}

func (f *reconcilerFixture) seed(t *testing.T, spec seedSpec) *simplemedia.MediaItem {
	t.Helper()
	ctx := context.Background()

	if spec.sourceKey == "" {
		spec.sourceKey = "ab/" + uuid.NewString() + "/original"
	}
	if spec.updatedAt.IsZero() {
		spec.updatedAt = spec.createdAt
	}
	item := &simplemedia.MediaItem{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		AlbumID:   spec.albumID,
		Type:      simplemedia.MediaTypeImage,
		Status:    spec.status,
		SourceKey: spec.sourceKey,
		SmallKey:  spec.smallKey,
		Attempts:  spec.attempts,
		CreatedAt: spec.createdAt,
		UpdatedAt: spec.updatedAt,
		DeletedAt: spec.deletedAt,
	}
	require.NoError(t, f.repo.CreateMedia(ctx, item))
	require.NoError(t, f.originals.Upload(ctx, item.SourceKey, readerOf("orig"), ""))
	if spec.smallKey != "" {
		require.NoError(t, f.assets.Upload(ctx, spec.smallKey, readerOf("small"), ""))
	}
	return item
}

func ago(d time.Duration) time.Time {
	return time.Now().UTC().Add(-d)
}

func TestSweepStalledSelectsOldPendingAndFailed(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	stalled := f.seed(t, seedSpec{status: simplemedia.MediaStatusPending, createdAt: ago(25 * time.Hour)})
	failed := f.seed(t, seedSpec{status: simplemedia.MediaStatusFailed, createdAt: ago(26 * time.Hour)})
	fresh := f.seed(t, seedSpec{status: simplemedia.MediaStatusPending, createdAt: ago(23 * time.Hour)})

	requeued, err := f.reconciler.SweepStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, requeued)
	assert.Len(t, f.bus.Events(), 2)

	for _, id := range []uuid.UUID{stalled.ID, failed.ID} {
		item, err := f.repo.GetMedia(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, simplemedia.MediaStatusProcessing, item.Status)
		assert.Equal(t, 1, item.Attempts)
	}

	// The 23h-old item is inside the stall window and untouched.
	item, err := f.repo.GetMedia(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, simplemedia.MediaStatusPending, item.Status)
	assert.Zero(t, item.Attempts)
}

func TestSweepStalledReclaimsExpiredProcessingLease(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	// Started long ago, last touched two hours ago: the worker is gone.
	abandoned := f.seed(t, seedSpec{
		status:    simplemedia.MediaStatusProcessing,
		createdAt: ago(3 * time.Hour),
		updatedAt: ago(2 * time.Hour),
	})
	// Touched recently: the lease is still live.
	active := f.seed(t, seedSpec{
		status:    simplemedia.MediaStatusProcessing,
		createdAt: ago(3 * time.Hour),
		updatedAt: ago(10 * time.Minute),
	})

	requeued, err := f.reconciler.SweepStalled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	events := f.bus.Events()
	require.Len(t, events, 1)
	assert.Equal(t, abandoned.ID, events[0].MediaID)

	item, err := f.repo.GetMedia(ctx, active.ID)
	require.NoError(t, err)
	assert.Zero(t, item.Attempts)
}

func TestSweepStalledMovesExhaustedItemsToDead(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	exhausted := f.seed(t, seedSpec{
		status:    simplemedia.MediaStatusFailed,
		createdAt: ago(25 * time.Hour),
		attempts:  simplemedia.DefaultReconcilerConfig().MaxAttempts,
	})

	requeued, err := f.reconciler.SweepStalled(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Empty(t, f.bus.Events())

	item, err := f.repo.GetMedia(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, simplemedia.MediaStatusDead, item.Status)
}

func TestSweepStalledSkipsItemsWithoutSource(t *testing.T) {
	f := newReconcilerFixture(t)

	item := f.seed(t, seedSpec{status: simplemedia.MediaStatusPending, createdAt: ago(25 * time.Hour)})
	item.SourceKey = ""
	require.NoError(t, f.repo.UpdateMedia(context.Background(), item))

	requeued, err := f.reconciler.SweepStalled(context.Background())
	require.NoError(t, err)
	assert.Zero(t, requeued)
}

func TestPurgeExpiredRemovesObjectsThenRows(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	retention := simplemedia.DefaultReconcilerConfig().Retention

	oldDelete := ago(retention + 24*time.Hour)
	expired := f.seed(t, seedSpec{
		status:    simplemedia.MediaStatusDeleted,
		createdAt: ago(retention + 48*time.Hour),
		deletedAt: &oldDelete,
		smallKey:  "assets/expired/small.jpg",
	})

	recentDelete := ago(5 * 24 * time.Hour)
	recent := f.seed(t, seedSpec{
		status:    simplemedia.MediaStatusDeleted,
		createdAt: ago(10 * 24 * time.Hour),
		deletedAt: &recentDelete,
		smallKey:  "assets/recent/small.jpg",
	})

	result, err := f.reconciler.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MediaItems)
	assert.Equal(t, 2, result.Keys) // source + one derivative

	// Expired item: row and objects gone.
	_, err = f.repo.GetMediaWithDeleted(ctx, expired.ID)
	assert.ErrorIs(t, err, simplemedia.ErrMediaNotFound)
	_, ok := f.originals.Object(expired.SourceKey)
	assert.False(t, ok)
	_, ok = f.assets.Object(expired.SmallKey)
	assert.False(t, ok)

	// Inside the retention window: untouched.
	_, err = f.repo.GetMediaWithDeleted(ctx, recent.ID)
	require.NoError(t, err)
	_, ok = f.originals.Object(recent.SourceKey)
	assert.True(t, ok)
}

func TestPurgeExpiredNoCandidates(t *testing.T) {
	f := newReconcilerFixture(t)
	result, err := f.reconciler.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.MediaItems)
}

func TestBulkDeleteResolvesAlbumsAndDeduplicates(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	album := &simplemedia.Album{ID: uuid.New(), OwnerID: uuid.New(), CreatedAt: ago(time.Hour), UpdatedAt: ago(time.Hour)}
	require.NoError(t, f.repo.CreateAlbum(ctx, album))

	deletedAt := ago(time.Hour)
	var members []*simplemedia.MediaItem
	for i := 0; i < 5; i++ {
		spec := seedSpec{
			status:    simplemedia.MediaStatusActive,
			createdAt: ago(time.Duration(10-i) * time.Hour),
			albumID:   &album.ID,
			smallKey:  "assets/member/" + uuid.NewString() + "/small.jpg",
		}
		// One member soft-deleted: still resolved and removed.
		if i == 4 {
			spec.status = simplemedia.MediaStatusDeleted
			spec.deletedAt = &deletedAt
		}
		members = append(members, f.seed(t, spec))
	}

	// The album plus one member listed explicitly: counted once.
	targets := []simplemedia.DeleteTarget{
		{ID: album.ID, IsAlbum: true},
		{ID: members[0].ID},
	}

	result, err := f.reconciler.BulkDelete(ctx, targets)
	require.NoError(t, err)
	assert.Equal(t, simplemedia.BulkDeleteResult{Albums: 1, MediaItems: 5}, result)

	_, err = f.repo.GetAlbum(ctx, album.ID)
	assert.ErrorIs(t, err, simplemedia.ErrAlbumNotFound)
	for _, m := range members {
		_, err := f.repo.GetMediaWithDeleted(ctx, m.ID)
		assert.ErrorIs(t, err, simplemedia.ErrMediaNotFound)
		_, ok := f.originals.Object(m.SourceKey)
		assert.False(t, ok)
		_, ok = f.assets.Object(m.SmallKey)
		assert.False(t, ok)
	}
}

func TestBulkDeleteUnknownItemFails(t *testing.T) {
	f := newReconcilerFixture(t)
	_, err := f.reconciler.BulkDelete(context.Background(), []simplemedia.DeleteTarget{{ID: uuid.New()}})
	assert.ErrorIs(t, err, simplemedia.ErrMediaNotFound)
}
