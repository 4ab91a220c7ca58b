package simplemedia_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	repomemory "github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
)

func TestServiceCreation(t *testing.T) {
	repo := repomemory.New()
	gateway, _, _ := newMemoryGateway()
	bus := &recordingBus{}

	tests := []struct {
		name        string
		options     []simplemedia.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     nil,
			expectError: true,
		},
		{
			name: "missing event bus should fail",
			options: []simplemedia.Option{
				simplemedia.WithRepository(repo),
				simplemedia.WithStorage(gateway),
			},
			expectError: true,
		},
		{
			name: "all collaborators should succeed",
			options: []simplemedia.Option{
				simplemedia.WithRepository(repo),
				simplemedia.WithStorage(gateway),
				simplemedia.WithEventBus(bus),
			},
			expectError: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simplemedia.NewService(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

type serviceFixture struct {
	svc       simplemedia.Service
	repo      *repomemory.Repository
	bus       *recordingBus
	originals interface{ Keys() []string }
}

func newServiceFixture(t *testing.T, opts ...simplemedia.Option) *serviceFixture {
	t.Helper()
	repo := repomemory.New()
	repo.SeedTags("vacation", "family")
	gateway, originals, _ := newMemoryGateway()
	bus := &recordingBus{}

	base := []simplemedia.Option{
		simplemedia.WithRepository(repo),
		simplemedia.WithStorage(gateway),
		simplemedia.WithEventBus(bus),
		simplemedia.WithTranscoder(&stubTranscoder{probe: simplemedia.MediaProbe{Duration: 30 * time.Second}}),
	}
	svc, err := simplemedia.NewService(append(base, opts...)...)
	require.NoError(t, err)
	return &serviceFixture{svc: svc, repo: repo, bus: bus, originals: originals}
}

func imageBatch(t *testing.T, owner uuid.UUID, mode simplemedia.IntakeMode, names ...string) simplemedia.CreateBatchRequest {
	t.Helper()
	req := simplemedia.CreateBatchRequest{
		OwnerID: owner,
		Type:    simplemedia.MediaTypeImage,
		Mode:    mode,
	}
	for _, name := range names {
		f := simplemedia.IntakeFile{FileName: name, MimeType: "image/jpeg", Size: 4}
		if mode == simplemedia.ModeServerReceived {
			f.LocalPath = writeLocalFile(t, name, "data")
		}
		req.Files = append(req.Files, f)
	}
	return req
}

func TestCreateBatchServerReceived(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()

	result, err := f.svc.CreateBatch(context.Background(), imageBatch(t, owner, simplemedia.ModeServerReceived, "a.jpg", "b.jpg", "c.jpg"))
	require.NoError(t, err)

	// More than one file means an album groups the batch.
	require.NotNil(t, result.Album)
	require.Len(t, result.Items, 3)
	assert.Empty(t, result.Uploads)

	for _, item := range result.Items {
		assert.Equal(t, simplemedia.MediaStatusPending, item.Status)
		assert.Equal(t, owner, item.OwnerID)
		require.NotNil(t, item.AlbumID)
		assert.Equal(t, result.Album.ID, *item.AlbumID)
		assert.NotEmpty(t, item.SourceKey)
	}

	// Originals are in place and one event per item is on the bus.
	assert.Len(t, f.originals.Keys(), 3)
	events := f.bus.Events()
	require.Len(t, events, 3)
	assert.Equal(t, result.Items[0].SourceKey, events[0].SourceKey)
}

func TestCreateBatchSingleFileHasNoAlbum(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.svc.CreateBatch(context.Background(), imageBatch(t, uuid.New(), simplemedia.ModeServerReceived, "only.jpg"))
	require.NoError(t, err)
	assert.Nil(t, result.Album)
	require.Len(t, result.Items, 1)
	assert.Nil(t, result.Items[0].AlbumID)
}

func TestCreateBatchSingleFileIsAlbumOnRequest(t *testing.T) {
	f := newServiceFixture(t)

	req := imageBatch(t, uuid.New(), simplemedia.ModeServerReceived, "only.jpg")
	req.IsAlbum = true
	result, err := f.svc.CreateBatch(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, result.Album)
}

func TestCreateBatchClientDirectReturnsPresignedURLs(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.svc.CreateBatch(context.Background(), imageBatch(t, uuid.New(), simplemedia.ModeClientDirect, "a.jpg", "b.jpg"))
	require.NoError(t, err)

	require.Len(t, result.Uploads, 2)
	for i, u := range result.Uploads {
		assert.Equal(t, result.Items[i].ID, u.MediaID)
		assert.Equal(t, result.Items[i].SourceKey, u.SourceKey)
		assert.True(t, strings.HasPrefix(u.URL, "memory://put/"))
	}

	// Nothing reaches the bus until the client reports readiness.
	assert.Empty(t, f.bus.Events())
	assert.Empty(t, f.originals.Keys())
}

func TestCreateBatchDropsUnknownTags(t *testing.T) {
	f := newServiceFixture(t)

	req := imageBatch(t, uuid.New(), simplemedia.ModeClientDirect, "a.jpg", "b.jpg")
	req.Tags = []string{"vacation", "unknown-tag", "family"}
	result, err := f.svc.CreateBatch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"vacation", "family"}, result.Album.Tags)
	assert.Equal(t, []string{"vacation", "family"}, result.Items[0].Tags)
}

func TestCreateBatchValidationLeavesNoState(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()

	req := imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg")
	req.Files = append(req.Files, simplemedia.IntakeFile{FileName: "b.mp4", MimeType: "video/mp4", Size: 4})
	_, err := f.svc.CreateBatch(context.Background(), req)
	require.ErrorIs(t, err, simplemedia.ErrTypeMismatch)

	items, err := f.svc.ListMedia(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, items)
}

// flakyRepo fails the Nth CreateMedia call, including inside transactions.
type flakyRepo struct {
	simplemedia.Repository
	failOn int
	calls  *int
}

func (f *flakyRepo) WithTx(ctx context.Context, fn func(simplemedia.Repository) error) error {
	return f.Repository.WithTx(ctx, func(tx simplemedia.Repository) error {
		return fn(&flakyRepo{Repository: tx, failOn: f.failOn, calls: f.calls})
	})
}

func (f *flakyRepo) CreateMedia(ctx context.Context, item *simplemedia.MediaItem) error {
	*f.calls++
	if *f.calls == f.failOn {
		return errors.New("injected insert failure")
	}
	return f.Repository.CreateMedia(ctx, item)
}

func TestCreateBatchIsAtomic(t *testing.T) {
	inner := repomemory.New()
	gateway, _, _ := newMemoryGateway()
	bus := &recordingBus{}
	calls := 0
	repo := &flakyRepo{Repository: inner, failOn: 3, calls: &calls}

	svc, err := simplemedia.NewService(
		simplemedia.WithRepository(repo),
		simplemedia.WithStorage(gateway),
		simplemedia.WithEventBus(bus),
	)
	require.NoError(t, err)

	owner := uuid.New()
	_, err = svc.CreateBatch(context.Background(), imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg", "b.jpg", "c.jpg"))
	require.Error(t, err)

	// The failed last insert rolled back the album and the earlier items.
	items, err := inner.ListMediaByOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, bus.Events())
}

func TestMarkReady(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg", "b.jpg"))
	require.NoError(t, err)
	ids := []uuid.UUID{result.Items[0].ID, result.Items[1].ID}

	require.NoError(t, f.svc.MarkReady(ctx, simplemedia.MarkReadyRequest{OwnerID: owner, MediaIDs: ids}))

	for _, id := range ids {
		item, err := f.svc.GetMedia(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, simplemedia.MediaStatusProcessing, item.Status)
	}
	assert.Len(t, f.bus.Events(), 2)
}

func TestMarkReadyRejectsForeignOwner(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, uuid.New(), simplemedia.ModeClientDirect, "a.jpg"))
	require.NoError(t, err)

	err = f.svc.MarkReady(ctx, simplemedia.MarkReadyRequest{
		OwnerID:  uuid.New(),
		MediaIDs: []uuid.UUID{result.Items[0].ID},
	})
	assert.ErrorIs(t, err, simplemedia.ErrNotOwner)
	assert.Empty(t, f.bus.Events())
}

func TestMarkReadyRejectsNonPending(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg"))
	require.NoError(t, err)
	id := result.Items[0].ID

	req := simplemedia.MarkReadyRequest{OwnerID: owner, MediaIDs: []uuid.UUID{id}}
	require.NoError(t, f.svc.MarkReady(ctx, req))

	// Second report for the same item: no longer pending.
	err = f.svc.MarkReady(ctx, req)
	assert.ErrorIs(t, err, simplemedia.ErrInvalidMediaStatus)
}

func TestGetMediaScopedToOwner(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg"))
	require.NoError(t, err)
	id := result.Items[0].ID

	// The owner can poll any status, here pending.
	item, err := f.svc.GetMedia(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, simplemedia.MediaStatusPending, item.Status)

	// Anyone else sees nothing.
	_, err = f.svc.GetMedia(ctx, uuid.New(), id)
	assert.ErrorIs(t, err, simplemedia.ErrMediaNotFound)
}

func TestListMediaReturnsActiveOnly(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg", "b.jpg"))
	require.NoError(t, err)

	activate(t, f.repo, result.Items[0].ID)

	items, err := f.svc.ListMedia(ctx, owner)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, result.Items[0].ID, items[0].ID)
}

func TestGetAlbumResolvesThumbnailFromFirstActiveMember(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg", "b.jpg", "c.jpg"))
	require.NoError(t, err)

	// Items created in one transaction share a timestamp; stagger them so
	// creation order is deterministic for the ordering assertion.
	for i, it := range result.Items {
		item, err := f.repo.GetMedia(ctx, it.ID)
		require.NoError(t, err)
		item.CreatedAt = item.CreatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, f.repo.UpdateMedia(ctx, item))
	}

	// First member still pending; second and third active.
	activate(t, f.repo, result.Items[1].ID)
	activate(t, f.repo, result.Items[2].ID)

	view, err := f.svc.GetAlbum(ctx, owner, result.Album.ID)
	require.NoError(t, err)
	require.Len(t, view.Members, 2)
	assert.Equal(t, result.Items[1].ID, view.Members[0].ID)
	assert.Equal(t, view.Members[0].SmallKey, view.ThumbnailKey)
}

func TestIssueDownloadURL(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg"))
	require.NoError(t, err)
	id := result.Items[0].ID

	t.Run("pending item is refused", func(t *testing.T) {
		_, err := f.svc.IssueDownloadURL(ctx, owner, id)
		assert.ErrorIs(t, err, simplemedia.ErrInvalidMediaStatus)
	})

	activate(t, f.repo, id)

	t.Run("active item gets a URL and a counted download", func(t *testing.T) {
		url, err := f.svc.IssueDownloadURL(ctx, owner, id)
		require.NoError(t, err)
		assert.NotEmpty(t, url)

		item, err := f.svc.GetMedia(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), item.Downloads)
	})
}

func TestDeleteSoftDeletes(t *testing.T) {
	f := newServiceFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	result, err := f.svc.CreateBatch(ctx, imageBatch(t, owner, simplemedia.ModeClientDirect, "a.jpg"))
	require.NoError(t, err)
	id := result.Items[0].ID

	require.NoError(t, f.svc.Delete(ctx, owner, id))

	// Gone from every read path, but the row survives for the purge window.
	_, err = f.svc.GetMedia(ctx, owner, id)
	assert.ErrorIs(t, err, simplemedia.ErrMediaNotFound)

	item, err := f.repo.GetMediaWithDeleted(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, simplemedia.MediaStatusDeleted, item.Status)
	require.NotNil(t, item.DeletedAt)
}

// activate flips an item to active with a derivative key, simulating a
// completed processing run.
func activate(t *testing.T, repo *repomemory.Repository, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	item, err := repo.GetMedia(ctx, id)
	require.NoError(t, err)
	item.Status = simplemedia.MediaStatusActive
	item.SmallKey = "assets/" + id.String() + "/small.jpg"
	item.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpdateMedia(ctx, item))
}
