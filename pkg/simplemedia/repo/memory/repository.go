// Package memory provides an in-memory repository for tests and
// development. WithTx gives real rollback semantics: mutations run against
// a deep copy of the state and are swapped in only when fn succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

type state struct {
	albums map[uuid.UUID]*simplemedia.Album
	media  map[uuid.UUID]*simplemedia.MediaItem
	tags   map[string]bool
}

func newState() *state {
	return &state{
		albums: make(map[uuid.UUID]*simplemedia.Album),
		media:  make(map[uuid.UUID]*simplemedia.MediaItem),
		tags:   make(map[string]bool),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, a := range s.albums {
		c.albums[id] = cloneAlbum(a)
	}
	for id, m := range s.media {
		c.media[id] = cloneMedia(m)
	}
	for name := range s.tags {
		c.tags[name] = true
	}
	return c
}

// Repository is an in-memory simplemedia.Repository.
type Repository struct {
	mu sync.RWMutex
	st *state
	// tx marks a transactional view; views share the outer lock by never
	// taking it themselves.
	tx bool
}

// New creates an empty in-memory repository.
func New() *Repository {
	return &Repository{st: newState()}
}

// SeedTags adds names to the tag vocabulary.
func (r *Repository) SeedTags(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		r.st.tags[n] = true
	}
}

// WithTx runs fn against a cloned view and swaps it in only on success, so
// a failing fn leaves the repository untouched.
func (r *Repository) WithTx(ctx context.Context, fn func(simplemedia.Repository) error) error {
	if r.tx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	view := &Repository{st: r.st.clone(), tx: true}
	if err := fn(view); err != nil {
		return err
	}
	r.st = view.st
	return nil
}

func (r *Repository) lock() func() {
	if r.tx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *Repository) rlock() func() {
	if r.tx {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

func (r *Repository) CreateAlbum(ctx context.Context, album *simplemedia.Album) error {
	defer r.lock()()
	r.st.albums[album.ID] = cloneAlbum(album)
	return nil
}

func (r *Repository) GetAlbum(ctx context.Context, id uuid.UUID) (*simplemedia.Album, error) {
	defer r.rlock()()
	a, ok := r.st.albums[id]
	if !ok || a.DeletedAt != nil {
		return nil, simplemedia.ErrAlbumNotFound
	}
	return cloneAlbum(a), nil
}

func (r *Repository) DeleteAlbum(ctx context.Context, id uuid.UUID) error {
	defer r.lock()()
	if _, ok := r.st.albums[id]; !ok {
		return simplemedia.ErrAlbumNotFound
	}
	delete(r.st.albums, id)
	return nil
}

func (r *Repository) CreateMedia(ctx context.Context, item *simplemedia.MediaItem) error {
	defer r.lock()()
	r.st.media[item.ID] = cloneMedia(item)
	return nil
}

func (r *Repository) GetMedia(ctx context.Context, id uuid.UUID) (*simplemedia.MediaItem, error) {
	defer r.rlock()()
	m, ok := r.st.media[id]
	if !ok || m.DeletedAt != nil {
		return nil, simplemedia.ErrMediaNotFound
	}
	return cloneMedia(m), nil
}

func (r *Repository) GetMediaWithDeleted(ctx context.Context, id uuid.UUID) (*simplemedia.MediaItem, error) {
	defer r.rlock()()
	m, ok := r.st.media[id]
	if !ok {
		return nil, simplemedia.ErrMediaNotFound
	}
	return cloneMedia(m), nil
}

func (r *Repository) UpdateMedia(ctx context.Context, item *simplemedia.MediaItem) error {
	defer r.lock()()
	if _, ok := r.st.media[item.ID]; !ok {
		return simplemedia.ErrMediaNotFound
	}
	r.st.media[item.ID] = cloneMedia(item)
	return nil
}

func (r *Repository) DeleteMedia(ctx context.Context, id uuid.UUID) error {
	defer r.lock()()
	if _, ok := r.st.media[id]; !ok {
		return simplemedia.ErrMediaNotFound
	}
	delete(r.st.media, id)
	return nil
}

func (r *Repository) ListMediaByOwner(ctx context.Context, ownerID uuid.UUID) ([]*simplemedia.MediaItem, error) {
	defer r.rlock()()
	var items []*simplemedia.MediaItem
	for _, m := range r.st.media {
		if m.OwnerID == ownerID && m.DeletedAt == nil {
			items = append(items, cloneMedia(m))
		}
	}
	sortByCreation(items)
	return items, nil
}

func (r *Repository) ListAlbumMembers(ctx context.Context, albumID uuid.UUID, withDeleted bool) ([]*simplemedia.MediaItem, error) {
	defer r.rlock()()
	var items []*simplemedia.MediaItem
	for _, m := range r.st.media {
		if m.AlbumID == nil || *m.AlbumID != albumID {
			continue
		}
		if m.DeletedAt != nil && !withDeleted {
			continue
		}
		items = append(items, cloneMedia(m))
	}
	sortByCreation(items)
	return items, nil
}

func (r *Repository) ListRequeueCandidates(ctx context.Context, stalledBefore, leaseExpiredBefore time.Time) ([]*simplemedia.MediaItem, error) {
	defer r.rlock()()
	var items []*simplemedia.MediaItem
	for _, m := range r.st.media {
		if m.DeletedAt != nil {
			continue
		}
		switch m.Status {
		case simplemedia.MediaStatusPending, simplemedia.MediaStatusFailed:
			if m.CreatedAt.Before(stalledBefore) {
				items = append(items, cloneMedia(m))
			}
		case simplemedia.MediaStatusProcessing:
			if m.UpdatedAt.Before(leaseExpiredBefore) {
				items = append(items, cloneMedia(m))
			}
		}
	}
	sortByCreation(items)
	return items, nil
}

func (r *Repository) ListExpired(ctx context.Context, deletedBefore time.Time) ([]*simplemedia.MediaItem, error) {
	defer r.rlock()()
	var items []*simplemedia.MediaItem
	for _, m := range r.st.media {
		if m.DeletedAt != nil && m.DeletedAt.Before(deletedBefore) {
			items = append(items, cloneMedia(m))
		}
	}
	sortByCreation(items)
	return items, nil
}

func (r *Repository) ResolveTags(ctx context.Context, names []string) ([]string, error) {
	defer r.rlock()()
	var resolved []string
	seen := make(map[string]bool)
	for _, n := range names {
		if r.st.tags[n] && !seen[n] {
			seen[n] = true
			resolved = append(resolved, n)
		}
	}
	return resolved, nil
}

func (r *Repository) AddTag(ctx context.Context, name string) error {
	defer r.lock()()
	r.st.tags[name] = true
	return nil
}

func sortByCreation(items []*simplemedia.MediaItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func cloneAlbum(a *simplemedia.Album) *simplemedia.Album {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func cloneMedia(m *simplemedia.MediaItem) *simplemedia.MediaItem {
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	if m.AlbumID != nil {
		id := *m.AlbumID
		c.AlbumID = &id
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}
