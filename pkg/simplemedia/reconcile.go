package simplemedia

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconcilerConfig holds the sweep and purge parameters. Immutable after
// construction.
type ReconcilerConfig struct {
	// StalledAge is how old a pending or failed item must be (by creation
	// time) before the sweep re-offers it.
	StalledAge time.Duration
	// ProcessingLease is how long an item may sit in processing (by last
	// update) before it is considered abandoned by a crashed worker.
	ProcessingLease time.Duration
	// MaxAttempts bounds requeues; past it an item moves to the terminal
	// dead state instead of cycling forever.
	MaxAttempts int
	// Retention is the soft-delete window before hard deletion.
	Retention time.Duration
}

// DefaultReconcilerConfig returns the production sweep parameters.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		StalledAge:      24 * time.Hour,
		ProcessingLease: time.Hour,
		MaxAttempts:     5,
		Retention:       30 * 24 * time.Hour,
	}
}

// Reconciler recovers stalled work and purges expired soft-deleted media.
// It re-enters the same event bus the intake service uses, so the worker
// has exactly one trigger contract regardless of origin.
type Reconciler struct {
	repo   Repository
	store  Storage
	bus    EventBus
	cfg    ReconcilerConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(repo Repository, store Storage, bus EventBus, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		repo:   repo,
		store:  store,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SweepStalled finds items that should have progressed but did not and
// re-emits a processing event for each: pending/failed items older than
// StalledAge that still have a source key, plus processing items whose
// lease expired. Items past MaxAttempts move to dead instead. Returns the
// number of events re-emitted.
func (r *Reconciler) SweepStalled(ctx context.Context) (int, error) {
	now := r.now()
	candidates, err := r.repo.ListRequeueCandidates(ctx,
		now.Add(-r.cfg.StalledAge),
		now.Add(-r.cfg.ProcessingLease))
	if err != nil {
		return 0, fmt.Errorf("list requeue candidates: %w", err)
	}

	requeued := 0
	for _, item := range candidates {
		if item.SourceKey == "" {
			continue
		}
		item.Attempts++
		item.UpdatedAt = now
		if item.Attempts > r.cfg.MaxAttempts {
			item.Status = MediaStatusDead
			if err := r.repo.UpdateMedia(ctx, item); err != nil {
				return requeued, &MediaError{MediaID: item.ID, Op: "sweep", Err: err}
			}
			r.logger.Warn("media exhausted requeue budget", "media_id", item.ID, "attempts", item.Attempts)
			continue
		}

		item.Status = MediaStatusProcessing
		if err := r.repo.UpdateMedia(ctx, item); err != nil {
			return requeued, &MediaError{MediaID: item.ID, Op: "sweep", Err: err}
		}
		evt := ProcessingEvent{
			MediaID:   item.ID,
			SourceKey: item.SourceKey,
			MediaType: item.Type,
		}
		if err := r.bus.Publish(ctx, evt); err != nil {
			return requeued, &MediaError{MediaID: item.ID, Op: "sweep", Err: err}
		}
		requeued++
	}

	if requeued > 0 {
		r.logger.Info("stalled sweep requeued work", "count", requeued)
	}
	return requeued, nil
}

// PurgeExpired permanently removes soft-deleted media past the retention
// window: storage objects first, then rows in one transaction. A storage
// delete failure aborts the purge before any row is removed.
func (r *Reconciler) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	cutoff := r.now().Add(-r.cfg.Retention)
	expired, err := r.repo.ListExpired(ctx, cutoff)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("list expired: %w", err)
	}
	if len(expired) == 0 {
		return PurgeResult{}, nil
	}

	originals, assets := collectKeys(expired)
	if err := r.store.DeleteKeys(ctx, originals, assets); err != nil {
		return PurgeResult{}, fmt.Errorf("purge storage delete: %w", err)
	}

	err = r.repo.WithTx(ctx, func(tx Repository) error {
		for _, item := range expired {
			if err := tx.DeleteMedia(ctx, item.ID); err != nil {
				return &MediaError{MediaID: item.ID, Op: "purge", Err: err}
			}
		}
		return nil
	})
	if err != nil {
		return PurgeResult{}, err
	}

	result := PurgeResult{MediaItems: len(expired), Keys: len(originals) + len(assets)}
	r.logger.Info("expiry purge complete", "media_items", result.MediaItems, "keys", result.Keys)
	return result, nil
}

// BulkDelete resolves a mixed list of item and album targets to the full
// set of underlying media rows (soft-deleted rows included), deletes their
// storage objects, then removes the rows and the album rows. This path
// bypasses the state machine and the soft-delete window entirely and is
// irreversible.
func (r *Reconciler) BulkDelete(ctx context.Context, targets []DeleteTarget) (BulkDeleteResult, error) {
	var (
		items    []*MediaItem
		albumIDs = make([]DeleteTarget, 0)
		seen     = make(map[string]bool)
	)
	for _, t := range targets {
		if t.IsAlbum {
			members, err := r.repo.ListAlbumMembers(ctx, t.ID, true)
			if err != nil {
				return BulkDeleteResult{}, fmt.Errorf("resolve album %s: %w", t.ID, err)
			}
			for _, m := range members {
				if !seen[m.ID.String()] {
					seen[m.ID.String()] = true
					items = append(items, m)
				}
			}
			albumIDs = append(albumIDs, t)
			continue
		}
		item, err := r.repo.GetMediaWithDeleted(ctx, t.ID)
		if err != nil {
			return BulkDeleteResult{}, &MediaError{MediaID: t.ID, Op: "bulk_delete", Err: err}
		}
		if !seen[item.ID.String()] {
			seen[item.ID.String()] = true
			items = append(items, item)
		}
	}

	originals, assets := collectKeys(items)
	if err := r.store.DeleteKeys(ctx, originals, assets); err != nil {
		return BulkDeleteResult{}, fmt.Errorf("bulk delete storage: %w", err)
	}

	err := r.repo.WithTx(ctx, func(tx Repository) error {
		for _, item := range items {
			if err := tx.DeleteMedia(ctx, item.ID); err != nil {
				return &MediaError{MediaID: item.ID, Op: "bulk_delete", Err: err}
			}
		}
		for _, a := range albumIDs {
			if err := tx.DeleteAlbum(ctx, a.ID); err != nil {
				return fmt.Errorf("delete album %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return BulkDeleteResult{}, err
	}

	result := BulkDeleteResult{Albums: len(albumIDs), MediaItems: len(items)}
	r.logger.Info("bulk delete complete", "albums", result.Albums, "media_items", result.MediaItems)
	return result, nil
}

// collectKeys gathers the union of non-empty source and derivative keys
// across items, split by namespace.
func collectKeys(items []*MediaItem) (originals, assets []string) {
	for _, item := range items {
		if item.SourceKey != "" {
			originals = append(originals, item.SourceKey)
		}
		assets = append(assets, item.DerivativeKeys()...)
	}
	return originals, assets
}
