// Package sync aligns the destination table with a freshly extracted source
// snapshot by composite key: update where both sides have the key, insert
// where only the source has it, delete where only the destination has it.
package sync

import (
	"context"

	"go.uber.org/zap"

	"cadsync/internal/types"
)

// Destination is the mutable side of the reconciliation. The GIS store
// implements it; tests use an in-memory fake.
type Destination interface {
	ReadAll(ctx context.Context) ([]types.Parcel, error)
	Insert(ctx context.Context, p types.Parcel) error
	Update(ctx context.Context, p types.Parcel) error
	Delete(ctx context.Context, k types.Key) error
}

// Result carries the per-run counters. Succeeded and Failed partition the
// source records attempted; Deleted counts destination keys removed.
type Result struct {
	Succeeded    int
	Failed       int
	Deleted      int
	DeleteFailed int
}

// Reconcile brings dst into agreement with the source snapshot. Row-level
// failures are logged and counted without aborting the pass; only a failing
// destination read is fatal for the batch.
func Reconcile(ctx context.Context, source []types.Parcel, dst Destination, log *zap.Logger) (Result, error) {
	var res Result

	destRows, err := dst.ReadAll(ctx)
	if err != nil {
		return res, err
	}

	// Key the destination snapshot. A duplicate key violates the uniqueness
	// invariant; it is warned about, and since updates address the key, every
	// duplicate row receives the source attributes.
	destKeys := make(map[types.Key]bool, len(destRows))
	for _, p := range destRows {
		if destKeys[p.Key()] {
			log.Warn("duplicate composite key in destination",
				zap.Stringer("key", p.Key()), zap.Int64("id", p.ID))
			continue
		}
		destKeys[p.Key()] = true
	}

	srcKeys := make(map[types.Key]bool, len(source))
	for _, p := range source {
		if srcKeys[p.Key()] {
			log.Warn("duplicate composite key in source snapshot",
				zap.Stringer("key", p.Key()), zap.Int64("id", p.ID))
		}
		srcKeys[p.Key()] = true
	}

	// Insert/update pass, in source scan order.
	for _, src := range source {
		if destKeys[src.Key()] {
			err = dst.Update(ctx, src)
		} else {
			err = dst.Insert(ctx, src)
		}
		if err != nil {
			res.Failed++
			log.Warn("sync of record failed", zap.Stringer("key", src.Key()), zap.Error(err))
			continue
		}
		res.Succeeded++
	}

	// Delete pass: walk every destination row and remove those whose key the
	// source no longer carries. Duplicate rows of an already-deleted key are
	// gone after the first delete, so the key is only counted once.
	deleted := make(map[types.Key]bool)
	for _, p := range destRows {
		k := p.Key()
		if srcKeys[k] || deleted[k] {
			continue
		}
		if err := dst.Delete(ctx, k); err != nil {
			res.DeleteFailed++
			log.Warn("delete of record failed", zap.Stringer("key", k), zap.Error(err))
			continue
		}
		deleted[k] = true
		res.Deleted++
	}

	log.Info("reconciliation finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("deleted", res.Deleted),
		zap.Int("delete_failed", res.DeleteFailed))
	return res, nil
}
