package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/grimoire/internal/db"
	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
)

// Create validates a candidate and stores it as a new item at version 1.
// No history entry is written: there is nothing to supersede.
func (r *Repository) Create(ctx context.Context, c item.Candidate) (out *item.Item, err error) {
	start := time.Now()
	var id string
	defer func() { r.observe("create", id, start, err) }()

	it, violations := item.FromFields(c.Category, c.Fields)
	if len(violations) > 0 {
		return nil, errors.NewValidationFailed(violations)
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.checkName(ctx, tx, it, ""); err != nil {
			return err
		}

		newID, err := r.newID()
		if err != nil {
			return err
		}
		id = newID

		now := r.nowMillis()
		it.ID = id
		it.Version = 1
		it.CreatedAt = now
		it.UpdatedAt = now

		if err := db.InsertItem(ctx, tx, it); err != nil {
			if err == db.ErrUniqueConstraint {
				return errors.NewDuplicateName(it.Name)
			}
			return err
		}
		return db.IndexItem(ctx, tx, it)
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Update applies a patch to the item at baseVersion.
//
// Checks run in order: empty patch, existence, version, category
// immutability, validation of the merged fields, name uniqueness.
// On success the pre-update state is appended to history.
func (r *Repository) Update(ctx context.Context, id string, baseVersion int, patch item.Patch) (out *item.Item, err error) {
	start := time.Now()
	defer func() { r.observe("update", id, start, err) }()

	if patch.IsEmpty() {
		return nil, errors.NewInvalidRequest("patch changes no fields")
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := db.GetItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Version != baseVersion {
			return errors.NewVersionConflict(baseVersion, cur.Version)
		}
		if patch.Category != nil && *patch.Category != cur.Category() {
			return errors.NewImmutableField(item.FieldCategory)
		}

		next, violations := item.FromFields(cur.Category(), patch.Apply(cur.Fields()))
		if len(violations) > 0 {
			return errors.NewValidationFailed(violations)
		}

		out, err = r.revise(ctx, tx, cur, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Restore makes the snapshot recorded for targetVersion the new current
// state. It behaves like an update replacing every field: the pre-restore
// state is appended to history and the version increases. History is never
// truncated, so restoring produces a new version number.
func (r *Repository) Restore(ctx context.Context, id string, targetVersion int) (out *item.Item, err error) {
	start := time.Now()
	defer func() { r.observe("restore", id, start, err) }()

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := db.GetItem(ctx, tx, id)
		if err != nil {
			return err
		}
		entry, err := db.GetVersion(ctx, tx, id, targetVersion)
		if err != nil {
			return err
		}

		next, violations := item.FromFields(cur.Category(), entry.Snapshot.Fields)
		if len(violations) > 0 {
			return errors.NewValidationFailed(violations)
		}

		out, err = r.revise(ctx, tx, cur, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the item, all of its history and its index entry together.
// Deleting an absent id is NOT_FOUND, not a no-op.
func (r *Repository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { r.observe("delete", id, start, err) }()

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.DeleteItem(ctx, tx, id); err != nil {
			return err
		}
		if _, err := db.PurgeVersions(ctx, tx, id); err != nil {
			return err
		}
		_, err := db.RemoveFromIndex(ctx, tx, id)
		return err
	})
}

// revise writes next as the successor of cur: history entry for cur, row
// update guarded on cur.Version, re-index. Runs inside the caller's tx.
func (r *Repository) revise(ctx context.Context, tx *sql.Tx, cur, next *item.Item) (*item.Item, error) {
	if err := r.checkName(ctx, tx, next, cur.ID); err != nil {
		return nil, err
	}

	now := r.nowMillis()

	entry := item.HistoryEntry{
		ItemID:     cur.ID,
		Version:    cur.Version,
		Snapshot:   cur.Snapshot(),
		RecordedAt: now,
	}
	if err := db.InsertVersion(ctx, tx, entry); err != nil {
		if err == db.ErrUniqueConstraint {
			return nil, errors.NewStorageFailure(err)
		}
		return nil, err
	}

	next.ID = cur.ID
	next.Version = cur.Version + 1
	next.CreatedAt = cur.CreatedAt
	// updated_at moves forward on every write, even within one millisecond
	next.UpdatedAt = max(now, cur.UpdatedAt+1)

	if err := db.UpdateItem(ctx, tx, next, cur.Version); err != nil {
		switch err {
		case db.ErrUniqueConstraint:
			return nil, errors.NewDuplicateName(next.Name)
		case db.ErrStaleWrite:
			// Another process wrote between our read and write
			latest, getErr := db.GetItem(ctx, tx, cur.ID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, errors.NewVersionConflict(cur.Version, latest.Version)
		}
		return nil, err
	}

	if err := db.IndexItem(ctx, tx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// checkName fails with DUPLICATE_NAME if another live item holds its normalized name.
// selfID is excluded so an item may keep its own name.
func (r *Repository) checkName(ctx context.Context, q db.Querier, it *item.Item, selfID string) error {
	holder, taken, err := db.FindByNameNorm(ctx, q, it.NameNorm)
	if err != nil {
		return err
	}
	if taken && holder != selfID {
		return errors.NewDuplicateName(it.Name)
	}
	return nil
}
