package repo

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hpungsan/grimoire/internal/db"
	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
)

// repair is one index entry to fix: re-derive it from the item row, or
// remove it when the item is gone.
type repair struct {
	id      string
	reindex bool
}

func appendRepair(list []repair, r repair) []repair {
	for i, existing := range list {
		if existing.id == r.id {
			list[i].reindex = list[i].reindex || r.reindex
			return list
		}
	}
	return append(list, r)
}

// Reindex rebuilds the whole search index from the item table and returns
// the number of items indexed.
func (r *Repository) Reindex(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() { r.observe("reindex", "", start, err) }()

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.ClearIndex(ctx, tx); err != nil {
			return err
		}
		items, err := db.ListItems(ctx, tx, db.ListFilter{})
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := db.IndexItem(ctx, tx, it); err != nil {
				return err
			}
		}
		n = len(items)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// VerifyIndex compares every index row with its item row and repairs each
// mismatch: orphaned rows are removed, stale or duplicated rows and items
// with no row are re-indexed. It returns the repaired item ids, sorted.
func (r *Repository) VerifyIndex(ctx context.Context) (repaired []string, err error) {
	start := time.Now()
	defer func() { r.observe("verify_index", "", start, err) }()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verifyLocked(ctx)
}

func (r *Repository) verifyLocked(ctx context.Context) ([]string, error) {
	docs, err := db.ListIndex(ctx, r.db)
	if err != nil {
		return nil, err
	}
	items, err := db.ListItems(ctx, r.db, db.ListFilter{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*item.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	var repairs []repair
	rows := make(map[string]int, len(docs))
	for _, doc := range docs {
		rows[doc.ItemID]++
		it, ok := byID[doc.ItemID]
		switch {
		case !ok:
			repairs = appendRepair(repairs, repair{id: doc.ItemID})
		case rows[doc.ItemID] > 1 || doc != db.DocFor(it):
			repairs = appendRepair(repairs, repair{id: doc.ItemID, reindex: true})
		}
	}
	for _, it := range items {
		if rows[it.ID] == 0 {
			repairs = appendRepair(repairs, repair{id: it.ID, reindex: true})
		}
	}

	return r.repairIndex(ctx, repairs)
}

// repairIndex applies repairs in their own transaction. Callers must hold r.mu.
// Each repair is logged as an INDEX_DESYNC warning.
func (r *Repository) repairIndex(ctx context.Context, repairs []repair) ([]string, error) {
	ids := make([]string, 0, len(repairs))
	if len(repairs) == 0 {
		return ids, nil
	}

	err := r.runTx(ctx, func(tx *sql.Tx) error {
		for i := range repairs {
			rp := &repairs[i]
			if !rp.reindex {
				if _, err := db.RemoveFromIndex(ctx, tx, rp.id); err != nil {
					return err
				}
				continue
			}

			it, err := db.GetItem(ctx, tx, rp.id)
			if errors.Is(err, errors.ErrNotFound) {
				// Deleted since it was read; drop the entry instead
				rp.reindex = false
				if _, err := db.RemoveFromIndex(ctx, tx, rp.id); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := db.IndexItem(ctx, tx, it); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Int("entries", len(repairs)).Msg("search index repair failed")
		return nil, err
	}

	for _, rp := range repairs {
		kind := "removed"
		if rp.reindex {
			kind = "reindexed"
		}
		r.metrics.RecordIndexRepair(kind)
		r.log.Warn().
			Str("code", string(errors.ErrIndexDesync)).
			Str("item_id", rp.id).
			Str("repair", kind).
			Msg(errors.NewIndexDesync(rp.id).Message)
		ids = append(ids, rp.id)
	}
	sort.Strings(ids)
	return ids, nil
}

// checkIndexOnOpen runs a full verification when the index and item table
// disagree on row counts, e.g. after a crash or an external edit.
func (r *Repository) checkIndexOnOpen(ctx context.Context) error {
	rows, items, err := db.CountIndex(ctx, r.db)
	if err != nil {
		return err
	}
	if rows == items {
		return nil
	}

	r.log.Warn().Int("index_rows", rows).Int("items", items).Msg("search index count mismatch, verifying")
	_, err = r.VerifyIndex(ctx)
	return err
}
