package repo

import (
	"context"
	"time"

	"github.com/hpungsan/grimoire/internal/db"
	"github.com/hpungsan/grimoire/internal/item"
)

// ListFilter narrows List. Nil fields mean no filter.
type ListFilter struct {
	Category *item.Category
	Tag      *string
}

// Stats summarizes the collection: counts per category and tags in use.
type Stats struct {
	Total      int                   `json:"total"`
	ByCategory map[item.Category]int `json:"by_category"`
	Tags       []db.TagCount         `json:"tags"`
}

// Get returns the item with id, or NOT_FOUND.
func (r *Repository) Get(ctx context.Context, id string) (out *item.Item, err error) {
	start := time.Now()
	defer func() { r.observe("get", id, start, err) }()

	return db.GetItem(ctx, r.db, id)
}

// List returns items, most recently updated first. Each call re-queries
// current state.
func (r *Repository) List(ctx context.Context, filter ListFilter) (out []*item.Item, err error) {
	start := time.Now()
	defer func() { r.observe("list", "", start, err) }()

	var f db.ListFilter
	if filter.Category != nil {
		f.Category = *filter.Category
	}
	if filter.Tag != nil {
		f.Tag = *filter.Tag
	}
	return db.ListItems(ctx, r.db, f)
}

// History returns the superseded states of an item, newest first.
// Fails with NOT_FOUND when the item does not exist.
func (r *Repository) History(ctx context.Context, id string) (out []item.HistoryEntry, err error) {
	start := time.Now()
	defer func() { r.observe("history", id, start, err) }()

	if _, err := db.GetItem(ctx, r.db, id); err != nil {
		return nil, err
	}
	entries, err := db.ListVersions(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []item.HistoryEntry{}
	}
	return entries, nil
}

// HistoryEntry returns the snapshot recorded for one superseded version.
func (r *Repository) HistoryEntry(ctx context.Context, id string, version int) (out *item.HistoryEntry, err error) {
	start := time.Now()
	defer func() { r.observe("history_entry", id, start, err) }()

	if _, err := db.GetItem(ctx, r.db, id); err != nil {
		return nil, err
	}
	return db.GetVersion(ctx, r.db, id, version)
}

// Stats returns item counts per category and tag counts
// (count descending, then tag ascending).
func (r *Repository) Stats(ctx context.Context) (out *Stats, err error) {
	start := time.Now()
	defer func() { r.observe("stats", "", start, err) }()

	counts, err := db.CountByCategory(ctx, r.db)
	if err != nil {
		return nil, err
	}
	tags, err := db.TagCounts(ctx, r.db)
	if err != nil {
		return nil, err
	}

	s := &Stats{ByCategory: counts, Tags: tags}
	gauges := make(map[string]int, len(counts))
	for c, n := range counts {
		s.Total += n
		gauges[string(c)] = n
	}
	r.metrics.SetItemCounts(gauges)

	return s, nil
}
