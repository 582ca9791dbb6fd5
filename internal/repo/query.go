package repo

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/grimoire/internal/db"
	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
)

// QueryInput contains parameters for the Query operation.
type QueryInput struct {
	Term     string
	Category *item.Category // optional
	Tag      *string        // optional
	Limit    int            // 0 = no limit
}

// SearchResult is one matched item and the field the term was found in.
type SearchResult struct {
	ItemID       string     `json:"item_id"`
	MatchedField string     `json:"matched_field"`
	Item         *item.Item `json:"item"`

	tier int
}

// Relevance tiers, best first.
const (
	tierExactName = iota
	tierTag
	tierName
	tierDescription
	tierContent
)

// Query returns live items whose name, description, content or tags
// contain term, ranked exact name > tag > name > description > content,
// then most recently updated first. An empty term yields no results.
//
// Candidates come from the search index; the matched field and ranking are
// taken from the authoritative item row. Index rows found orphaned or stale
// along the way are repaired before the results are returned.
func (r *Repository) Query(ctx context.Context, in QueryInput) (out []SearchResult, err error) {
	start := time.Now()
	defer func() { r.observe("query", "", start, err) }()

	term := strings.TrimSpace(in.Term)
	if term == "" {
		return []SearchResult{}, nil
	}

	var tag string
	if in.Tag != nil {
		tag = item.Normalize(*in.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hits, err := db.SearchIndex(ctx, r.db, term)
	if err != nil {
		return nil, err
	}

	results := []SearchResult{}
	seen := make(map[string]bool, len(hits))
	var repairs []repair

	for _, h := range hits {
		if seen[h.ItemID] {
			// More than one index row for an item
			repairs = appendRepair(repairs, repair{id: h.ItemID, reindex: true})
			continue
		}
		seen[h.ItemID] = true

		if !h.Live {
			repairs = appendRepair(repairs, repair{id: h.ItemID})
			continue
		}
		it, err := db.GetItem(ctx, r.db, h.ItemID)
		if errors.Is(err, errors.ErrNotFound) {
			repairs = appendRepair(repairs, repair{id: h.ItemID})
			continue
		}
		if err != nil {
			return nil, err
		}
		if h.IndexDoc != db.DocFor(it) {
			repairs = appendRepair(repairs, repair{id: h.ItemID, reindex: true})
		}

		field, tier, ok := matchField(it, term)
		if !ok {
			continue
		}
		if in.Category != nil && it.Category() != *in.Category {
			continue
		}
		if tag != "" && !hasTag(it, tag) {
			continue
		}
		results = append(results, SearchResult{ItemID: it.ID, MatchedField: field, Item: it, tier: tier})
	}

	if len(repairs) > 0 {
		if _, err := r.repairIndex(ctx, repairs); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.Item.UpdatedAt != b.Item.UpdatedAt {
			return a.Item.UpdatedAt > b.Item.UpdatedAt
		}
		return a.ItemID > b.ItemID
	})

	if in.Limit > 0 && len(results) > in.Limit {
		results = results[:in.Limit]
	}

	r.metrics.RecordSearch(len(results))
	return results, nil
}

// matchField reports the best field of it containing term, case-insensitively.
func matchField(it *item.Item, term string) (string, int, bool) {
	needle := strings.ToLower(term)

	// Exact means the whole name, compared as the index matched it
	if strings.ToLower(it.Name) == needle {
		return item.FieldName, tierExactName, true
	}
	for _, t := range it.Tags {
		if strings.Contains(t, needle) {
			return item.FieldTags, tierTag, true
		}
	}
	if strings.Contains(strings.ToLower(it.Name), needle) {
		return item.FieldName, tierName, true
	}
	if it.Description != nil && strings.Contains(strings.ToLower(*it.Description), needle) {
		return item.FieldDescription, tierDescription, true
	}
	if strings.Contains(strings.ToLower(it.Content), needle) {
		return item.FieldContent, tierContent, true
	}
	return "", 0, false
}

func hasTag(it *item.Item, tag string) bool {
	for _, t := range it.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
