package db

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
)

// minTrigramRunes is the shortest term the trigram tokenizer can MATCH.
const minTrigramRunes = 3

// IndexDoc is the text an item contributes to the search index.
type IndexDoc struct {
	ItemID      string
	Name        string
	Description string
	Content     string
	Tags        string
}

// IndexHit is an index row matched by a search, with whether its item still exists.
type IndexHit struct {
	IndexDoc
	Live bool
}

// DocFor derives the index document of an item from its current field values.
func DocFor(it *item.Item) IndexDoc {
	doc := IndexDoc{
		ItemID:  it.ID,
		Name:    it.Name,
		Content: it.Content,
		Tags:    strings.Join(it.Tags, " "),
	}
	if it.Description != nil {
		doc.Description = *it.Description
	}
	return doc
}

// IndexItem replaces any index entry for the item with its current text.
// Calling it repeatedly for the same item is safe.
func IndexItem(ctx context.Context, q Querier, it *item.Item) error {
	return writeDoc(ctx, q, DocFor(it))
}

func writeDoc(ctx context.Context, q Querier, doc IndexDoc) error {
	if _, err := RemoveFromIndex(ctx, q, doc.ItemID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO items_fts (item_id, name, description, content, tags) VALUES (?, ?, ?, ?, ?)`,
		doc.ItemID, doc.Name, doc.Description, doc.Content, doc.Tags,
	)
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// RemoveFromIndex deletes the index entry for an item id.
// Absent entries are not an error; the count of removed rows is returned.
func RemoveFromIndex(ctx context.Context, q Querier, itemID string) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM items_fts WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, errors.NewStorageFailure(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorageFailure(err)
	}
	return n, nil
}

// SearchIndex returns the index rows whose text contains term.
// Terms of three or more runes use the trigram index. Shorter terms are
// matched against every index row with Unicode case folding. Each hit
// reports whether its item row still exists, so the caller can detect
// orphans.
func SearchIndex(ctx context.Context, q Querier, term string) ([]IndexHit, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	base := `
		SELECT f.item_id, f.name, f.description, f.content, f.tags, i.id IS NOT NULL
		FROM items_fts f
		LEFT JOIN items i ON i.id = f.item_id
	`

	// LIKE folds ASCII case only; short terms are filtered below
	short := utf8.RuneCountInString(term) < minTrigramRunes
	query := base
	var args []any
	if !short {
		query += ` WHERE f.items_fts MATCH ?`
		args = []any{quotePhrase(term)}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	var hits []IndexHit
	for rows.Next() {
		var h IndexHit
		if err := rows.Scan(&h.ItemID, &h.Name, &h.Description, &h.Content, &h.Tags, &h.Live); err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		if short && !h.contains(term) {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}

	return hits, nil
}

// contains reports whether any indexed column holds term, ignoring case.
func (d IndexDoc) contains(term string) bool {
	needle := strings.ToLower(term)
	for _, col := range []string{d.Name, d.Description, d.Content, d.Tags} {
		if strings.Contains(strings.ToLower(col), needle) {
			return true
		}
	}
	return false
}

// ListIndex returns every index row.
func ListIndex(ctx context.Context, q Querier) ([]IndexDoc, error) {
	rows, err := q.QueryContext(ctx, `SELECT item_id, name, description, content, tags FROM items_fts`)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	var docs []IndexDoc
	for rows.Next() {
		var d IndexDoc
		if err := rows.Scan(&d.ItemID, &d.Name, &d.Description, &d.Content, &d.Tags); err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}

	return docs, nil
}

// ClearIndex removes every index row.
func ClearIndex(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM items_fts`); err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// CountIndex returns the number of index rows and the number of items.
func CountIndex(ctx context.Context, q Querier) (indexRows, items int, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM items_fts), (SELECT COUNT(*) FROM items)`,
	).Scan(&indexRows, &items)
	if err != nil {
		return 0, 0, errors.NewStorageFailure(err)
	}
	return indexRows, items, nil
}

// quotePhrase wraps a term as an FTS5 string so operators in it stay literal.
func quotePhrase(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}
