package db

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.GrimoireError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// ErrStaleWrite is returned when a guarded update matched no row because the
// stored version moved.
var ErrStaleWrite = &errors.GrimoireError{
	Code:    "STALE_WRITE",
	Status:  409,
	Message: "row version changed during write",
}

const itemColumns = `
	id, name, name_norm, category, description, content,
	model, tool_list, allowed_tools, argument_hint, permission_mode, skill_refs,
	tags, version, created_at, updated_at`

// ListFilter narrows ListItems. Zero values mean no filter.
type ListFilter struct {
	Category item.Category
	Tag      string
}

// TagCount is one tag and the number of items carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// InsertItem stores a new item row.
func InsertItem(ctx context.Context, q Querier, it *item.Item) error {
	f := it.Fields()

	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.ExecContext(ctx, query,
		it.ID, it.Name, it.NameNorm, string(it.Category()), toNullString(f.Description), it.Content,
		toNullString(f.Model), toNullList(f.ToolList), toNullList(f.AllowedTools),
		toNullString(f.ArgumentHint), toNullString(f.PermissionMode), toNullList(f.SkillRefs),
		toNullList(f.Tags), it.Version, it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewStorageFailure(err)
	}

	return nil
}

// UpdateItem overwrites every mutable column of an existing item, guarded on
// the version the caller read. Does NOT change: id, category, created_at.
func UpdateItem(ctx context.Context, q Querier, it *item.Item, baseVersion int) error {
	f := it.Fields()

	query := `
		UPDATE items SET
			name = ?, name_norm = ?, description = ?, content = ?,
			model = ?, tool_list = ?, allowed_tools = ?, argument_hint = ?,
			permission_mode = ?, skill_refs = ?, tags = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := q.ExecContext(ctx, query,
		it.Name, it.NameNorm, toNullString(f.Description), it.Content,
		toNullString(f.Model), toNullList(f.ToolList), toNullList(f.AllowedTools), toNullString(f.ArgumentHint),
		toNullString(f.PermissionMode), toNullList(f.SkillRefs), toNullList(f.Tags),
		it.Version, it.UpdatedAt,
		it.ID, baseVersion,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewStorageFailure(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	if rows == 0 {
		return ErrStaleWrite
	}

	return nil
}

// DeleteItem removes an item row.
// Returns NotFound if no row has the id.
func DeleteItem(ctx context.Context, q Querier, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return errors.NewStorageFailure(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	if rows == 0 {
		return errors.NewNotFound(id)
	}

	return nil
}

// GetItem retrieves an item by its ULID.
func GetItem(ctx context.Context, q Querier, id string) (*item.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return it, nil
}

// FindByNameNorm returns the id of the item holding a normalized name.
// The second result is false when no item holds it.
func FindByNameNorm(ctx context.Context, q Querier, nameNorm string) (string, bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM items WHERE name_norm = ? LIMIT 1`, nameNorm).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewStorageFailure(err)
	}
	return id, true, nil
}

// ListItems returns items ordered by updated_at descending, newest first.
// Ties are broken by id descending so ordering is stable.
func ListItems(ctx context.Context, q Querier, filter ListFilter) ([]*item.Item, error) {
	var (
		where []string
		args  []any
	)

	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if tag := item.Normalize(filter.Tag); tag != "" {
		// Tags are stored comma-joined; wrap in commas to match whole tags only
		where = append(where, `(',' || COALESCE(tags, '') || ',') LIKE ? ESCAPE '\'`)
		args = append(args, "%,"+escapeLike(tag)+",%")
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}

	return items, nil
}

// CountByCategory returns the number of items per category.
// Every category is present in the result, zero when empty.
func CountByCategory(ctx context.Context, q Querier) (map[item.Category]int, error) {
	counts := make(map[item.Category]int, 4)
	for _, c := range item.AllCategories() {
		counts[c] = 0
	}

	rows, err := q.QueryContext(ctx, `SELECT category, COUNT(*) FROM items GROUP BY category`)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		counts[item.Category(category)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}

	return counts, nil
}

// TagCounts returns every tag in use with its item count,
// ordered by count descending, then tag ascending.
func TagCounts(ctx context.Context, q Querier) ([]TagCount, error) {
	rows, err := q.QueryContext(ctx, `SELECT tags FROM items WHERE tags IS NOT NULL AND tags != ''`)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tags string
		if err := rows.Scan(&tags); err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		for _, t := range item.SplitList(tags) {
			counts[t]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}

	result := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		result = append(result, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Tag < result[j].Tag
	})

	return result, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanItem scans a single row into an Item.
func scanItem(row scanner) (*item.Item, error) {
	var (
		id, name, nameNorm, category, content string
		description, model, argumentHint      sql.NullString
		permissionMode                        sql.NullString
		toolList, allowedTools, skillRefs     sql.NullString
		tags                                  sql.NullString
		version                               int
		createdAt, updatedAt                  int64
	)

	err := row.Scan(
		&id, &name, &nameNorm, &category, &description, &content,
		&model, &toolList, &allowedTools, &argumentHint, &permissionMode, &skillRefs,
		&tags, &version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	f := item.Fields{
		Name:           &name,
		Description:    fromNullString(description),
		Content:        &content,
		Model:          fromNullString(model),
		ToolList:       fromNullList(toolList),
		AllowedTools:   fromNullList(allowedTools),
		ArgumentHint:   fromNullString(argumentHint),
		PermissionMode: fromNullString(permissionMode),
		SkillRefs:      fromNullList(skillRefs),
		Tags:           fromNullList(tags),
	}

	return item.Assemble(id, item.Category(category), f, version, createdAt, updatedAt), nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike escapes LIKE wildcards so s matches literally with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// toNullList stores a list comma-joined; an empty list is NULL.
func toNullList(list []string) sql.NullString {
	if len(list) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: item.JoinList(list), Valid: true}
}

func fromNullList(ns sql.NullString) []string {
	if !ns.Valid {
		return nil
	}
	return item.SplitList(ns.String)
}
