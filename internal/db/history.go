package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/hpungsan/grimoire/internal/errors"
	"github.com/hpungsan/grimoire/internal/item"
)

// InsertVersion appends one immutable history entry.
// A second entry for the same (item_id, version) is rejected.
func InsertVersion(ctx context.Context, q Querier, e item.HistoryEntry) error {
	data, err := json.Marshal(e.Snapshot)
	if err != nil {
		return errors.NewStorageFailure(err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO item_versions (item_id, version, snapshot, recorded_at) VALUES (?, ?, ?, ?)`,
		e.ItemID, e.Version, string(data), e.RecordedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewStorageFailure(err)
	}
	return nil
}

// ListVersions returns every history entry of an item, newest first.
func ListVersions(ctx context.Context, q Querier, itemID string) ([]item.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT item_id, version, snapshot, recorded_at
		FROM item_versions
		WHERE item_id = ?
		ORDER BY version DESC
	`, itemID)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	var entries []item.HistoryEntry
	for rows.Next() {
		e, err := scanVersion(rows)
		if err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}

	return entries, nil
}

// GetVersion retrieves the history entry recorded for one superseded version.
func GetVersion(ctx context.Context, q Querier, itemID string, version int) (*item.HistoryEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT item_id, version, snapshot, recorded_at
		FROM item_versions
		WHERE item_id = ? AND version = ?
	`, itemID, version)

	e, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewVersionNotFound(itemID, version)
	}
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return e, nil
}

// PurgeVersions removes all history of an item and returns how many entries went.
func PurgeVersions(ctx context.Context, q Querier, itemID string) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM item_versions WHERE item_id = ?`, itemID)
	if err != nil {
		return 0, errors.NewStorageFailure(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewStorageFailure(err)
	}
	return n, nil
}

// CountVersions returns the number of history entries of an item.
func CountVersions(ctx context.Context, q Querier, itemID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM item_versions WHERE item_id = ?`, itemID).Scan(&n); err != nil {
		return 0, errors.NewStorageFailure(err)
	}
	return n, nil
}

func scanVersion(row scanner) (*item.HistoryEntry, error) {
	var (
		e    item.HistoryEntry
		data string
	)
	if err := row.Scan(&e.ItemID, &e.Version, &data, &e.RecordedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &e.Snapshot); err != nil {
		return nil, err
	}
	return &e, nil
}
