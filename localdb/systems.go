// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldworks/calsync/record"
)

// SystemStore persists detector systems and their sync state.
type SystemStore struct {
	db *sql.DB
}

// NewSystemStore creates a store over an initialized database.
func NewSystemStore(db *sql.DB) *SystemStore {
	return &SystemStore{db: db}
}

const systemColumns = `local_id, temp_id, cloud_id, serial_no, customer_id, model_id, system_type_id, location, condition, notes, is_synced, updated_at`

func scanSystem(row interface{ Scan(...any) error }) (*record.System, error) {
	var s record.System
	var condition, updatedAt string
	err := row.Scan(&s.LocalID, &s.TempID, &s.CloudID, &s.Serial,
		&s.CustomerID, &s.ModelID, &s.SystemTypeID,
		&s.Location, &condition, &s.Notes, &s.IsSynced, &updatedAt)
	if err != nil {
		return nil, err
	}
	cond, err := record.ParseCondition(condition)
	if err != nil {
		return nil, fmt.Errorf("system %d: %w", s.LocalID, err)
	}
	s.Condition = cond
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// Insert persists a locally created system. A temp id is allocated when the
// record has no cloud identity yet; the store-assigned local id is written
// back into the record.
func (st *SystemStore) Insert(ctx context.Context, s *record.System) error {
	if s.CloudID == 0 && s.TempID == 0 {
		tempID, err := nextTempID(ctx, st.db)
		if err != nil {
			return err
		}
		s.TempID = tempID
	}
	if s.Condition == "" {
		s.Condition = record.ConditionUnknown
	}
	res, err := st.db.ExecContext(ctx, `
		INSERT INTO systems (temp_id, cloud_id, serial_no, customer_id, model_id, system_type_id, location, condition, notes, is_synced, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.TempID, s.CloudID, s.Serial, s.CustomerID, s.ModelID, s.SystemTypeID,
		s.Location, s.Condition.String(), s.Notes, s.IsSynced, formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert system: %w", err)
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read system local id: %w", err)
	}
	s.LocalID = localID
	return nil
}

// Update overwrites the editable fields of a system and resets its sync
// flag: a local edit always makes the record pending again.
func (st *SystemStore) Update(ctx context.Context, s *record.System) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE systems
		SET serial_no = ?, customer_id = ?, model_id = ?, system_type_id = ?,
		    location = ?, condition = ?, notes = ?, is_synced = 0,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE local_id = ?
	`, s.Serial, s.CustomerID, s.ModelID, s.SystemTypeID,
		s.Location, s.Condition.String(), s.Notes, s.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update system: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.IsSynced = false
	return nil
}

// Delete removes a system row. Deletion is local-only and immediate; it is
// not propagated to the cloud.
func (st *SystemStore) Delete(ctx context.Context, localID int64) error {
	_, err := st.db.ExecContext(ctx, `DELETE FROM systems WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete system: %w", err)
	}
	return nil
}

// GetByLocalID looks a system up by its store-assigned id.
func (st *SystemStore) GetByLocalID(ctx context.Context, localID int64) (*record.System, error) {
	s, err := scanSystem(st.db.QueryRowContext(ctx,
		`SELECT `+systemColumns+` FROM systems WHERE local_id = ?`, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// GetByCloudID looks a system up by its canonical cloud id.
func (st *SystemStore) GetByCloudID(ctx context.Context, cloudID int64) (*record.System, error) {
	s, err := scanSystem(st.db.QueryRowContext(ctx,
		`SELECT `+systemColumns+` FROM systems WHERE cloud_id = ? AND cloud_id != 0`, cloudID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// GetByTempID looks a system up by its placeholder id. Temp ids are retired
// once a cloud id exists, so only rows without a cloud identity match.
func (st *SystemStore) GetByTempID(ctx context.Context, tempID int64) (*record.System, error) {
	s, err := scanSystem(st.db.QueryRowContext(ctx,
		`SELECT `+systemColumns+` FROM systems WHERE temp_id = ? AND temp_id != 0 AND cloud_id = 0`, tempID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Resolve finds a record by whichever identity the caller knows, trying
// cloud id first, then local id, then temp id.
func (st *SystemStore) Resolve(ctx context.Context, cloudID, localID, tempID int64) (*record.System, error) {
	if cloudID != 0 {
		if s, err := st.GetByCloudID(ctx, cloudID); err == nil {
			return s, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if localID != 0 {
		if s, err := st.GetByLocalID(ctx, localID); err == nil {
			return s, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if tempID != 0 {
		if s, err := st.GetByTempID(ctx, tempID); err == nil {
			return s, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// ListAll returns every system row, pending or synced.
func (st *SystemStore) ListAll(ctx context.Context) ([]*record.System, error) {
	return st.list(ctx, `SELECT `+systemColumns+` FROM systems ORDER BY local_id`)
}

// ListPending returns the records that need uploading: anything edited since
// the last successful push, or never pushed at all.
func (st *SystemStore) ListPending(ctx context.Context) ([]*record.System, error) {
	return st.list(ctx, `
		SELECT `+systemColumns+` FROM systems
		WHERE is_synced = 0 OR cloud_id = 0
		ORDER BY local_id`)
}

func (st *SystemStore) list(ctx context.Context, query string, args ...any) ([]*record.System, error) {
	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query systems: %w", err)
	}
	defer rows.Close()

	var out []*record.System
	for rows.Next() {
		s, err := scanSystem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan system: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating systems: %w", err)
	}
	return out, nil
}

// AssignCloudID records the cloud-assigned identity for a record matched by
// its temp id. One narrow statement: the row becomes cloud-linked and synced
// in a single transition. The temp id value stays on the row for historical
// linkage but no longer participates in matching.
func (st *SystemStore) AssignCloudID(ctx context.Context, tempID, cloudID int64) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE systems SET cloud_id = ?, is_synced = 1
		WHERE temp_id = ? AND cloud_id = 0
	`, cloudID, tempID)
	if err != nil {
		return fmt.Errorf("failed to assign cloud id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSynced flags a record as matching the cloud copy.
func (st *SystemStore) MarkSynced(ctx context.Context, localID int64) error {
	res, err := st.db.ExecContext(ctx, `UPDATE systems SET is_synced = 1 WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to mark system synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SerialExists reports whether any local row carries the serial. Used as the
// offline fallback for duplicate-serial warnings; the answer is not
// authoritative.
func (st *SystemStore) SerialExists(ctx context.Context, serial string) (bool, error) {
	var exists bool
	err := st.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM systems WHERE serial_no = ?)`, serial).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check serial locally: %w", err)
	}
	return exists, nil
}

// MergeRemoteSnapshot replaces the synced portion of the table with the
// authoritative cloud collection, in one transaction. Rows that still need
// uploading are never deleted or overwritten: any cloud id with a pending
// local edit is skipped when the snapshot is applied, so unsynced local
// changes always survive a full refresh.
func (st *SystemStore) MergeRemoteSnapshot(ctx context.Context, snapshot []*record.System) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin refresh transaction: %w", err)
	}
	defer tx.Rollback()

	// Collect cloud ids held by rows with pending edits; those rows win over
	// the snapshot until they are uploaded.
	pending := make(map[int64]bool)
	rows, err := tx.QueryContext(ctx, `
		SELECT cloud_id FROM systems WHERE (is_synced = 0 OR cloud_id = 0) AND cloud_id != 0
	`)
	if err != nil {
		return fmt.Errorf("failed to query pending cloud ids: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan pending cloud id: %w", err)
		}
		pending[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating pending cloud ids: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM systems WHERE is_synced = 1 AND cloud_id != 0`); err != nil {
		return fmt.Errorf("failed to clear synced systems: %w", err)
	}

	for _, s := range snapshot {
		if pending[s.CloudID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO systems (temp_id, cloud_id, serial_no, customer_id, model_id, system_type_id, location, condition, notes, is_synced, updated_at)
			VALUES (0, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		`, s.CloudID, s.Serial, s.CustomerID, s.ModelID, s.SystemTypeID,
			s.Location, s.Condition.String(), s.Notes, formatTime(s.UpdatedAt)); err != nil {
			return fmt.Errorf("failed to insert system %q from snapshot: %w", s.Serial, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit refresh transaction: %w", err)
	}
	return nil
}
