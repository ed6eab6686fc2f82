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

// CalibrationStore persists calibration records and their parent linkage.
type CalibrationStore struct {
	db *sql.DB
}

// NewCalibrationStore creates a store over an initialized database.
func NewCalibrationStore(db *sql.DB) *CalibrationStore {
	return &CalibrationStore{db: db}
}

const calibrationColumns = `local_id, temp_id, cloud_id, system_cloud_id, system_temp_id, performed_at, result, payload, is_synced`

func scanCalibration(row interface{ Scan(...any) error }) (*record.Calibration, error) {
	var c record.Calibration
	var performedAt, result string
	var payload []byte
	err := row.Scan(&c.LocalID, &c.TempID, &c.CloudID, &c.SystemCloudID, &c.SystemTempID,
		&performedAt, &result, &payload, &c.IsSynced)
	if err != nil {
		return nil, err
	}
	res, err := record.ParseCalResult(result)
	if err != nil {
		return nil, fmt.Errorf("calibration %d: %w", c.LocalID, err)
	}
	c.Result = res
	c.PerformedAt = parseTime(performedAt)
	c.Payload = payload
	return &c, nil
}

// Insert persists a locally recorded calibration, allocating its temp id.
func (st *CalibrationStore) Insert(ctx context.Context, c *record.Calibration) error {
	if c.CloudID == 0 && c.TempID == 0 {
		tempID, err := nextTempID(ctx, st.db)
		if err != nil {
			return err
		}
		c.TempID = tempID
	}
	payload := c.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	res, err := st.db.ExecContext(ctx, `
		INSERT INTO calibrations (temp_id, cloud_id, system_cloud_id, system_temp_id, performed_at, result, payload, is_synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.TempID, c.CloudID, c.SystemCloudID, c.SystemTempID,
		formatTime(c.PerformedAt), c.Result.String(), string(payload), c.IsSynced)
	if err != nil {
		return fmt.Errorf("failed to insert calibration: %w", err)
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read calibration local id: %w", err)
	}
	c.LocalID = localID
	return nil
}

// Update overwrites the calibration content and resets its sync flag.
func (st *CalibrationStore) Update(ctx context.Context, c *record.Calibration) error {
	payload := c.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	res, err := st.db.ExecContext(ctx, `
		UPDATE calibrations
		SET performed_at = ?, result = ?, payload = ?, is_synced = 0
		WHERE local_id = ?
	`, formatTime(c.PerformedAt), c.Result.String(), string(payload), c.LocalID)
	if err != nil {
		return fmt.Errorf("failed to update calibration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	c.IsSynced = false
	return nil
}

// Delete removes a calibration row. Local-only, like system deletion.
func (st *CalibrationStore) Delete(ctx context.Context, localID int64) error {
	_, err := st.db.ExecContext(ctx, `DELETE FROM calibrations WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete calibration: %w", err)
	}
	return nil
}

// GetByLocalID looks a calibration up by its store-assigned id.
func (st *CalibrationStore) GetByLocalID(ctx context.Context, localID int64) (*record.Calibration, error) {
	c, err := scanCalibration(st.db.QueryRowContext(ctx,
		`SELECT `+calibrationColumns+` FROM calibrations WHERE local_id = ?`, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListPending returns calibrations that still need uploading, in creation
// order.
func (st *CalibrationStore) ListPending(ctx context.Context) ([]*record.Calibration, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT `+calibrationColumns+` FROM calibrations
		WHERE is_synced = 0 OR cloud_id = 0
		ORDER BY local_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending calibrations: %w", err)
	}
	defer rows.Close()

	var out []*record.Calibration
	for rows.Next() {
		c, err := scanCalibration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calibration: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calibrations: %w", err)
	}
	return out, nil
}

// ListBySystemTempID returns calibrations still linked to a parent only by
// its placeholder id.
func (st *CalibrationStore) ListBySystemTempID(ctx context.Context, systemTempID int64) ([]*record.Calibration, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT `+calibrationColumns+` FROM calibrations
		WHERE system_temp_id = ? AND system_cloud_id = 0
		ORDER BY local_id`, systemTempID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibrations by system temp id: %w", err)
	}
	defer rows.Close()

	var out []*record.Calibration
	for rows.Next() {
		c, err := scanCalibration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calibration: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calibrations: %w", err)
	}
	return out, nil
}

// RelinkSystem points every calibration that references the parent by temp
// id at the parent's newly assigned cloud id. Called as part of reconciling
// a system creation so dependents are never orphaned.
func (st *CalibrationStore) RelinkSystem(ctx context.Context, systemTempID, systemCloudID int64) error {
	_, err := st.db.ExecContext(ctx, `
		UPDATE calibrations SET system_cloud_id = ?
		WHERE system_temp_id = ? AND system_cloud_id = 0
	`, systemCloudID, systemTempID)
	if err != nil {
		return fmt.Errorf("failed to relink calibrations: %w", err)
	}
	return nil
}

// AssignCloudID records the cloud-assigned identity for a calibration
// matched by its temp id.
func (st *CalibrationStore) AssignCloudID(ctx context.Context, tempID, cloudID int64) error {
	res, err := st.db.ExecContext(ctx, `
		UPDATE calibrations SET cloud_id = ?, is_synced = 1
		WHERE temp_id = ? AND cloud_id = 0
	`, cloudID, tempID)
	if err != nil {
		return fmt.Errorf("failed to assign calibration cloud id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSynced flags a calibration as matching the cloud copy.
func (st *CalibrationStore) MarkSynced(ctx context.Context, localID int64) error {
	res, err := st.db.ExecContext(ctx, `UPDATE calibrations SET is_synced = 1 WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to mark calibration synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
