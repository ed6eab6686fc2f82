// Package localdb is the on-device record store: a SQLite database holding
// systems, calibrations and the cached reference tables, plus the client
// bookkeeping (device id, temp-id counter) that sync depends on.
// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("localdb: record not found")

// timeFormat is the canonical text representation for timestamps stored in
// SQLite.
const timeFormat = time.RFC3339Nano

// Open opens (or creates) the database file and prepares the schema.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := Initialize(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Initialize creates the schema. Safe to call on every start.
func Initialize(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		// Client/device bookkeeping (one row)
		`CREATE TABLE IF NOT EXISTS _calsync_client_info (
			device_id     TEXT NOT NULL,
			next_temp_id  INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (device_id)
		)`,

		`CREATE TABLE IF NOT EXISTS systems (
			local_id        INTEGER PRIMARY KEY AUTOINCREMENT,
			temp_id         INTEGER NOT NULL DEFAULT 0,
			cloud_id        INTEGER NOT NULL DEFAULT 0,
			serial_no       TEXT NOT NULL,
			customer_id     INTEGER NOT NULL DEFAULT 0,
			model_id        INTEGER NOT NULL DEFAULT 0,
			system_type_id  INTEGER NOT NULL DEFAULT 0,
			location        TEXT NOT NULL DEFAULT '',
			condition       TEXT NOT NULL DEFAULT 'unknown',
			notes           TEXT NOT NULL DEFAULT '',
			is_synced       INTEGER NOT NULL DEFAULT 0,
			updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_systems_serial ON systems(serial_no)`,
		`CREATE INDEX IF NOT EXISTS idx_systems_cloud ON systems(cloud_id)`,

		`CREATE TABLE IF NOT EXISTS calibrations (
			local_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			temp_id          INTEGER NOT NULL DEFAULT 0,
			cloud_id         INTEGER NOT NULL DEFAULT 0,
			system_cloud_id  INTEGER NOT NULL DEFAULT 0,
			system_temp_id   INTEGER NOT NULL DEFAULT 0,
			performed_at     TEXT NOT NULL,
			result           TEXT NOT NULL,
			payload          TEXT NOT NULL DEFAULT '{}',
			is_synced        INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calibrations_system_temp ON calibrations(system_temp_id)`,

		// Reference caches, cloud is the sole source of truth
		`CREATE TABLE IF NOT EXISTS customers (
			cloud_id  INTEGER PRIMARY KEY,
			name      TEXT NOT NULL,
			city      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS models (
			cloud_id        INTEGER PRIMARY KEY,
			system_type_id  INTEGER NOT NULL DEFAULT 0,
			name            TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS system_types (
			cloud_id  INTEGER PRIMARY KEY,
			name      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sensitivity_levels (
			cloud_id        INTEGER PRIMARY KEY,
			system_type_id  INTEGER NOT NULL DEFAULT 0,
			product         TEXT NOT NULL,
			level           TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notices (
			cloud_id      INTEGER PRIMARY KEY,
			title         TEXT NOT NULL,
			body          TEXT NOT NULL DEFAULT '',
			published_at  TEXT NOT NULL
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// EnsureDeviceID returns the persisted per-install device id, generating and
// storing one on first use.
func EnsureDeviceID(db *sql.DB) (string, error) {
	var deviceID string
	err := db.QueryRow(`SELECT device_id FROM _calsync_client_info LIMIT 1`).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		deviceID = uuid.New().String()
		_, err = db.Exec(`
			INSERT INTO _calsync_client_info (device_id, next_temp_id) VALUES (?, 1)
		`, deviceID)
		if err != nil {
			return "", fmt.Errorf("failed to insert client info: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to query client info: %w", err)
	}
	return deviceID, nil
}

// nextTempID allocates the next client-local placeholder id from the
// persisted counter, so temp ids stay unique for the lifetime of the store.
func nextTempID(ctx context.Context, db *sql.DB) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin temp id transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT next_temp_id FROM _calsync_client_info LIMIT 1`).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("client info missing; call EnsureDeviceID first")
		}
		return 0, fmt.Errorf("failed to read temp id counter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE _calsync_client_info SET next_temp_id = ?`, id+1); err != nil {
		return 0, fmt.Errorf("failed to advance temp id counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit temp id transaction: %w", err)
	}
	return id, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Older rows may carry the strftime default format.
		t, err = time.Parse("2006-01-02T15:04:05.000Z", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
