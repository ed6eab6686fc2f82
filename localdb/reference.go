// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldworks/calsync/record"
)

// ReferenceStore caches the cloud-owned lookup tables. Each table is
// replaced wholesale on refresh: clear-then-insert inside one transaction,
// so a crash mid-refresh cannot leave a table half-cleared.
type ReferenceStore struct {
	db *sql.DB
}

// NewReferenceStore creates a store over an initialized database.
func NewReferenceStore(db *sql.DB) *ReferenceStore {
	return &ReferenceStore{db: db}
}

// replaceAll runs the clear-then-insert cycle for one table.
func (st *ReferenceStore) replaceAll(ctx context.Context, table string, insert func(tx *sql.Tx) error) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s refresh transaction: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s refresh: %w", table, err)
	}
	return nil
}

// ReplaceCustomers swaps the customer cache for the given collection.
func (st *ReferenceStore) ReplaceCustomers(ctx context.Context, customers []record.Customer) error {
	return st.replaceAll(ctx, "customers", func(tx *sql.Tx) error {
		for _, c := range customers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO customers (cloud_id, name, city) VALUES (?, ?, ?)`,
				c.CloudID, c.Name, c.City); err != nil {
				return fmt.Errorf("failed to insert customer %d: %w", c.CloudID, err)
			}
		}
		return nil
	})
}

// ReplaceModels swaps the model catalog cache.
func (st *ReferenceStore) ReplaceModels(ctx context.Context, models []record.Model) error {
	return st.replaceAll(ctx, "models", func(tx *sql.Tx) error {
		for _, m := range models {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO models (cloud_id, system_type_id, name) VALUES (?, ?, ?)`,
				m.CloudID, m.SystemTypeID, m.Name); err != nil {
				return fmt.Errorf("failed to insert model %d: %w", m.CloudID, err)
			}
		}
		return nil
	})
}

// ReplaceSystemTypes swaps the system-type cache.
func (st *ReferenceStore) ReplaceSystemTypes(ctx context.Context, types []record.SystemType) error {
	return st.replaceAll(ctx, "system_types", func(tx *sql.Tx) error {
		for _, t := range types {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO system_types (cloud_id, name) VALUES (?, ?)`,
				t.CloudID, t.Name); err != nil {
				return fmt.Errorf("failed to insert system type %d: %w", t.CloudID, err)
			}
		}
		return nil
	})
}

// ReplaceSensitivityLevels swaps the sensitivity reference cache.
func (st *ReferenceStore) ReplaceSensitivityLevels(ctx context.Context, levels []record.SensitivityLevel) error {
	return st.replaceAll(ctx, "sensitivity_levels", func(tx *sql.Tx) error {
		for _, l := range levels {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sensitivity_levels (cloud_id, system_type_id, product, level) VALUES (?, ?, ?, ?)`,
				l.CloudID, l.SystemTypeID, l.Product, l.Level); err != nil {
				return fmt.Errorf("failed to insert sensitivity level %d: %w", l.CloudID, err)
			}
		}
		return nil
	})
}

// ReplaceNotices swaps the notices cache.
func (st *ReferenceStore) ReplaceNotices(ctx context.Context, notices []record.Notice) error {
	return st.replaceAll(ctx, "notices", func(tx *sql.Tx) error {
		for _, n := range notices {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO notices (cloud_id, title, body, published_at) VALUES (?, ?, ?, ?)`,
				n.CloudID, n.Title, n.Body, formatTime(n.PublishedAt)); err != nil {
				return fmt.Errorf("failed to insert notice %d: %w", n.CloudID, err)
			}
		}
		return nil
	})
}

// ListCustomers returns the cached customer collection.
func (st *ReferenceStore) ListCustomers(ctx context.Context) ([]record.Customer, error) {
	rows, err := st.db.QueryContext(ctx, `SELECT cloud_id, name, city FROM customers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var out []record.Customer
	for rows.Next() {
		var c record.Customer
		if err := rows.Scan(&c.CloudID, &c.Name, &c.City); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListModels returns the cached model catalog.
func (st *ReferenceStore) ListModels(ctx context.Context) ([]record.Model, error) {
	rows, err := st.db.QueryContext(ctx, `SELECT cloud_id, system_type_id, name FROM models ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var out []record.Model
	for rows.Next() {
		var m record.Model
		if err := rows.Scan(&m.CloudID, &m.SystemTypeID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListSystemTypes returns the cached system types.
func (st *ReferenceStore) ListSystemTypes(ctx context.Context) ([]record.SystemType, error) {
	rows, err := st.db.QueryContext(ctx, `SELECT cloud_id, name FROM system_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query system types: %w", err)
	}
	defer rows.Close()

	var out []record.SystemType
	for rows.Next() {
		var t record.SystemType
		if err := rows.Scan(&t.CloudID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan system type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSensitivityLevels returns the cached sensitivity reference rows.
func (st *ReferenceStore) ListSensitivityLevels(ctx context.Context) ([]record.SensitivityLevel, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT cloud_id, system_type_id, product, level FROM sensitivity_levels ORDER BY cloud_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensitivity levels: %w", err)
	}
	defer rows.Close()

	var out []record.SensitivityLevel
	for rows.Next() {
		var l record.SensitivityLevel
		if err := rows.Scan(&l.CloudID, &l.SystemTypeID, &l.Product, &l.Level); err != nil {
			return nil, fmt.Errorf("failed to scan sensitivity level: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListNotices returns the cached notices, newest first.
func (st *ReferenceStore) ListNotices(ctx context.Context) ([]record.Notice, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT cloud_id, title, body, published_at FROM notices ORDER BY published_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notices: %w", err)
	}
	defer rows.Close()

	var out []record.Notice
	for rows.Next() {
		var n record.Notice
		var publishedAt string
		if err := rows.Scan(&n.CloudID, &n.Title, &n.Body, &publishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notice: %w", err)
		}
		n.PublishedAt = parseTime(publishedAt)
		out = append(out, n)
	}
	return out, rows.Err()
}
