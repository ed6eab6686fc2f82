// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldworks/calsync/cloudapi"
	"github.com/fieldworks/calsync/localdb"
	"github.com/fieldworks/calsync/record"
)

// ReferenceRepository refreshes the cloud-owned lookup tables. Each table is
// fetched and replaced independently, so a failure in one cannot corrupt
// another's data.
type ReferenceRepository struct {
	store  *localdb.ReferenceStore
	cloud  *cloudapi.Client
	net    Connectivity
	retry  Policy
	logger *slog.Logger

	mu sync.Mutex
}

// NewReferenceRepository wires the repository from its collaborators.
func NewReferenceRepository(store *localdb.ReferenceStore, cloud *cloudapi.Client, net Connectivity, retry Policy, logger *slog.Logger) *ReferenceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceRepository{
		store:  store,
		cloud:  cloud,
		net:    net,
		retry:  retry,
		logger: logger,
	}
}

// RefreshAll refreshes every reference table, continuing past per-table
// failures and reporting them joined.
func (r *ReferenceRepository) RefreshAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.net.Online(ctx) {
		return errors.New("no connection to the calibration service")
	}

	var errs []error
	for _, refresh := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"customers", r.refreshCustomers},
		{"models", r.refreshModels},
		{"system types", r.refreshSystemTypes},
		{"sensitivity levels", r.refreshSensitivityLevels},
		{"notices", r.refreshNotices},
	} {
		if err := refresh.fn(ctx); err != nil {
			r.logger.Warn("reference refresh failed", "table", refresh.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", refresh.name, err))
			continue
		}
		r.logger.Debug("reference table refreshed", "table", refresh.name)
	}
	return errors.Join(errs...)
}

func (r *ReferenceRepository) refreshCustomers(ctx context.Context) error {
	payloads, err := Retry(ctx, r.retry, func(ctx context.Context) ([]cloudapi.CustomerPayload, error) {
		return r.cloud.ListCustomers(ctx)
	})
	if err != nil {
		return err
	}
	customers := make([]record.Customer, 0, len(payloads))
	for _, p := range payloads {
		customers = append(customers, record.Customer{CloudID: p.ID, Name: p.Name, City: p.City})
	}
	return r.store.ReplaceCustomers(ctx, customers)
}

func (r *ReferenceRepository) refreshModels(ctx context.Context) error {
	payloads, err := Retry(ctx, r.retry, func(ctx context.Context) ([]cloudapi.ModelPayload, error) {
		return r.cloud.ListModels(ctx)
	})
	if err != nil {
		return err
	}
	models := make([]record.Model, 0, len(payloads))
	for _, p := range payloads {
		models = append(models, record.Model{CloudID: p.ID, SystemTypeID: p.SystemTypeID, Name: p.Name})
	}
	return r.store.ReplaceModels(ctx, models)
}

func (r *ReferenceRepository) refreshSystemTypes(ctx context.Context) error {
	payloads, err := Retry(ctx, r.retry, func(ctx context.Context) ([]cloudapi.SystemTypePayload, error) {
		return r.cloud.ListSystemTypes(ctx)
	})
	if err != nil {
		return err
	}
	types := make([]record.SystemType, 0, len(payloads))
	for _, p := range payloads {
		types = append(types, record.SystemType{CloudID: p.ID, Name: p.Name})
	}
	return r.store.ReplaceSystemTypes(ctx, types)
}

func (r *ReferenceRepository) refreshSensitivityLevels(ctx context.Context) error {
	payloads, err := Retry(ctx, r.retry, func(ctx context.Context) ([]cloudapi.SensitivityLevelPayload, error) {
		return r.cloud.ListSensitivityLevels(ctx)
	})
	if err != nil {
		return err
	}
	levels := make([]record.SensitivityLevel, 0, len(payloads))
	for _, p := range payloads {
		levels = append(levels, record.SensitivityLevel{
			CloudID:      p.ID,
			SystemTypeID: p.SystemTypeID,
			Product:      p.Product,
			Level:        p.Level,
		})
	}
	return r.store.ReplaceSensitivityLevels(ctx, levels)
}

func (r *ReferenceRepository) refreshNotices(ctx context.Context) error {
	payloads, err := Retry(ctx, r.retry, func(ctx context.Context) ([]cloudapi.NoticePayload, error) {
		return r.cloud.ListNotices(ctx)
	})
	if err != nil {
		return err
	}
	notices := make([]record.Notice, 0, len(payloads))
	for _, p := range payloads {
		publishedAt, err := time.Parse(time.RFC3339, p.PublishedAt)
		if err != nil {
			return fmt.Errorf("notice %d: invalid publishedAt %q: %w", p.ID, p.PublishedAt, err)
		}
		notices = append(notices, record.Notice{
			CloudID:     p.ID,
			Title:       p.Title,
			Body:        p.Body,
			PublishedAt: publishedAt,
		})
	}
	return r.store.ReplaceNotices(ctx, notices)
}
