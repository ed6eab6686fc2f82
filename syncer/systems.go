// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fieldworks/calsync/cloudapi"
	"github.com/fieldworks/calsync/localdb"
	"github.com/fieldworks/calsync/record"
)

// SystemRepository orchestrates sync for detector systems: the pending
// upload pass, the full remote refresh, identity reconciliation and the
// serial existence check.
type SystemRepository struct {
	store  *localdb.SystemStore
	cals   *localdb.CalibrationStore
	cloud  *cloudapi.Client
	net    Connectivity
	retry  Policy
	logger *slog.Logger

	// Serializes sync batches so two overlapping "sync" taps cannot race on
	// the same rows.
	mu sync.Mutex
}

// NewSystemRepository wires the repository from its collaborators. All
// dependencies are explicit; nothing is looked up through globals.
func NewSystemRepository(store *localdb.SystemStore, cals *localdb.CalibrationStore, cloud *cloudapi.Client, net Connectivity, retry Policy, logger *slog.Logger) *SystemRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemRepository{
		store:  store,
		cals:   cals,
		cloud:  cloud,
		net:    net,
		retry:  retry,
		logger: logger,
	}
}

// Resolve finds the local record by whichever identity the caller knows:
// cloud id first, then local id, then temp id.
func (r *SystemRepository) Resolve(ctx context.Context, cloudID, localID, tempID int64) (*record.System, error) {
	return r.store.Resolve(ctx, cloudID, localID, tempID)
}

// SyncPending uploads every record that needs it, one network round trip at
// a time in pending-query order. With no connectivity the whole batch is
// aborted up front: zero remote calls, immediate failure result. Individual
// record failures do not stop the batch.
func (r *SystemRepository) SyncPending(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.net.Online(ctx) {
		r.logger.Warn("system sync aborted: no connectivity")
		return abortedResult("no connection to the calibration service"), nil
	}

	pending, err := r.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending systems: %w", err)
	}

	result := &Result{}
	for _, sys := range pending {
		if sys.CloudLinked() {
			r.syncUpdate(ctx, sys, result)
		} else {
			r.syncCreate(ctx, sys, result)
		}
	}

	r.logger.Info("system sync finished",
		"uploaded", result.Uploaded,
		"conflicts", len(result.Conflicts),
		"failed", len(result.Failures))
	return result, nil
}

// syncUpdate pushes current local field values for a cloud-linked record.
func (r *SystemRepository) syncUpdate(ctx context.Context, sys *record.System, result *Result) {
	_, err := Retry(ctx, r.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.cloud.UpdateSystem(ctx, sys.CloudID, toSystemPayload(sys))
	})
	if err != nil {
		r.logger.Warn("system update failed", "serial", sys.Serial, "cloud_id", sys.CloudID, "error", err)
		result.Failures = append(result.Failures, Failure{Key: sys.Serial, Reason: err.Error()})
		return
	}
	if err := r.store.MarkSynced(ctx, sys.LocalID); err != nil {
		result.Failures = append(result.Failures, Failure{Key: sys.Serial, Reason: err.Error()})
		return
	}
	r.logger.Debug("system updated remotely", "serial", sys.Serial, "cloud_id", sys.CloudID)
	result.Uploaded++
}

// syncCreate creates a record remotely after the duplicate-serial guard and
// reconciles its identity on success.
func (r *SystemRepository) syncCreate(ctx context.Context, sys *record.System, result *Result) {
	exists, err := Retry(ctx, r.retry, func(ctx context.Context) (bool, error) {
		return r.cloud.SerialExists(ctx, sys.Serial)
	})
	if err != nil {
		r.logger.Warn("serial check failed", "serial", sys.Serial, "error", err)
		result.Failures = append(result.Failures, Failure{Key: sys.Serial, Reason: err.Error()})
		return
	}
	if exists {
		// The natural key is already taken remotely. Creating would make a
		// duplicate, so the record is flagged for manual merge and the
		// create path is never invoked for it in this batch.
		r.logger.Warn("system conflicts with existing remote serial", "serial", sys.Serial)
		result.Conflicts = append(result.Conflicts, sys.Serial)
		return
	}

	cloudID, err := Retry(ctx, r.retry, func(ctx context.Context) (int64, error) {
		return r.cloud.CreateSystem(ctx, toSystemPayload(sys))
	})
	if err != nil {
		r.logger.Warn("system create failed", "serial", sys.Serial, "error", err)
		result.Failures = append(result.Failures, Failure{Key: sys.Serial, Reason: err.Error()})
		return
	}

	if err := r.reconcileCreated(ctx, sys, cloudID); err != nil {
		result.Failures = append(result.Failures, Failure{Key: sys.Serial, Reason: err.Error()})
		return
	}
	r.logger.Debug("system created remotely", "serial", sys.Serial, "cloud_id", cloudID)
	result.Uploaded++
}

// reconcileCreated migrates a record from local-only to cloud-linked: the
// cloud id is written in, the temp id is retired from matching, and any
// calibrations still referencing the parent by temp id are relinked.
func (r *SystemRepository) reconcileCreated(ctx context.Context, sys *record.System, cloudID int64) error {
	if err := r.store.AssignCloudID(ctx, sys.TempID, cloudID); err != nil {
		return fmt.Errorf("failed to record cloud id for %q: %w", sys.Serial, err)
	}
	sys.CloudID = cloudID
	sys.IsSynced = true

	if r.cals != nil && sys.TempID != 0 {
		if err := r.cals.RelinkSystem(ctx, sys.TempID, cloudID); err != nil {
			return fmt.Errorf("failed to relink calibrations for %q: %w", sys.Serial, err)
		}
	}
	return nil
}

// RefreshFromCloud replaces the synced portion of the local table with the
// authoritative remote collection. Records still needing upload are never
// deleted or overwritten; they stay behind for the next upload pass.
func (r *SystemRepository) RefreshFromCloud(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payloads, err := Retry(ctx, r.retry, func(ctx context.Context) ([]cloudapi.SystemPayload, error) {
		return r.cloud.ListSystems(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to fetch system collection: %w", err)
	}

	snapshot := make([]*record.System, 0, len(payloads))
	for _, p := range payloads {
		sys, err := fromSystemPayload(p)
		if err != nil {
			return fmt.Errorf("malformed system in remote collection: %w", err)
		}
		snapshot = append(snapshot, sys)
	}

	if err := r.store.MergeRemoteSnapshot(ctx, snapshot); err != nil {
		return err
	}
	r.logger.Info("system collection refreshed", "remote", len(snapshot))
	return nil
}

// CheckSerial answers whether a serial number is already in use. Online, the
// cloud's answer is authoritative. Offline, the local store answers and the
// result says so, so callers can warn rather than trust it. A transport
// failure while online is an error, never a silent "not found".
func (r *SystemRepository) CheckSerial(ctx context.Context, serial string) (SerialCheck, error) {
	if !r.net.Online(ctx) {
		exists, err := r.store.SerialExists(ctx, serial)
		if err != nil {
			return SerialCheck{}, err
		}
		return SerialCheck{Exists: exists, Authoritative: false}, nil
	}

	exists, err := Retry(ctx, r.retry, func(ctx context.Context) (bool, error) {
		return r.cloud.SerialExists(ctx, serial)
	})
	if err != nil {
		return SerialCheck{}, fmt.Errorf("serial check unavailable: %w", err)
	}
	return SerialCheck{Exists: exists, Authoritative: true}, nil
}

// SerialCheck is the outcome of a duplicate-serial lookup.
type SerialCheck struct {
	Exists        bool
	Authoritative bool // false when answered from the local cache while offline
}

func toSystemPayload(s *record.System) cloudapi.SystemPayload {
	return cloudapi.SystemPayload{
		ID:           s.CloudID,
		Serial:       s.Serial,
		CustomerID:   s.CustomerID,
		ModelID:      s.ModelID,
		SystemTypeID: s.SystemTypeID,
		Location:     s.Location,
		Condition:    s.Condition.String(),
		Notes:        s.Notes,
	}
}

func fromSystemPayload(p cloudapi.SystemPayload) (*record.System, error) {
	cond, err := record.ParseCondition(p.Condition)
	if err != nil {
		return nil, fmt.Errorf("system %q: %w", p.Serial, err)
	}
	return &record.System{
		SyncMeta:     record.SyncMeta{CloudID: p.ID, IsSynced: true},
		Serial:       p.Serial,
		CustomerID:   p.CustomerID,
		ModelID:      p.ModelID,
		SystemTypeID: p.SystemTypeID,
		Location:     p.Location,
		Condition:    cond,
		Notes:        p.Notes,
	}, nil
}
