// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/fieldworks/calsync/cloudapi"
	"github.com/fieldworks/calsync/localdb"
	"github.com/fieldworks/calsync/record"
)

// CalibrationRepository orchestrates sync for calibration records. Each
// pending calibration is exported as an opaque multipart payload; the cloud
// assigns the calibration id in the response.
type CalibrationRepository struct {
	store    *localdb.CalibrationStore
	cloud    *cloudapi.Client
	net      Connectivity
	retry    Policy
	deviceID string
	logger   *slog.Logger

	mu sync.Mutex
}

// NewCalibrationRepository wires the repository from its collaborators.
func NewCalibrationRepository(store *localdb.CalibrationStore, cloud *cloudapi.Client, net Connectivity, retry Policy, deviceID string, logger *slog.Logger) *CalibrationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalibrationRepository{
		store:    store,
		cloud:    cloud,
		net:      net,
		retry:    retry,
		deviceID: deviceID,
		logger:   logger,
	}
}

// SyncPending exports every pending calibration whose parent system is
// already cloud-linked. Calibrations whose parent has no cloud id yet are
// skipped with a reason and stay pending; they become uploadable once the
// parent syncs and the relink runs.
func (r *CalibrationRepository) SyncPending(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.net.Online(ctx) {
		r.logger.Warn("calibration sync aborted: no connectivity")
		return abortedResult("no connection to the calibration service"), nil
	}

	pending, err := r.store.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending calibrations: %w", err)
	}

	result := &Result{}
	for _, cal := range pending {
		key := calibrationKey(cal)

		if !cal.ParentLinked() {
			r.logger.Info("calibration waiting for parent system upload", "calibration", key)
			result.Skipped = append(result.Skipped, Failure{Key: key, Reason: "system not uploaded yet"})
			continue
		}

		export := cloudapi.CalibrationExport{
			CloudID:       cal.CloudID,
			SystemCloudID: cal.SystemCloudID,
			DeviceID:      r.deviceID,
			PerformedAt:   cal.PerformedAt,
			Result:        cal.Result.String(),
			Report:        cal.Payload,
		}
		cloudID, err := Retry(ctx, r.retry, func(ctx context.Context) (int64, error) {
			return r.cloud.UploadCalibrationExport(ctx, export)
		})
		if err != nil {
			r.logger.Warn("calibration export failed", "calibration", key, "error", err)
			result.Failures = append(result.Failures, Failure{Key: key, Reason: err.Error()})
			continue
		}

		if cal.CloudID == 0 {
			err = r.store.AssignCloudID(ctx, cal.TempID, cloudID)
		} else {
			err = r.store.MarkSynced(ctx, cal.LocalID)
		}
		if err != nil {
			result.Failures = append(result.Failures, Failure{Key: key, Reason: err.Error()})
			continue
		}
		r.logger.Debug("calibration exported", "calibration", key, "cloud_id", cloudID)
		result.Uploaded++
	}

	r.logger.Info("calibration sync finished",
		"uploaded", result.Uploaded,
		"skipped", len(result.Skipped),
		"failed", len(result.Failures))
	return result, nil
}

func calibrationKey(cal *record.Calibration) string {
	if cal.CloudID != 0 {
		return "cal-" + strconv.FormatInt(cal.CloudID, 10)
	}
	return "cal-temp-" + strconv.FormatInt(cal.TempID, 10)
}
