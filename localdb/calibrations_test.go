// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldworks/calsync/record"
)

func newCal(systemCloudID, systemTempID int64) *record.Calibration {
	return &record.Calibration{
		SystemCloudID: systemCloudID,
		SystemTempID:  systemTempID,
		PerformedAt:   time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC),
		Result:        record.ResultPass,
		Payload:       json.RawMessage(`{"ferrous":"1.5mm"}`),
	}
}

func TestCalibrationInsertAndGet(t *testing.T) {
	db := newTestDB(t)
	store := NewCalibrationStore(db)
	ctx := context.Background()

	cal := newCal(10, 0)
	require.NoError(t, store.Insert(ctx, cal))
	require.NotZero(t, cal.LocalID)
	require.NotZero(t, cal.TempID)

	got, err := store.GetByLocalID(ctx, cal.LocalID)
	require.NoError(t, err)
	require.Equal(t, record.ResultPass, got.Result)
	require.Equal(t, int64(10), got.SystemCloudID)
	require.JSONEq(t, `{"ferrous":"1.5mm"}`, string(got.Payload))
	require.True(t, got.PerformedAt.Equal(cal.PerformedAt))
}

func TestCalibrationRelinkSystem(t *testing.T) {
	db := newTestDB(t)
	store := NewCalibrationStore(db)
	ctx := context.Background()

	// Two calibrations against the same unsynced parent, one against another.
	a := newCal(0, 77)
	b := newCal(0, 77)
	other := newCal(0, 88)
	for _, c := range []*record.Calibration{a, b, other} {
		require.NoError(t, store.Insert(ctx, c))
	}

	require.NoError(t, store.RelinkSystem(ctx, 77, 900))

	for _, id := range []int64{a.LocalID, b.LocalID} {
		got, err := store.GetByLocalID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, int64(900), got.SystemCloudID)
	}
	gotOther, err := store.GetByLocalID(ctx, other.LocalID)
	require.NoError(t, err)
	require.Zero(t, gotOther.SystemCloudID, "unrelated parent linkage untouched")

	// Relinked calibrations no longer appear in the temp-id query.
	unlinked, err := store.ListBySystemTempID(ctx, 77)
	require.NoError(t, err)
	require.Empty(t, unlinked)
}

func TestCalibrationAssignCloudID(t *testing.T) {
	db := newTestDB(t)
	store := NewCalibrationStore(db)
	ctx := context.Background()

	cal := newCal(10, 0)
	require.NoError(t, store.Insert(ctx, cal))

	require.NoError(t, store.AssignCloudID(ctx, cal.TempID, 333))

	got, err := store.GetByLocalID(ctx, cal.LocalID)
	require.NoError(t, err)
	require.Equal(t, int64(333), got.CloudID)
	require.True(t, got.IsSynced)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCalibrationUpdate_MakesPendingAgain(t *testing.T) {
	db := newTestDB(t)
	store := NewCalibrationStore(db)
	ctx := context.Background()

	cal := newCal(10, 0)
	require.NoError(t, store.Insert(ctx, cal))
	require.NoError(t, store.AssignCloudID(ctx, cal.TempID, 333))

	cal.Result = record.ResultAdjusted
	require.NoError(t, store.Update(ctx, cal))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, record.ResultAdjusted, pending[0].Result)
}
