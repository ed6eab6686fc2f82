// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package localdb

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/calsync/record"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, Initialize(db))
	_, err = EnsureDeviceID(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureDeviceID_Stable(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()
	require.NoError(t, Initialize(db))

	first, err := EnsureDeviceID(db)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := EnsureDeviceID(db)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSystemInsert_AllocatesUniqueTempIDs(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		sys := &record.System{Serial: "SN", Condition: record.ConditionUnknown}
		require.NoError(t, store.Insert(ctx, sys))
		require.NotZero(t, sys.TempID)
		require.NotZero(t, sys.LocalID)
		require.False(t, seen[sys.TempID], "temp id reused")
		seen[sys.TempID] = true
	}
}

func TestSystemInsert_RemoteBornRecordGetsNoTempID(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	sys := &record.System{
		SyncMeta:  record.SyncMeta{CloudID: 7, IsSynced: true},
		Serial:    "SN-REMOTE",
		Condition: record.ConditionOperational,
	}
	require.NoError(t, store.Insert(ctx, sys))
	require.Zero(t, sys.TempID)
}

func TestSystemResolve_PriorityOrder(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	a := &record.System{Serial: "SN-A", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, a))
	b := &record.System{Serial: "SN-B", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, b))
	require.NoError(t, store.AssignCloudID(ctx, b.TempID, 500))

	// Cloud id wins over a local id that names a different record.
	got, err := store.Resolve(ctx, 500, a.LocalID, 0)
	require.NoError(t, err)
	require.Equal(t, "SN-B", got.Serial)

	// Local id wins over temp id.
	got, err = store.Resolve(ctx, 0, a.LocalID, 999999)
	require.NoError(t, err)
	require.Equal(t, "SN-A", got.Serial)

	// Temp id alone.
	got, err = store.Resolve(ctx, 0, 0, a.TempID)
	require.NoError(t, err)
	require.Equal(t, "SN-A", got.Serial)

	// Unknown identities.
	_, err = store.Resolve(ctx, 424242, 424242, 424242)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSystemAssignCloudID_RetiresTempID(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	sys := &record.System{Serial: "SN-1", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, sys))

	require.NoError(t, store.AssignCloudID(ctx, sys.TempID, 99))

	got, err := store.GetByCloudID(ctx, 99)
	require.NoError(t, err)
	require.True(t, got.IsSynced)
	require.Equal(t, sys.TempID, got.TempID)

	_, err = store.GetByTempID(ctx, sys.TempID)
	require.ErrorIs(t, err, ErrNotFound)

	// Assigning twice does not rematch the retired temp id.
	err = store.AssignCloudID(ctx, sys.TempID, 100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSystemListPending(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	localOnly := &record.System{Serial: "SN-LOCAL", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, localOnly))

	syncedWithEdit := &record.System{Serial: "SN-EDIT", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, syncedWithEdit))
	require.NoError(t, store.AssignCloudID(ctx, syncedWithEdit.TempID, 11))
	syncedWithEdit.CloudID = 11
	require.NoError(t, store.Update(ctx, syncedWithEdit))

	clean := &record.System{Serial: "SN-CLEAN", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, clean))
	require.NoError(t, store.AssignCloudID(ctx, clean.TempID, 12))

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "SN-LOCAL", pending[0].Serial)
	require.Equal(t, "SN-EDIT", pending[1].Serial)
}

func TestSystemUpdate_ResetsSyncFlag(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	sys := &record.System{Serial: "SN-1", Condition: record.ConditionOperational}
	require.NoError(t, store.Insert(ctx, sys))
	require.NoError(t, store.AssignCloudID(ctx, sys.TempID, 5))

	sys.CloudID = 5
	sys.Condition = record.ConditionNeedsService
	require.NoError(t, store.Update(ctx, sys))

	got, err := store.GetByLocalID(ctx, sys.LocalID)
	require.NoError(t, err)
	require.False(t, got.IsSynced)
	require.Equal(t, record.ConditionNeedsService, got.Condition)
}

func TestMergeRemoteSnapshot_PreservesPendingRows(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	// Fully synced, should be replaced.
	synced := &record.System{Serial: "SN-SYNCED", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, synced))
	require.NoError(t, store.AssignCloudID(ctx, synced.TempID, 1))

	// Cloud-linked with local edits, must survive with local values.
	edited := &record.System{Serial: "SN-EDITED", Location: "local value", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, edited))
	require.NoError(t, store.AssignCloudID(ctx, edited.TempID, 2))
	edited.CloudID = 2
	require.NoError(t, store.Update(ctx, edited))

	// Never uploaded, must survive.
	localOnly := &record.System{Serial: "SN-LOCAL", Condition: record.ConditionUnknown}
	require.NoError(t, store.Insert(ctx, localOnly))

	snapshot := []*record.System{
		{SyncMeta: record.SyncMeta{CloudID: 1}, Serial: "SN-SYNCED", Location: "remote", Condition: record.ConditionOperational},
		{SyncMeta: record.SyncMeta{CloudID: 2}, Serial: "SN-EDITED", Location: "remote value", Condition: record.ConditionOperational},
		{SyncMeta: record.SyncMeta{CloudID: 3}, Serial: "SN-THIRD", Condition: record.ConditionOperational},
	}
	require.NoError(t, store.MergeRemoteSnapshot(ctx, snapshot))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)

	got, err := store.GetByCloudID(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "local value", got.Location)
	require.False(t, got.IsSynced)

	gotSynced, err := store.GetByCloudID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "remote", gotSynced.Location)
	require.True(t, gotSynced.IsSynced)

	_, err = store.GetByLocalID(ctx, localOnly.LocalID)
	require.NoError(t, err)
}

func TestSystemSerialExists(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	exists, err := store.SerialExists(ctx, "SN-1")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Insert(ctx, &record.System{Serial: "SN-1", Condition: record.ConditionUnknown}))

	exists, err = store.SerialExists(ctx, "SN-1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestSystemCondition_RejectedAtStorageBoundary(t *testing.T) {
	db := newTestDB(t)
	store := NewSystemStore(db)
	ctx := context.Background()

	// Simulate a legacy row carrying free-text status.
	_, err := db.Exec(`
		INSERT INTO systems (temp_id, serial_no, condition) VALUES (1, 'SN-BAD', 'kind of ok')
	`)
	require.NoError(t, err)

	_, err = store.GetByLocalID(ctx, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid system condition")
}
