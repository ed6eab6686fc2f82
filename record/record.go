// Package record defines the entity model shared by the local store, the
// cloud API client and the sync repositories.
//
// Entities that originate on the device (systems, calibrations) carry a
// SyncMeta with the dual-identity fields used by sync reconciliation.
// Reference entities (customers, models, system types, sensitivity levels,
// notices) are cloud-owned lookup data; the local copy is a disposable cache.
// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncMeta holds the identity and sync-state fields shared by locally
// created entities.
//
// LocalID is the store-assigned primary key, stable for the lifetime of the
// local row. TempID is a client-generated placeholder identity assigned when
// the record is created before the cloud knows about it; it is unique within
// the local store and retains its value after a cloud id is assigned, but is
// never used for matching once CloudID is non-zero. CloudID is the
// authoritative identity assigned by the cloud service on creation; zero
// means "not yet created remotely".
type SyncMeta struct {
	LocalID  int64
	TempID   int64
	CloudID  int64
	IsSynced bool
}

// NeedsUpload reports whether the record has local state the cloud has not
// confirmed yet.
func (m SyncMeta) NeedsUpload() bool {
	return !m.IsSynced || m.CloudID == 0
}

// CloudLinked reports whether the cloud has assigned this record its
// canonical identity.
func (m SyncMeta) CloudLinked() bool {
	return m.CloudID != 0
}

// Condition describes the operational condition of a detector system.
type Condition string

const (
	ConditionUnknown      Condition = "unknown"
	ConditionOperational  Condition = "operational"
	ConditionNeedsService Condition = "needs_service"
	ConditionOutOfService Condition = "out_of_service"
)

// ParseCondition validates a stored or wire condition value. Values are
// validated here, at the serialization edge, rather than being carried
// around as free text.
func ParseCondition(s string) (Condition, error) {
	switch Condition(s) {
	case ConditionUnknown, ConditionOperational, ConditionNeedsService, ConditionOutOfService:
		return Condition(s), nil
	}
	return ConditionUnknown, fmt.Errorf("invalid system condition %q", s)
}

func (c Condition) String() string { return string(c) }

// CalResult is the outcome of a calibration run.
type CalResult string

const (
	ResultPass     CalResult = "pass"
	ResultFail     CalResult = "fail"
	ResultAdjusted CalResult = "adjusted"
)

// ParseCalResult validates a stored or wire calibration result value.
func ParseCalResult(s string) (CalResult, error) {
	switch CalResult(s) {
	case ResultPass, ResultFail, ResultAdjusted:
		return CalResult(s), nil
	}
	return "", fmt.Errorf("invalid calibration result %q", s)
}

func (r CalResult) String() string { return string(r) }

// System is a metal-detector installation at a customer site. Serial is the
// natural key: the cloud enforces its uniqueness, and the client must never
// create two cloud records with the same serial.
type System struct {
	SyncMeta

	Serial       string
	CustomerID   int64 // cloud id of the owning customer
	ModelID      int64 // cloud id of the detector model
	SystemTypeID int64 // cloud id of the system type
	Location     string
	Condition    Condition
	Notes        string
	UpdatedAt    time.Time
}

// Calibration is one recorded calibration of a system. The form payload is
// opaque to sync; it is captured at save time and uploaded as-is.
//
// A calibration created against a system that has not been uploaded yet
// references its parent by SystemTempID. Once the parent obtains a cloud id
// the calibration is relinked, so dependents are never orphaned from the
// parent's canonical identity.
type Calibration struct {
	SyncMeta

	SystemCloudID int64
	SystemTempID  int64
	PerformedAt   time.Time
	Result        CalResult
	Payload       json.RawMessage
}

// ParentLinked reports whether the parent system's canonical identity is
// known. Calibrations are not uploadable until it is.
func (c Calibration) ParentLinked() bool {
	return c.SystemCloudID != 0
}

// Customer is a reference entity: a client company owning systems.
type Customer struct {
	CloudID int64
	Name    string
	City    string
}

// Model is a reference entity: a detector model in the manufacturer catalog.
type Model struct {
	CloudID      int64
	SystemTypeID int64
	Name         string
}

// SystemType is a reference entity: a detector family (e.g. conveyor,
// pipeline, freefall).
type SystemType struct {
	CloudID int64
	Name    string
}

// SensitivityLevel is a reference entity: a recommended sensitivity setting
// for a product category on a given system type.
type SensitivityLevel struct {
	CloudID      int64
	SystemTypeID int64
	Product      string
	Level        string
}

// Notice is a reference entity: a service bulletin published by the cloud.
type Notice struct {
	CloudID     int64
	Title       string
	Body        string
	PublishedAt time.Time
}
