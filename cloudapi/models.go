// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package cloudapi

// Wire shapes for the cloud REST surface. Enumerated fields travel as plain
// strings here; they are validated when converted to record types.

// SystemPayload is a detector system as the cloud sees it. ID is
// server-assigned and omitted on create.
type SystemPayload struct {
	ID           int64  `json:"id,omitempty"`
	Serial       string `json:"serialNo"`
	CustomerID   int64  `json:"customerId"`
	ModelID      int64  `json:"modelId"`
	SystemTypeID int64  `json:"systemTypeId"`
	Location     string `json:"location"`
	Condition    string `json:"condition"`
	Notes        string `json:"notes"`
}

// CustomerPayload is a customer collection element.
type CustomerPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

// ModelPayload is a detector model catalog element.
type ModelPayload struct {
	ID           int64  `json:"id"`
	SystemTypeID int64  `json:"systemTypeId"`
	Name         string `json:"name"`
}

// SystemTypePayload is a system-type collection element.
type SystemTypePayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SensitivityLevelPayload is a sensitivity reference element.
type SensitivityLevelPayload struct {
	ID           int64  `json:"id"`
	SystemTypeID int64  `json:"systemTypeId"`
	Product      string `json:"product"`
	Level        string `json:"level"`
}

// NoticePayload is a service bulletin element.
type NoticePayload struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	PublishedAt string `json:"publishedAt"`
}

// createResponse is the body returned by create-style endpoints.
type createResponse struct {
	ID int64 `json:"id"`
}

// existsResponse is the body returned by the serial existence check.
type existsResponse struct {
	Exists bool `json:"exists"`
}
