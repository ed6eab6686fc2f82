// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// CalibrationExport is the multipart upload of one calibration record. The
// report blob is the opaque form payload captured at save time; the cloud
// stores it as-is and assigns the calibration its id.
type CalibrationExport struct {
	CloudID       int64 // non-zero when re-exporting an edited calibration
	SystemCloudID int64
	DeviceID      string
	PerformedAt   time.Time
	Result        string
	Report        json.RawMessage
}

// UploadCalibrationExport pushes one calibration export and returns the
// cloud-assigned calibration id.
func (c *Client) UploadCalibrationExport(ctx context.Context, export CalibrationExport) (int64, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"systemId":    strconv.FormatInt(export.SystemCloudID, 10),
		"deviceId":    export.DeviceID,
		"performedAt": export.PerformedAt.UTC().Format(time.RFC3339),
		"result":      export.Result,
	}
	if export.CloudID != 0 {
		fields["id"] = strconv.FormatInt(export.CloudID, 10)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return 0, fmt.Errorf("failed to write export field %s: %w", name, err)
		}
	}

	part, err := w.CreateFormFile("report", "report.json")
	if err != nil {
		return 0, fmt.Errorf("failed to create report part: %w", err)
	}
	report := export.Report
	if len(report) == 0 {
		report = json.RawMessage(`{}`)
	}
	if _, err := part.Write(report); err != nil {
		return 0, fmt.Errorf("failed to write report part: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/calibrations/export", &buf)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := c.authorize(ctx, req); err != nil {
		return 0, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("failed to decode export response: %w", err)
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("calibration export: server returned no id")
	}
	return created.ID, nil
}
