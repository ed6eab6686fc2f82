// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package cloudapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListSystems fetches the full authoritative system collection.
func (c *Client) ListSystems(ctx context.Context) ([]SystemPayload, error) {
	var out []SystemPayload
	if err := c.do(ctx, http.MethodGet, "/api/systems", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	return out, nil
}

// CreateSystem creates a system remotely and returns the server-assigned id.
// Callers must have confirmed the serial does not exist remotely first.
func (c *Client) CreateSystem(ctx context.Context, payload SystemPayload) (int64, error) {
	payload.ID = 0
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/systems", payload, &resp); err != nil {
		return 0, fmt.Errorf("failed to create system %q: %w", payload.Serial, err)
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("create system %q: server returned no id", payload.Serial)
	}
	return resp.ID, nil
}

// UpdateSystem pushes current field values for a cloud-linked system.
func (c *Client) UpdateSystem(ctx context.Context, cloudID int64, payload SystemPayload) error {
	payload.ID = cloudID
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/systems/%d", cloudID), payload, nil); err != nil {
		return fmt.Errorf("failed to update system %d: %w", cloudID, err)
	}
	return nil
}

// SerialExists asks the cloud whether any system already carries the serial.
// The answer is authoritative.
func (c *Client) SerialExists(ctx context.Context, serial string) (bool, error) {
	var resp existsResponse
	path := "/api/systems/serial-exists?serial=" + url.QueryEscape(serial)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, fmt.Errorf("failed to check serial %q: %w", serial, err)
	}
	return resp.Exists, nil
}
