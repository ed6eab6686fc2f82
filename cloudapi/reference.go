// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package cloudapi

import (
	"context"
	"fmt"
	"net/http"
)

// ListCustomers fetches the full customer collection.
func (c *Client) ListCustomers(ctx context.Context) ([]CustomerPayload, error) {
	var out []CustomerPayload
	if err := c.do(ctx, http.MethodGet, "/api/customers", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return out, nil
}

// ListModels fetches the detector model catalog.
func (c *Client) ListModels(ctx context.Context) ([]ModelPayload, error) {
	var out []ModelPayload
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return out, nil
}

// ListSystemTypes fetches the system-type collection.
func (c *Client) ListSystemTypes(ctx context.Context) ([]SystemTypePayload, error) {
	var out []SystemTypePayload
	if err := c.do(ctx, http.MethodGet, "/api/system-types", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list system types: %w", err)
	}
	return out, nil
}

// ListSensitivityLevels fetches the sensitivity reference table.
func (c *Client) ListSensitivityLevels(ctx context.Context) ([]SensitivityLevelPayload, error) {
	var out []SensitivityLevelPayload
	if err := c.do(ctx, http.MethodGet, "/api/sensitivity-levels", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list sensitivity levels: %w", err)
	}
	return out, nil
}

// ListNotices fetches the published service bulletins.
func (c *Client) ListNotices(ctx context.Context) ([]NoticePayload, error) {
	var out []NoticePayload
	if err := c.do(ctx, http.MethodGet, "/api/notices", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	return out, nil
}
