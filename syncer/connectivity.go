// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"time"

	"github.com/fieldworks/calsync/cloudapi"
)

// Connectivity answers whether the cloud is worth talking to right now.
// The mobile shell usually injects its own implementation backed by the
// platform's reachability API.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// Probe is a Connectivity implementation that pings the service's health
// endpoint with a short deadline.
type Probe struct {
	Client  *cloudapi.Client
	Timeout time.Duration
}

// NewProbe creates a probe over the given client.
func NewProbe(client *cloudapi.Client) *Probe {
	return &Probe{Client: client, Timeout: 3 * time.Second}
}

// Online reports whether the health endpoint answered in time.
func (p *Probe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Client.Ping(ctx) == nil
}
