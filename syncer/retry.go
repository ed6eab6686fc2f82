// Package syncer decides, for each locally created or modified record,
// whether and how it is pushed to the cloud, reconciles record identity once
// the cloud assigns a canonical id, and merges full remote refreshes without
// clobbering pending local edits.
// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"context"
	"time"

	"github.com/fieldworks/calsync/cloudapi"
)

// Policy bounds the retry behavior around one remote call.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retriable classifies an error as transient. Defaults to
	// cloudapi.Transient.
	Retriable func(error) bool
}

// DefaultPolicy returns the standard retry parameters.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 600 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 600 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 8 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	if p.Retriable == nil {
		p.Retriable = cloudapi.Transient
	}
	return p
}

// Retry executes op under the policy. Transient failures are retried with
// exponential backoff up to MaxAttempts-1 guarded attempts, then one final
// unguarded attempt decides the outcome. If the final attempt itself fails
// transiently, the earliest recorded transient error propagates. Permanent
// failures return immediately without consuming further attempts. Purely a
// control-flow decorator: no shared state beyond the wrapped operation.
func Retry[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	delay := p.InitialDelay
	var lastTransient error

	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil || !p.Retriable(err) {
			return v, err
		}
		lastTransient = err
		if err := sleepWithContext(ctx, delay); err != nil {
			var zero T
			return zero, err
		}
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	v, err := op(ctx)
	if err != nil && p.Retriable(err) && lastTransient != nil {
		return v, lastTransient
	}
	return v, err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
