// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"fmt"
	"strings"
)

// Failure is one record that could not be uploaded in a batch, identified by
// its natural key (or local id when no natural key exists).
type Failure struct {
	Key    string
	Reason string
}

// Result is the aggregate outcome of one sync batch. Partial failures do not
// stop a batch: the result reports how many records succeeded alongside
// every failure and conflict.
type Result struct {
	Uploaded  int
	Conflicts []string  // natural keys needing manual merge, never auto-resolved
	Skipped   []Failure // records left pending with a reason (e.g. parent not uploaded)
	Failures  []Failure
	Aborted   bool   // whole batch was abandoned before any remote call
	Message   string // set when Aborted
}

// OK reports whether every attempted record was uploaded.
func (r *Result) OK() bool {
	return !r.Aborted && len(r.Failures) == 0 && len(r.Conflicts) == 0
}

// Summary is the human-readable outcome surfaced to the UI. Per-record
// detail beyond this goes to the logs.
func (r *Result) Summary() string {
	if r.Aborted {
		return r.Message
	}
	if r.OK() && len(r.Skipped) == 0 {
		return fmt.Sprintf("uploaded %d record(s)", r.Uploaded)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "uploaded %d record(s)", r.Uploaded)
	if len(r.Conflicts) > 0 {
		fmt.Fprintf(&b, "; %d conflict(s): %s", len(r.Conflicts), strings.Join(r.Conflicts, ", "))
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "; %d failed:", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, " %s (%s)", f.Key, f.Reason)
		}
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "; %d skipped", len(r.Skipped))
	}
	return b.String()
}

func abortedResult(message string) *Result {
	return &Result{Aborted: true, Message: message}
}
