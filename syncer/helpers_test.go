// Copyright 2026 Fieldworks Instruments
// SPDX-License-Identifier: Apache-2.0

package syncer

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/calsync/cloudapi"
	"github.com/fieldworks/calsync/localdb"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, v any) *http.Response {
	body, _ := json.Marshal(v)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, localdb.Initialize(db))
	_, err = localdb.EnsureDeviceID(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// onlineStub is a fixed connectivity answer.
type onlineStub bool

func (o onlineStub) Online(ctx context.Context) bool { return bool(o) }

// fakeService simulates the cloud API behind a round tripper.
type fakeService struct {
	mu sync.Mutex

	nextID        int64
	remoteSerials map[string]bool
	systems       []cloudapi.SystemPayload // full-collection response

	// Per-serial permanent failure codes for create/update.
	failCreate map[string]int
	failUpdate map[string]int
	// Remaining 503s before export upload starts succeeding.
	exportUnavailable int

	createCalls, updateCalls, existsCalls, listCalls, exportCalls, totalCalls int
}

func newFakeService() *fakeService {
	return &fakeService{
		nextID:        100,
		remoteSerials: map[string]bool{},
		failCreate:    map[string]int{},
		failUpdate:    map[string]int{},
	}
}

func (f *fakeService) client() *cloudapi.Client {
	c := cloudapi.NewClient("http://cloud.test", func(ctx context.Context) (string, error) {
		return "test-token", nil
	})
	c.HTTP = &http.Client{Transport: roundTripFunc(f.roundTrip)}
	return c
}

func (f *fakeService) roundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totalCalls++

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/health":
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"}), nil

	case r.Method == http.MethodGet && path == "/api/systems":
		f.listCalls++
		return jsonResponse(http.StatusOK, f.systems), nil

	case r.Method == http.MethodGet && path == "/api/systems/serial-exists":
		f.existsCalls++
		serial := r.URL.Query().Get("serial")
		return jsonResponse(http.StatusOK, map[string]bool{"exists": f.remoteSerials[serial]}), nil

	case r.Method == http.MethodPost && path == "/api/systems":
		f.createCalls++
		var payload cloudapi.SystemPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": err.Error()}), nil
		}
		if code, ok := f.failCreate[payload.Serial]; ok {
			return jsonResponse(code, map[string]string{"error": "create rejected"}), nil
		}
		f.nextID++
		f.remoteSerials[payload.Serial] = true
		return jsonResponse(http.StatusCreated, map[string]int64{"id": f.nextID}), nil

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/api/systems/"):
		f.updateCalls++
		var payload cloudapi.SystemPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": err.Error()}), nil
		}
		if code, ok := f.failUpdate[payload.Serial]; ok {
			return jsonResponse(code, map[string]string{"error": "update rejected"}), nil
		}
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"}), nil

	case r.Method == http.MethodPost && path == "/api/calibrations/export":
		f.exportCalls++
		if f.exportUnavailable > 0 {
			f.exportUnavailable--
			return jsonResponse(http.StatusServiceUnavailable, map[string]string{"error": "unavailable"}), nil
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": err.Error()}), nil
		}
		if r.MultipartForm.Value["systemId"] == nil || r.MultipartForm.File["report"] == nil {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": "missing export parts"}), nil
		}
		f.nextID++
		return jsonResponse(http.StatusCreated, map[string]int64{"id": f.nextID}), nil
	}

	return nil, fmt.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
}

// setCloudID forces a cloud id onto a system row for test setup, bypassing
// the reconciliation path.
func setCloudID(t *testing.T, db *sql.DB, localID, cloudID int64, synced bool) {
	t.Helper()
	_, err := db.Exec(`UPDATE systems SET cloud_id = ?, is_synced = ? WHERE local_id = ?`, cloudID, synced, localID)
	require.NoError(t, err)
}
