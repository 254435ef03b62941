package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeBroker struct{ open bool }

func (b *fakeBroker) IsConnectionOpen() bool { return b.open }

type fakeStore struct {
	ok  bool
	err error
}

func (s *fakeStore) Ping(_ context.Context) (bool, error) { return s.ok, s.err }

func getHealth(t *testing.T, h http.Handler) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return rec.Code, resp
}

func TestHealthOK(t *testing.T) {
	h := NewHealthHandler(&fakeBroker{open: true}, &fakeStore{ok: true}, nil, nil)

	code, resp := getHealth(t, h)
	if code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
	if !resp.BrokerConnected || !resp.StoreReachable {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealthDegradedOnStoreTrouble(t *testing.T) {
	cases := []struct {
		name  string
		store StorePinger
	}{
		{"ping false", &fakeStore{ok: false}},
		{"ping error", &fakeStore{ok: true, err: errors.New("timeout")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(&fakeBroker{open: true}, tc.store, nil, nil)
			_, resp := getHealth(t, h)
			if resp.Status != "degraded" {
				t.Errorf("status = %s, want degraded", resp.Status)
			}
			if resp.StoreReachable {
				t.Error("store must read unreachable")
			}
		})
	}
}

func TestHealthDown(t *testing.T) {
	h := NewHealthHandler(&fakeBroker{open: false}, &fakeStore{ok: false}, nil, nil)
	_, resp := getHealth(t, h)
	if resp.Status != "down" {
		t.Errorf("status = %s, want down", resp.Status)
	}
}

func TestHealthReportsIngestCounts(t *testing.T) {
	ingest := NewMQTTHandler(nil)
	ingest.markIngested("calibration.updated")
	ingest.markIngested("calibration.updated")
	ingest.markIngested("irrigation.decision")
	ingest.markDropped()

	h := NewHealthHandler(&fakeBroker{open: true}, &fakeStore{ok: true}, nil, ingest)
	_, resp := getHealth(t, h)

	if resp.Ingest.ByType["calibration.updated"] != 2 {
		t.Errorf("calibration count = %d, want 2", resp.Ingest.ByType["calibration.updated"])
	}
	if resp.Ingest.ByType["irrigation.decision"] != 1 {
		t.Errorf("decision count = %d, want 1", resp.Ingest.ByType["irrigation.decision"])
	}
	if resp.Ingest.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", resp.Ingest.Dropped)
	}
	if resp.Ingest.LastEvent.IsZero() {
		t.Error("last event timestamp not set")
	}
}

func TestReadyHandler(t *testing.T) {
	ready := NewReadyHandler(&fakeBroker{open: true}, &fakeStore{ok: true}, nil, 2*time.Second)
	rec := httptest.NewRecorder()
	ready.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", rec.Code)
	}

	notReady := NewReadyHandler(&fakeBroker{open: false}, &fakeStore{ok: true}, nil, 2*time.Second)
	rec = httptest.NewRecorder()
	notReady.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d, want 503", rec.Code)
	}
}
