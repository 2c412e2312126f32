package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shuttlegate/internal/engine"
)

func TestHandleHealth(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestHandleSubmit_Accepted(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	body, _ := json.Marshal(submitRequest{
		DeviceID:    "shuttle-1",
		CommandType: string(engine.Transfer),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CommandID == "" || !resp.Accepted {
		t.Errorf("response = %+v, want a populated command id and accepted=true", resp)
	}
}

func TestHandleSubmit_MalformedBody(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleRemove_UnknownCommand(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/commands/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
}

func TestHandlePauseResume(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/pause", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !s.coord.IsPaused() {
		t.Error("coordinator should be paused after POST /v1/pause")
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/resume", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want %d", rec.Code, http.StatusOK)
	}
	if s.coord.IsPaused() {
		t.Error("coordinator should not be paused after POST /v1/resume")
	}
}

func TestHandleStatus(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var status engine.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleReport_DefaultsToXLSX(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/report", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.Bytes()
	if len(body) < 2 || body[0] != 'P' || body[1] != 'K' {
		t.Error("default report response doesn't look like an XLSX workbook")
	}
}

func TestHandleLocation_UnknownDevice(t *testing.T) {
	s := New(engine.NewCoordinator(), nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/devices/unknown/location", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
}
