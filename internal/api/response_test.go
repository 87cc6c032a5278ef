// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleettrack/internal/logging"
	"github.com/tomtom215/fleettrack/internal/telemetry"
)

func decodeRecorder(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return resp
}

func TestResponseWriter_Success(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).Success(map[string]string{"hello": "world"})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decodeRecorder(t, rec)
	if !resp.Success || resp.Error != nil || resp.Message != "" {
		t.Errorf("envelope = %+v", resp)
	}
	if resp.Meta == nil || resp.Meta.RequestID != "req-1" {
		t.Errorf("meta = %+v", resp.Meta)
	}
}

func TestResponseWriter_Error(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewResponseWriter(rec, httptest.NewRequest(http.MethodGet, "/", nil)).
		ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, "VehicleID is required", map[string]string{"field": "VehicleID"})

	resp := decodeRecorder(t, rec)
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("status=%d success=%v", rec.Code, resp.Success)
	}
	if resp.Message != "VehicleID is required" || resp.Error.Message != resp.Message {
		t.Errorf("message = %q / %q", resp.Message, resp.Error.Message)
	}
	if resp.Error.Code != ErrCodeValidationFailed || resp.Data != nil {
		t.Errorf("envelope = %+v", resp)
	}
}

func TestRespondTrackingError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{telemetry.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized},
		{fmt.Errorf("backend said 403: %w", telemetry.ErrUnauthorized), http.StatusUnauthorized, ErrCodeUnauthorized},
		{telemetry.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{telemetry.ErrSessionNotFound, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("%w: %w", telemetry.ErrUpstream, telemetry.ErrCredentialExpired), http.StatusBadGateway, ErrCodeExternalServiceFail},
		{telemetry.ErrTooManySessions, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{telemetry.ErrTrackerClosed, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{telemetry.ErrViewerAttached, http.StatusConflict, ErrCodeConflict},
		{errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			NewResponseWriter(rec, httptest.NewRequest(http.MethodGet, "/", nil)).respondTrackingError(tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if resp := decodeRecorder(t, rec); resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Errorf("error = %+v, want %s", resp.Error, tt.wantCode)
			}
		})
	}
}
