// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide. Besides the built-in
// tags it registers "resourceid", which accepts the identifiers the tracking
// API puts in URL paths (vehicle IDs, session IDs): 1-128 characters of
// letters, digits, '-', '_', '.' and ':'.
//
// Failures come back as *RequestValidationError, which converts to the API
// error envelope through ToAPIError:
//
//	req := openTrackingRequest{VehicleID: chi.URLParam(r, "vehicleID")}
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    rw.ValidationError(apiErr.Message, apiErr.Details)
//	    return
//	}
package validation
