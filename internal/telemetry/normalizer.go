// Fleettrack - EV Fleet Operations Telemetry Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleettrack

package telemetry

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleettrack/internal/models"
)

// Container keys that may hold a coordinate pair, in lookup order.
var containerKeys = []string{"position", "location", "currentLocation"}

// Coordinate key pairs, in lookup order.
var coordinatePairs = [][2]string{
	{"latitude", "longitude"},
	{"lat", "lng"},
	{"lat", "lon"},
}

// Envelope keys unwrapped when no strategy matches the outer body.
var envelopeKeys = []string{"data", "payload", "telemetry", "message"}

var (
	speedKeys     = []string{"speed", "spd", "velocity"}
	timestampKeys = []string{"timestamp", "ts", "time", "gpsTime", "fixTime", "recordedAt"}
)

const (
	// epoch values above this are milliseconds
	epochMillisThreshold = 1e12
	// 9999-12-31T23:59:59Z
	maxEpochSeconds = 253402300799
)

// lookupFunc resolves a field name inside the scope that produced a coordinate pair.
type lookupFunc func(key string) (any, bool)

// Normalize converts a provider or backend payload into a LocationSample.
// raw may be a decoded JSON object, raw JSON bytes, or a JSON string.
// The bool is false when no strategy yields a finite coordinate pair; a
// partially populated sample is never returned.
func Normalize(raw any) (models.LocationSample, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return normalizeObject(v, true)
	case []byte:
		return NormalizeBytes(v)
	case json.RawMessage:
		return NormalizeBytes(v)
	case string:
		return NormalizeBytes([]byte(v))
	default:
		return models.LocationSample{}, false
	}
}

// NormalizeBytes decodes a JSON body and normalizes it.
func NormalizeBytes(data []byte) (models.LocationSample, bool) {
	obj, ok := decodeObject(data)
	if !ok {
		return models.LocationSample{}, false
	}
	return normalizeObject(obj, true)
}

func decodeObject(data []byte) (map[string]any, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func normalizeObject(obj map[string]any, unwrap bool) (models.LocationSample, bool) {
	if sample, ok := extract(obj); ok {
		return sample, true
	}
	if !unwrap {
		return models.LocationSample{}, false
	}

	// Envelopes are unwrapped once only.
	for _, key := range envelopeKeys {
		switch inner := obj[key].(type) {
		case map[string]any:
			if sample, ok := normalizeObject(inner, false); ok {
				return sample, true
			}
		case string:
			if decoded, ok := decodeObject([]byte(inner)); ok {
				if sample, ok := normalizeObject(decoded, false); ok {
					return sample, true
				}
			}
		}
	}
	return models.LocationSample{}, false
}

// extract runs the ordered strategies against one object.
func extract(obj map[string]any) (models.LocationSample, bool) {
	top := func(key string) (any, bool) {
		v, ok := obj[key]
		return v, ok
	}

	// flat dotted keys
	for _, container := range containerKeys {
		prefix := container + "."
		dotted := func(key string) (any, bool) {
			v, ok := obj[prefix+key]
			return v, ok
		}
		if sample, ok := extractPair(dotted, top); ok {
			return sample, true
		}
	}

	// nested objects
	for _, container := range containerKeys {
		nested, ok := obj[container].(map[string]any)
		if !ok {
			continue
		}
		inner := func(key string) (any, bool) {
			v, ok := nested[key]
			return v, ok
		}
		if sample, ok := extractPair(inner, top); ok {
			return sample, true
		}
	}

	// bare top-level keys
	return extractPair(top, top)
}

// extractPair tries each coordinate pair in scope. Speed and timestamp are
// looked up in scope first, then in the fallback scope.
func extractPair(scope, fallback lookupFunc) (models.LocationSample, bool) {
	for _, pair := range coordinatePairs {
		latRaw, ok := scope(pair[0])
		if !ok {
			continue
		}
		lngRaw, ok := scope(pair[1])
		if !ok {
			continue
		}
		lat, ok := toFloat(latRaw)
		if !ok {
			continue
		}
		lng, ok := toFloat(lngRaw)
		if !ok {
			continue
		}

		sample := models.LocationSample{Latitude: lat, Longitude: lng}
		if speed, ok := findSpeed(scope, fallback); ok {
			sample.Speed = &speed
		}
		if ts, ok := findTimestamp(scope, fallback); ok {
			sample.Timestamp = &ts
		}
		return sample, true
	}
	return models.LocationSample{}, false
}

func findSpeed(scopes ...lookupFunc) (float64, bool) {
	for _, scope := range scopes {
		for _, key := range speedKeys {
			raw, ok := scope(key)
			if !ok {
				continue
			}
			if v, ok := toFloat(raw); ok && v >= 0 {
				return v, true
			}
		}
	}
	return 0, false
}

func findTimestamp(scopes ...lookupFunc) (int64, bool) {
	for _, scope := range scopes {
		for _, key := range timestampKeys {
			raw, ok := scope(key)
			if !ok {
				continue
			}
			if ts, ok := toEpochSeconds(raw); ok {
				return ts, true
			}
		}
	}
	return 0, false
}

// toFloat coerces numbers and numeric strings. Booleans, nil, NaN and
// infinities are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case interface{ Float64() (float64, error) }:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toEpochSeconds accepts epoch seconds, epoch milliseconds or an RFC3339 string.
func toEpochSeconds(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.Unix(), true
		}
	}
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return 0, false
	}
	if f > epochMillisThreshold {
		f /= 1000
	}
	if f > maxEpochSeconds {
		return 0, false
	}
	return int64(f), true
}
