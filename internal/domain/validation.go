package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/s2"
	"golang.org/x/text/unicode/norm"
)

// Validation constraints for ingested events.
const (
	MaxEventIDLen  = 200
	MaxTypeLen     = 64
	MaxDeviceIDLen = 128
	MaxPlaceIDLen  = 256
	MaxPayloadSize = 16 << 10
)

// tsLayouts are the accepted ISO-8601 forms of "ts". Layouts without a zone
// are read as UTC.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// EventInput is the wire shape of an ingested event.
type EventInput struct {
	EventID  string          `json:"event_id"`
	Type     string          `json:"type"`
	TS       *string         `json:"ts,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	DeviceID *string         `json:"device_id,omitempty"`
	Meta     map[string]any  `json:"meta,omitempty"`
}

// ValidateEvent checks in and, when valid, returns the normalized Event to
// store. now is used as the event time when ts is absent.
func ValidateEvent(in EventInput, now time.Time) (Event, []FieldError) {
	var errs []FieldError

	id := strings.TrimSpace(in.EventID)
	if id == "" {
		errs = append(errs, FieldError{"event_id", "required"})
	} else if len(id) > MaxEventIDLen {
		errs = append(errs, FieldError{"event_id", fmt.Sprintf("max length %d", MaxEventIDLen)})
	}

	typ := strings.ToLower(strings.TrimSpace(in.Type))
	if typ == "" {
		errs = append(errs, FieldError{"type", "required"})
	} else if len(typ) > MaxTypeLen {
		errs = append(errs, FieldError{"type", fmt.Sprintf("max length %d", MaxTypeLen)})
	}

	ts := now.UTC()
	if in.TS != nil && strings.TrimSpace(*in.TS) != "" {
		parsed, err := ParseTimestamp(*in.TS)
		if err != nil {
			errs = append(errs, FieldError{"ts", "must be an ISO-8601 timestamp"})
		} else {
			ts = parsed
		}
	}

	var deviceID *string
	if in.DeviceID != nil {
		if d := strings.TrimSpace(*in.DeviceID); d != "" {
			if len(d) > MaxDeviceIDLen {
				errs = append(errs, FieldError{"device_id", fmt.Sprintf("max length %d", MaxDeviceIDLen)})
			}
			deviceID = &d
		}
	}

	payload := bytes.TrimSpace(in.Payload)
	switch {
	case len(payload) == 0 || bytes.Equal(payload, []byte("null")):
		errs = append(errs, FieldError{"payload", "required"})
	case payload[0] != '{':
		errs = append(errs, FieldError{"payload", "must be a JSON object"})
	case len(payload) > MaxPayloadSize:
		errs = append(errs, FieldError{"payload", fmt.Sprintf("max size %d bytes", MaxPayloadSize)})
	case typ == EventTypeLocation:
		normalized, fe := validateLocation(payload)
		errs = append(errs, fe...)
		payload = normalized
	}

	if len(errs) > 0 {
		return Event{}, errs
	}
	return Event{
		EventID:  id,
		Type:     typ,
		TS:       ts,
		Payload:  json.RawMessage(payload),
		DeviceID: deviceID,
		Meta:     in.Meta,
	}, nil
}

// ParseTimestamp parses an ISO-8601 timestamp and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range tsLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// validateLocation checks a location payload and returns it re-encoded with
// the place id NFC-normalized.
func validateLocation(raw []byte) ([]byte, []FieldError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw, []FieldError{{"payload", "must be a JSON object"}}
	}

	var errs []FieldError
	var p LocationPayload

	var sig string
	if err := json.Unmarshal(fields["event"], &sig); err != nil || !Signal(strings.ToLower(sig)).Valid() {
		errs = append(errs, FieldError{"payload.event", "must be one of enter, exit, dwell"})
	}
	p.Event = Signal(strings.ToLower(sig))

	var place string
	if err := json.Unmarshal(fields["place_id"], &place); err != nil || strings.TrimSpace(place) == "" {
		errs = append(errs, FieldError{"payload.place_id", "required string"})
	} else if len(place) > MaxPlaceIDLen {
		errs = append(errs, FieldError{"payload.place_id", fmt.Sprintf("max length %d", MaxPlaceIDLen)})
	}
	p.PlaceID = norm.NFC.String(strings.TrimSpace(place))

	num := func(name string) *float64 {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			errs = append(errs, FieldError{"payload." + name, "must be a number"})
			return nil
		}
		return &f
	}
	p.Lat = num("lat")
	p.Lng = num("lng")
	p.AccuracyM = num("accuracy_m")

	if (p.Lat == nil) != (p.Lng == nil) {
		errs = append(errs, FieldError{"payload", "lat and lng must be provided together"})
	} else if p.Lat != nil && !s2.LatLngFromDegrees(*p.Lat, *p.Lng).IsValid() {
		errs = append(errs, FieldError{"payload", "lat/lng out of range"})
	}
	if p.AccuracyM != nil && *p.AccuracyM < 0 {
		errs = append(errs, FieldError{"payload.accuracy_m", "must be >= 0"})
	}

	if len(errs) > 0 {
		return raw, errs
	}

	// Keep unknown keys; only the recognized ones are rewritten.
	fields["event"], _ = json.Marshal(p.Event)
	fields["place_id"], _ = json.Marshal(p.PlaceID)
	out, err := json.Marshal(fields)
	if err != nil {
		return raw, []FieldError{{"payload", "must be a JSON object"}}
	}
	return out, nil
}
