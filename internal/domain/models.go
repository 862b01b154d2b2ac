// Package domain defines the persistence models for ingested events and
// location digests. These types are mapped with GORM and are shared across
// the repository, digest and service layers.
package domain

import (
	"encoding/json"
	"time"
)

// EventTypeLocation is the only event type that participates in stay
// aggregation. Other types are stored and counted toward digest bounds.
const EventTypeLocation = "location"

// DigestTypeLocation is the type stamped on every digest produced by the
// aggregation run.
const DigestTypeLocation = "location"

// Event is an immutable fact recorded by the ingestion gateway. EventID is
// the client-supplied idempotency key; a second insert with the same id is
// absorbed by the store.
//
// Fields:
//   - EventID: primary key, caller supplied.
//   - Type: discriminator ("location", ...).
//   - TS: event time (UTC); server receipt time when the client omitted it.
//   - Payload: raw JSON object as received.
//   - DeviceID / Meta: optional, stored but not interpreted.
//   - ProcessedAt: nil until an aggregation run consumed the event.
//   - ClaimToken / ClaimedAt: lease held by an in-flight aggregation run.
type Event struct {
	EventID     string          `json:"event_id"               gorm:"column:event_id;type:varchar(200);primaryKey"`
	Type        string          `json:"type"                   gorm:"type:varchar(64);not null;index:idx_events_unprocessed,priority:1"`
	TS          time.Time       `json:"ts"                     gorm:"column:ts;not null;index:idx_events_ts"`
	Payload     json.RawMessage `json:"payload"                gorm:"type:text;not null"`
	DeviceID    *string         `json:"device_id,omitempty"    gorm:"type:varchar(128)"`
	Meta        map[string]any  `json:"meta,omitempty"         gorm:"serializer:json"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty" gorm:"index:idx_events_unprocessed,priority:2"`
	ClaimToken  *string         `json:"-"                      gorm:"type:char(36);index"`
	ClaimedAt   *time.Time      `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName returns the database table name for Event.
func (Event) TableName() string { return "events" }

// Location decodes the payload of a location event. It reports false for
// non-location events and for payloads that do not carry a known signal
// and a place id, so callers never have to handle a decode error.
func (e Event) Location() (LocationPayload, bool) {
	if e.Type != EventTypeLocation || len(e.Payload) == 0 {
		return LocationPayload{}, false
	}
	var p LocationPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return LocationPayload{}, false
	}
	if !p.Event.Valid() || p.PlaceID == "" {
		return LocationPayload{}, false
	}
	return p, true
}

// Digest is the persisted result of one aggregation run. It is immutable
// after creation except for the delivery bookkeeping (SentAt, SendAttempts,
// LastError, FailedAt). FailedAt is set when the channel rejected the digest
// for good.
type Digest struct {
	ID           string        `json:"id"            gorm:"type:char(36);primaryKey"`
	PeriodStart  time.Time     `json:"period_start"  gorm:"not null"`
	PeriodEnd    time.Time     `json:"period_end"    gorm:"not null"`
	Type         string        `json:"type"          gorm:"type:varchar(32);not null;default:'location'"`
	Summary      DigestSummary `json:"summary"       gorm:"serializer:json;type:text;not null"`
	SentAt       *time.Time    `json:"sent_at"       gorm:"index"`
	SendAttempts int           `json:"send_attempts" gorm:"not null;default:0"`
	LastError    string        `json:"last_error,omitempty" gorm:"type:text"`
	FailedAt     *time.Time    `json:"failed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"    gorm:"index"`
}

// TableName returns the database table name for Digest.
func (Digest) TableName() string { return "digests" }

// DigestSummary is the embedded body of a Digest. EventIDs lists every
// event of the batch in batch order and is the witness used to mark those
// events processed.
type DigestSummary struct {
	Segments []StaySegment `json:"segments"`
	Text     string        `json:"text"`
	EventIDs []string      `json:"event_ids"`
}
