package domain

import "time"

// Signal is the client-side classification of a location event.
type Signal string

const (
	SignalEnter Signal = "enter"
	SignalExit  Signal = "exit"
	SignalDwell Signal = "dwell"
)

// Valid reports whether s is one of enter, exit or dwell.
func (s Signal) Valid() bool {
	switch s {
	case SignalEnter, SignalExit, SignalDwell:
		return true
	}
	return false
}

// LocationPayload is the payload shape of events with type "location".
type LocationPayload struct {
	Event     Signal   `json:"event"`
	PlaceID   string   `json:"place_id"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	AccuracyM *float64 `json:"accuracy_m,omitempty"`
}

// StaySegment is a derived interval of presence at one place. ExitAt is
// nil while the stay is still open; DurationMinutes is set iff ExitAt is.
type StaySegment struct {
	PlaceID         string     `json:"place_id"`
	EnterAt         time.Time  `json:"enter_at"`
	ExitAt          *time.Time `json:"exit_at"`
	DurationMinutes *int       `json:"duration_minutes"`
}

// Open reports whether the segment has no exit yet.
func (s StaySegment) Open() bool { return s.ExitAt == nil }

// NotificationPayload is the message body accepted by the notification
// channel.
type NotificationPayload struct {
	Messages             []NotificationMessage `json:"messages"`
	NotificationDisabled bool                  `json:"notificationDisabled"`
}

// NotificationMessage is a single text bubble inside a NotificationPayload.
type NotificationMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
