package digest

import (
	"errors"
	"strings"
	"time"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// ErrEmptyDigestID is returned by BuildNotificationPayload when no digest id
// is supplied.
var ErrEmptyDigestID = errors.New("digest id is empty")

// Assemble builds the digest for a full, unfiltered batch. It reports false
// for an empty batch.
//
// Period bounds and EventIDs cover every event in the batch, not only the
// location events; EventIDs keep the batch order. The returned digest has
// no ID yet: the store assigns it.
func Assemble(events []domain.Event, loc *time.Location) (domain.Digest, bool) {
	if len(events) == 0 {
		return domain.Digest{}, false
	}

	start, end := events[0].TS, events[0].TS
	ids := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.TS.Before(start) {
			start = ev.TS
		}
		if ev.TS.After(end) {
			end = ev.TS
		}
		ids = append(ids, ev.EventID)
	}

	segs := BuildSegments(events)
	return domain.Digest{
		PeriodStart: start,
		PeriodEnd:   end,
		Type:        domain.DigestTypeLocation,
		Summary: domain.DigestSummary{
			Segments: segs,
			Text:     FormatText(segs, loc),
			EventIDs: ids,
		},
	}, true
}

// BuildNotificationPayload maps a digest to the notification channel's
// message schema. The digest id is appended to the text as a correlation
// marker.
func BuildNotificationPayload(d domain.Digest, digestID string) (domain.NotificationPayload, error) {
	digestID = strings.TrimSpace(digestID)
	if digestID == "" {
		return domain.NotificationPayload{}, ErrEmptyDigestID
	}
	return domain.NotificationPayload{
		Messages: []domain.NotificationMessage{{
			Type: "text",
			Text: d.Summary.Text + "\n#digest:" + digestID,
		}},
		NotificationDisabled: false,
	}, nil
}
