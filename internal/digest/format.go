package digest

import (
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-location-digest/internal/domain"
)

const (
	// TextPrefix tags every rendered digest.
	TextPrefix = "[LocationDigest] "
	// TextSeparator joins rendered segments.
	TextSeparator = " → "
	// NoEventsText is rendered when a batch yields no segments.
	NoEventsText = TextPrefix + "no location events"
)

// FormatText renders segments as a single line, using loc for wall-clock
// times (UTC when loc is nil).
//
// A closed segment with a positive duration renders as
// "HH:MM-HH:MM place(N分)". Open segments and zero-length segments both
// render as "HH:MM place arrived".
func FormatText(segs []domain.StaySegment, loc *time.Location) string {
	if len(segs) == 0 {
		return NoEventsText
	}
	if loc == nil {
		loc = time.UTC
	}

	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		var b strings.Builder
		b.WriteString(clock(s.EnterAt, loc))
		if s.ExitAt != nil && s.DurationMinutes != nil && *s.DurationMinutes > 0 {
			b.WriteByte('-')
			b.WriteString(clock(*s.ExitAt, loc))
			b.WriteByte(' ')
			b.WriteString(s.PlaceID)
			b.WriteByte('(')
			b.WriteString(strconv.Itoa(*s.DurationMinutes))
			b.WriteString("分)")
		} else {
			b.WriteByte(' ')
			b.WriteString(s.PlaceID)
			b.WriteString(" arrived")
		}
		parts = append(parts, b.String())
	}
	return TextPrefix + strings.Join(parts, TextSeparator)
}

func clock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}
