// Package digest turns a batch of raw events into stay segments, a
// human-readable summary and the notification payload for that summary.
//
// Everything in this package is pure: no I/O, no shared state. Functions are
// safe to call concurrently on disjoint batches.
package digest

import (
	"math"
	"sort"
	"time"

	"github.com/tbourn/go-location-digest/internal/domain"
)

// signal is a decoded location event ready for the segment fold.
type signal struct {
	at  time.Time
	loc domain.LocationPayload
}

// BuildSegments converts a batch of events into an ordered list of stay
// segments.
//
// Only location events take part. They are stably sorted by timestamp, so
// events sharing a timestamp keep their input order. The fold keeps at most
// one open segment:
//   - enter P@T closes the open segment (if any) at T and opens P@T;
//   - exit P@T closes the open segment when it is for P, otherwise it emits
//     a standalone zero-length segment at T;
//   - dwell never changes state.
//
// A segment still open at the end of the batch is returned with a nil exit.
func BuildSegments(events []domain.Event) []domain.StaySegment {
	sigs := make([]signal, 0, len(events))
	for _, ev := range events {
		if loc, ok := ev.Location(); ok {
			sigs = append(sigs, signal{at: ev.TS, loc: loc})
		}
	}
	sort.SliceStable(sigs, func(i, j int) bool { return sigs[i].at.Before(sigs[j].at) })

	out := make([]domain.StaySegment, 0, len(sigs))
	var open *domain.StaySegment
	for _, s := range sigs {
		out, open = step(out, open, s)
	}
	if open != nil {
		out = append(out, *open)
	}
	return out
}

// step applies one signal to the fold state (emitted segments, open slot).
func step(out []domain.StaySegment, open *domain.StaySegment, s signal) ([]domain.StaySegment, *domain.StaySegment) {
	switch s.loc.Event {
	case domain.SignalEnter:
		if open != nil {
			out = append(out, closeAt(*open, s.at))
		}
		return out, &domain.StaySegment{PlaceID: s.loc.PlaceID, EnterAt: s.at}

	case domain.SignalExit:
		if open != nil && open.PlaceID == s.loc.PlaceID {
			return append(out, closeAt(*open, s.at)), nil
		}
		return append(out, closeAt(domain.StaySegment{PlaceID: s.loc.PlaceID, EnterAt: s.at}, s.at)), open

	case domain.SignalDwell:
		return out, open
	}
	return out, open
}

// closeAt returns seg closed at t with its rounded duration in minutes.
func closeAt(seg domain.StaySegment, t time.Time) domain.StaySegment {
	exit := t
	mins := int(math.Round(t.Sub(seg.EnterAt).Minutes()))
	if mins < 0 {
		mins = 0
	}
	seg.ExitAt = &exit
	seg.DurationMinutes = &mins
	return seg
}
