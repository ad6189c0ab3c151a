package availability

import (
	"fmt"
	"strconv"
	"strings"
)

// Window is a half-open [StartMinute, EndMinute) interval of minutes from
// midnight on some date.
type Window struct {
	StartMinute int
	EndMinute   int
}

func (w Window) String() string {
	return fmt.Sprintf("%s - %s", FormatMinute(w.StartMinute), FormatMinute(w.EndMinute))
}

// Slots returns the bookable windows of a working day: a grid starting at
// startMinute, stepping by durationMinutes while the full slot still fits
// before endMinute, excluding any slot that overlaps a busy interval.
// Result is ordered by start ascending and is a pure function of its inputs.
func Slots(startMinute, endMinute, durationMinutes int, busy []Window) []Window {
	if durationMinutes <= 0 {
		return nil
	}
	if endMinute <= startMinute {
		return nil
	}

	var slots []Window
	for t := startMinute; t+durationMinutes <= endMinute; t += durationMinutes {
		w := Window{StartMinute: t, EndMinute: t + durationMinutes}
		if !OverlapsAny(w, busy) {
			slots = append(slots, w)
		}
	}
	return slots
}

// Overlaps reports whether two half-open windows intersect. Back-to-back
// windows (one ends exactly where the other starts) do not overlap.
func Overlaps(a, b Window) bool {
	return a.StartMinute < b.EndMinute && b.StartMinute < a.EndMinute
}

func OverlapsAny(w Window, busy []Window) bool {
	for _, b := range busy {
		if Overlaps(w, b) {
			return true
		}
	}
	return false
}

// FormatMinute renders minutes-from-midnight as HH:MM.
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseMinute parses HH:MM into minutes from midnight. Both parts must be
// plain decimal digits; signs, trailing text and missing parts are rejected.
func ParseMinute(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := parseClockPart(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	m, err := parseClockPart(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return h*60 + m, nil
}

func parseClockPart(s string) (int, error) {
	if s == "" || len(s) > 2 {
		return 0, fmt.Errorf("bad clock part %q", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("bad clock part %q", s)
		}
	}
	return strconv.Atoi(s)
}
