package schedule

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

var (
	ErrInvalidClock    = errors.New("invalid time of day, expected HH:MM")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Interval is a same-day window in minutes from midnight, half-open: [Start, End).
type Interval struct {
	Start int
	End   int
}

// ParseClock converts "HH:MM" to minutes from midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, ErrInvalidClock
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, ErrInvalidClock
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, ErrInvalidClock
	}
	return h*60 + m, nil
}

// FormatClock renders minutes from midnight as HH:MM. Values past midnight are
// not wrapped, since a reservation never crosses into the next day.
func FormatClock(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NewInterval builds the occupied window of a reservation: its nominal length
// plus the buffer appended at the end.
func NewInterval(startTime string, durationHours float64, bufferMinutes int) (Interval, error) {
	start, err := ParseClock(startTime)
	if err != nil {
		return Interval{}, err
	}
	if durationHours <= 0 || math.IsNaN(durationHours) || math.IsInf(durationHours, 0) {
		return Interval{}, ErrInvalidDuration
	}
	if bufferMinutes < 0 {
		bufferMinutes = 0
	}
	length := int(math.Round(durationHours * 60))
	if length <= 0 {
		return Interval{}, ErrInvalidDuration
	}
	return Interval{Start: start, End: start + length + bufferMinutes}, nil
}

// Overlaps reports whether the two windows share any minute. Windows that only
// touch (a.End == b.Start) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// CrossesMidnight reports whether the window runs into the next calendar day.
func (a Interval) CrossesMidnight() bool {
	return a.End > minutesPerDay
}

func (a Interval) String() string {
	return FormatClock(a.Start) + "-" + FormatClock(a.End)
}
