// Package schedule decides when a stage is due.
//
// A Schedule is evaluated against the window between two ticks: an
// occurrence t is due when prev < t <= now. Each occurrence therefore fires
// exactly once no matter how often the loop ticks inside the same minute, and
// a coarse tick that jumps over an occurrence still fires it.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule reports due occurrences.
type Schedule interface {
	// Due reports whether an occurrence falls in (prev, now].
	Due(prev, now time.Time) bool

	// Next returns the first occurrence strictly after t.
	Next(t time.Time) time.Time

	String() string
}

// Daily fires once a day at a fixed time of day.
type Daily struct {
	Hour, Minute int
	Location     *time.Location
}

func (d Daily) loc(t time.Time) *time.Location {
	if d.Location != nil {
		return d.Location
	}
	return t.Location()
}

// Next returns the first HH:MM occurrence strictly after t.
func (d Daily) Next(t time.Time) time.Time {
	lt := t.In(d.loc(t))
	occ := time.Date(lt.Year(), lt.Month(), lt.Day(), d.Hour, d.Minute, 0, 0, lt.Location())
	if !occ.After(lt) {
		occ = time.Date(lt.Year(), lt.Month(), lt.Day()+1, d.Hour, d.Minute, 0, 0, lt.Location())
	}
	return occ
}

func (d Daily) Due(prev, now time.Time) bool {
	if !now.After(prev) {
		return false
	}
	return !d.Next(prev).After(now)
}

func (d Daily) String() string {
	return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute)
}

// Interval fires at every multiple of Every counted from the zero time, so
// intervals that divide a day land on UTC-aligned boundaries (15m fires at
// :00, :15, :30 and :45).
type Interval struct {
	Every time.Duration
}

func (i Interval) Next(t time.Time) time.Time {
	return t.Truncate(i.Every).Add(i.Every)
}

func (i Interval) Due(prev, now time.Time) bool {
	if !now.After(prev) {
		return false
	}
	return !i.Next(prev).After(now)
}

func (i Interval) String() string {
	return "every " + i.Every.String()
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, 0, fmt.Errorf("schedule: malformed time of day %q", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule: hour out of range in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule: minute out of range in %q", s)
	}
	return hour, minute, nil
}

// Parse builds a Schedule from exactly one of at ("HH:MM") or every.
func Parse(at string, every time.Duration, loc *time.Location) (Schedule, error) {
	switch {
	case at != "" && every != 0:
		return nil, fmt.Errorf("schedule: set either at or every, not both")
	case at != "":
		h, m, err := ParseTimeOfDay(at)
		if err != nil {
			return nil, err
		}
		return Daily{Hour: h, Minute: m, Location: loc}, nil
	case every > 0:
		return Interval{Every: every}, nil
	default:
		return nil, fmt.Errorf("schedule: at or a positive every is required")
	}
}
