package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Schedule is the weekly business-hours map: lowercase three-letter weekday
// keys, each holding zero or more [open, close) ranges as "HH:MM" pairs.
// Missing days are closed.
type Schedule map[string][][2]string

var weekdayKeys = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

// ParseSchedule decodes the JSON schedule stored on the agent row.
func ParseSchedule(raw string) (Schedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Schedule{}, nil
	}
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}
	return s, nil
}

// WithinBusinessHours evaluates the schedule at now, interpreted in tz.
// An unknown timezone or malformed range closes the gate rather than letting
// it default open: an agent that misconfigures hours should under-send.
func WithinBusinessHours(raw, tz string, now time.Time) (bool, error) {
	sched, err := ParseSchedule(raw)
	if err != nil {
		return false, err
	}
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", tz, err)
	}

	local := now.In(loc)
	ranges := sched[weekdayKeys[local.Weekday()]]
	minute := local.Hour()*60 + local.Minute()

	for _, r := range ranges {
		open, err := parseClock(r[0])
		if err != nil {
			return false, err
		}
		close_, err := parseClock(r[1])
		if err != nil {
			return false, err
		}
		if minute >= open && minute < close_ {
			return true, nil
		}
	}
	return false, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
