package planner

import (
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"montag": time.Monday, "dienstag": time.Tuesday, "mittwoch": time.Wednesday,
	"donnerstag": time.Thursday, "freitag": time.Friday, "samstag": time.Saturday, "sonntag": time.Sunday,
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday, "sunday": time.Sunday,
}

// ParseWeekday accepts German or English day names in any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// origin resolves minute zero of the run. An explicit RFC3339 origin wins;
// a weekday picks its next occurrence, today included, at the workday
// start; otherwise today's workday start is used.
func (p *Planner) origin(origin, weekday string) (time.Time, error) {
	if origin != "" {
		t, err := time.Parse(time.RFC3339, origin)
		if err != nil {
			return time.Time{}, invalid("origin", "not RFC3339: %v", err)
		}
		return t, nil
	}
	now := p.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), WorkdayStartHour, 0, 0, 0, time.UTC)
	if weekday == "" {
		return start, nil
	}
	d, ok := ParseWeekday(weekday)
	if !ok {
		return time.Time{}, invalid("weekday", "unknown day %q", weekday)
	}
	ahead := (int(d) - int(now.Weekday()) + 7) % 7
	return start.AddDate(0, 0, ahead), nil
}
