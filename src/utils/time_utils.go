package utils

import "time"

// ResetTime resets the time component based on the granularity specified.
// Pass "minute" to reset seconds to zero, "hour" to reset minutes and
// seconds, "day" to reset to UTC midnight.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute)
	case "hour":
		return t.Truncate(time.Hour)
	case "day":
		u := t.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// SameDay reports whether both times fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return ResetTime(a, "day").Equal(ResetTime(b, "day"))
}
