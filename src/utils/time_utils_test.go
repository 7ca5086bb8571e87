package utils

import (
	"testing"
	"time"
)

func TestResetTime(t *testing.T) {
	ts := time.Date(2026, 3, 10, 15, 42, 37, 123456, time.UTC)

	if got := ResetTime(ts, "minute"); got.Second() != 0 || got.Minute() != 42 {
		t.Fatalf("minute reset wrong: %s", got)
	}
	if got := ResetTime(ts, "hour"); got.Minute() != 0 || got.Hour() != 15 {
		t.Fatalf("hour reset wrong: %s", got)
	}
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := ResetTime(ts, "day"); !got.Equal(want) {
		t.Fatalf("day reset wrong: %s", got)
	}
	if got := ResetTime(ts, "unknown"); !got.Equal(ts) {
		t.Fatalf("unknown granularity must be a no-op: %s", got)
	}
}

func TestResetTimeDayUsesUTC(t *testing.T) {
	// 23:30 in UTC+5 is 18:30 UTC: same UTC day.
	zone := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2026, 3, 10, 23, 30, 0, 0, zone)

	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := ResetTime(ts, "day"); !got.Equal(want) {
		t.Fatalf("day reset must be UTC midnight, got %s", got)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 3, 10, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	c := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	if !SameDay(a, b) {
		t.Fatal("same UTC day reported as different")
	}
	if SameDay(b, c) {
		t.Fatal("midnight boundary reported as same day")
	}
}
