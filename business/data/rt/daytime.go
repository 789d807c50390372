package rt

import (
	"fmt"
	"time"
)

// DayTime is a UTC time of day expressed in seconds since midnight.
// Theoretical schedules express times past 24:00 modulo 24h; detecting
// the rollover is the merge engine's job, not DayTime's.
type DayTime int

// MakeDayTime builds a DayTime from clock components.
func MakeDayTime(hour, minute, second int) DayTime {
	return DayTime(hour*3600 + minute*60 + second)
}

// DayTimeOf extracts the UTC time of day from an absolute datetime.
func DayTimeOf(t time.Time) DayTime {
	utc := t.UTC()
	return MakeDayTime(utc.Hour(), utc.Minute(), utc.Second())
}

// On combines the time of day with a circulation date into a naive-UTC
// absolute datetime. Datetimes are kept naive (zero offset, no location
// semantics beyond UTC) for storage-layer compatibility.
func (d DayTime) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC).
		Add(time.Duration(d) * time.Second)
}

func (d DayTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", d/3600, d/60%60, d%60)
}

// dayTimeLayouts are the datetime formats upstream feeds are known to use
// for absolute stop times on added stops.
var dayTimeLayouts = []string{
	"20060102T150405-0700",
	"20060102T150405Z0700",
	time.RFC3339,
	"20060102T150405",
}

// ParseDayTime extracts the UTC time of day from a datetime string that may
// carry any timezone offset. "20181108T093000+0100" parses to 08:30:00.
func ParseDayTime(s string) (DayTime, error) {
	for _, layout := range dayTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DayTimeOf(t), nil
		}
	}
	return 0, fmt.Errorf("unparseable datetime %q", s)
}
