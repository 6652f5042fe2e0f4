package format

import (
	"strconv"
	"strings"
	"time"
)

const (
	day   = 24 * time.Hour
	month = 30 * day
	year  = 365 * day
)

var durationUnits = []struct {
	name string
	size time.Duration
}{
	{"year", year},
	{"month", month},
	{"day", day},
	{"hour", time.Hour},
	{"minute", time.Minute},
	{"second", time.Second},
}

// Duration renders d as "1 day 2 hours 5 seconds", largest units first.
// Zero units are omitted; seconds are always shown when nothing else is.
// Negative durations count as zero and sub-second parts are dropped.
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)

	var parts []string
	for _, u := range durationUnits {
		n := int64(d / u.size)
		d -= time.Duration(n) * u.size
		if n == 0 && !(u.size == time.Second && len(parts) == 0) {
			continue
		}
		parts = append(parts, plural(n, u.name))
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	s := strconv.FormatInt(n, 10) + " " + unit
	if n != 1 {
		s += "s"
	}
	return s
}
