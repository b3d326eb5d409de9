package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// absoluteLayout matches the persisted run_at format.
const absoluteLayout = "2006-01-02 15:04:05"

// Bare time-of-day formats, 24h and 12h, with and without seconds.
var clockLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM"}

var relativeRe = regexp.MustCompile(`^(\d+)([mhd])$`)

// ResolveScheduleTime interprets a schedule: value against now.
// Formats are tried in order; the first that parses wins:
//
//  1. Absolute "2006-01-02 15:04:05" in now's zone. Must be strictly future.
//  2. Bare time-of-day, combined with today's date; rolled forward one day
//     when the result is not after now.
//  3. Relative "<n>m", "<n>h" or "<n>d" offsets from now.
//
// Anything else is unresolvable and reported via ok=false.
func ResolveScheduleTime(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	loc := now.Location()

	if t, err := time.ParseInLocation(absoluteLayout, value, loc); err == nil {
		if !t.After(now) {
			return time.Time{}, false
		}
		return t, true
	}

	// AM/PM layouts need the marker upper-cased for Go's parser.
	clock := strings.ToUpper(value)
	for _, layout := range clockLayouts {
		t, err := time.ParseInLocation(layout, clock, loc)
		if err != nil {
			continue
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, true
	}

	if m := relativeRe.FindStringSubmatch(strings.ToLower(value)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		var unit time.Duration
		switch m[2] {
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		}
		return now.Add(time.Duration(n) * unit), true
	}

	return time.Time{}, false
}
