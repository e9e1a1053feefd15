package model

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var localTimestampLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
}

// ParseLocalTimestamp reads a timestamp reported by a ledger. Values carrying an
// offset are honoured; wall-clock values are read in loc.
func ParseLocalTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range localTimestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// ParseDate validates a YYYY-MM-DD calendar date and returns its midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be formatted as YYYY-MM-DD", value)
	}
	return t, nil
}

// DayBounds returns [start, end) of the calendar day in loc.
func DayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}
