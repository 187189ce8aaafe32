package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	timeLayout = "15:04:05"
	dateLayout = "2006-01-02"
)

var (
	ErrInvalidTime = errors.New("unrecognized time format")
	ErrInvalidDate = errors.New("unrecognized date format")
)

// Accepted clock inputs. 12-hour layouts are tried against an upper-cased
// input so "2:30 pm" and "2:30PM" both parse.
var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04:05PM",
	"3:04PM",
}

var dateLayouts = []string{
	dateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeTime converts a 12 or 24-hour clock string to HH:MM:SS.
// Anything else is rejected with ErrInvalidTime.
func NormalizeTime(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTime)
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Format(timeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTime, raw)
}

// NormalizeDate returns the calendar date of raw at midnight UTC, dropping any
// time-of-day component.
func NormalizeDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}

// FormatWhen renders a booking slot for notification text,
// e.g. "Fri, Mar 1, 2024 at 2:30 PM".
func FormatWhen(b Booking) string {
	return b.StartsAt().Format("Mon, Jan 2, 2006 at 3:04 PM")
}
