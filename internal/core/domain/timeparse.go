package domain

import (
	"strconv"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02-15-04-05",
	"2006-01-02-15-04",
	"2006-01-02-15",
	"2006-01-02",
}

// ParseTime parses a build context timestamp. Times without a zone are UTC.
// A bare integer is read as Unix seconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, zerr.With(ErrInvalidTime, "value", s)
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, zerr.With(ErrInvalidTime, "value", s)
}
