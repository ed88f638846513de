package core

import (
	"fmt"
	"strings"
	"time"
)

// epochDate anchors TIME values that carry no date component.
var epochDate = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// NormalizeOffset canonicalises short trailing timezone offsets ("+00",
// "-05") to the full "+00:00" form expected by RFC3339 parsers. PostgreSQL
// emits the short form for whole-hour offsets.
func NormalizeOffset(s string) string {
	if len(s) < 3 {
		return s
	}
	tail := s[len(s)-3:]
	if (tail[0] == '+' || tail[0] == '-') && isDigits(tail[1:]) {
		return s + ":00"
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseDateTime parses a textual timestamp into UTC, recording the source
// offset when the text carried one. Short offsets are normalised first.
func ParseDateTime(s string) (t time.Time, sourceZone string, err error) {
	s = NormalizeOffset(strings.TrimSpace(s))
	for _, layout := range dateTimeLayouts {
		parsed, perr := time.Parse(layout, s)
		if perr != nil {
			continue
		}
		zone := ""
		if strings.HasSuffix(layout, "Z07:00") || layout == time.RFC3339Nano {
			zone = parsed.Format("-07:00")
		}
		return parsed.UTC(), zone, nil
	}
	return time.Time{}, "", fmt.Errorf("unparseable timestamp %q", s)
}

// ParseDate parses a calendar date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return t.UTC(), nil
}

// ParseTimeOfDay parses a time of day, anchoring it to 1970-01-01 UTC.
func ParseTimeOfDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// A trailing offset, short or canonical, applies before anchoring.
	s = NormalizeOffset(s)
	for _, layout := range []string{"15:04:05.999999999Z07:00", "15:04:05.999999999"} {
		parsed, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		parsed = parsed.UTC()
		return epochDate.Add(
			time.Duration(parsed.Hour())*time.Hour +
				time.Duration(parsed.Minute())*time.Minute +
				time.Duration(parsed.Second())*time.Second +
				time.Duration(parsed.Nanosecond())), nil
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", s)
}

// ParseInterval parses either a Go-style duration ("1h30m") or the SQL
// "HH:MM:SS" interval form.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var h, m int
	var sec float64
	if n, _ := fmt.Sscanf(s, "%d:%d:%f", &h, &m, &sec); n == 3 {
		return time.Duration(h)*time.Hour +
			time.Duration(m)*time.Minute +
			time.Duration(sec*float64(time.Second)), nil
	}
	return 0, fmt.Errorf("unparseable interval %q", s)
}
