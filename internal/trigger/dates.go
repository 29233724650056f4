package trigger

import (
	"encoding/json"
	"strings"
	"time"
)

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

var rangeSeparators = []string{" - ", " – ", " to "}

var rangeFieldPairs = [][2]string{
	{"start", "end"},
	{"checkin", "checkout"},
	{"check_in", "check_out"},
	{"from", "to"},
}

// ParseDate parses a calendar date in any of the layouts the booking form
// has produced and returns it at midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

// ParseDateRange reads a combined check-in/check-out answer. Accepted shapes:
// "start - end", "start to end", a two element array, or an object with
// start/end style fields.
func ParseDateRange(raw any) (time.Time, time.Time, bool) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return ParseDateRange(decoded)
			}
		}
		for _, sep := range rangeSeparators {
			if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
				in, ok1 := ParseDate(parts[0])
				out, ok2 := ParseDate(parts[1])
				if ok1 && ok2 {
					return in, out, true
				}
			}
		}
	case []any:
		if len(v) >= 2 {
			in, ok1 := parseDateValue(v[0])
			out, ok2 := parseDateValue(v[1])
			if ok1 && ok2 {
				return in, out, true
			}
		}
	case []string:
		if len(v) >= 2 {
			in, ok1 := ParseDate(v[0])
			out, ok2 := ParseDate(v[1])
			if ok1 && ok2 {
				return in, out, true
			}
		}
	case map[string]any:
		lower := make(map[string]any, len(v))
		for k, val := range v {
			lower[strings.ToLower(strings.TrimSpace(k))] = val
		}
		for _, pair := range rangeFieldPairs {
			a, okA := lower[pair[0]]
			b, okB := lower[pair[1]]
			if !okA || !okB {
				continue
			}
			in, ok1 := parseDateValue(a)
			out, ok2 := parseDateValue(b)
			if ok1 && ok2 {
				return in, out, true
			}
		}
	}
	return time.Time{}, time.Time{}, false
}

func parseDateValue(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		return ParseDate(v)
	case time.Time:
		return dateOnly(v), true
	default:
		return time.Time{}, false
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
