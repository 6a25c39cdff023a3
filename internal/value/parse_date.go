package value

import (
	"strings"
	"time"
)

// dateLayouts are tried in order; the first one that parses wins. This
// mirrors spec §4.1's list of accepted formats: YYYY/MM/DD, MM/DD/YYYY,
// "Mon DD YYYY [HH:MM:SS]", and ISO-8601.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"Jan 2 2006 15:04:05",
	"Jan 2 2006",
	"Jan 02 2006 15:04:05",
	"Jan 02 2006",
}

// ParseDate attempts every accepted layout in turn and fails naming the
// offending token when none match.
func ParseDate(token string) (time.Time, error) {
	s := strings.TrimSpace(token)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, newParseError("DATE", token, "unrecognized date format")
}
