package dbx

import "time"

// SQLite has no time type; timestamps are stored as RFC 3339 TEXT in UTC.

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reverses FormatTime. Rows written before the column existed hold
// "" and come back as the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
