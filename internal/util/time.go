package util

import "time"

const TimestampLayout = "2006-01-02 15:04:05 MST"

func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatTimestamp renders t in UTC, or "N/A" for the zero time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.UTC().Format(TimestampLayout)
}
