package state

import "time"

// isoLayout is the second-precision, UTC ISO-8601 layout used for the
// start-time index. Second precision keeps filenames both sortable
// and human-scannable; uniqueness across concurrent launches is
// enforced by retry in setStartTime, not by finer precision.
const isoLayout = "2006-01-02T15:04:05Z"

func iso(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseTimestamp parses a start-time index filename back into a time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

// FormatTimestamp renders t in the same layout used for start-time
// index filenames, so callers (e.g. cleanup's cutoff comparison) can
// compare against index entries lexicographically.
func FormatTimestamp(t time.Time) string {
	return iso(t)
}
