package printer

import (
	"fmt"
	"time"
)

// Age returns the compact elapsed time between t and now.
// Examples: "12s", "5m", "3h", "2d", "-" for future times.
func Age(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < 0:
		return "-"
	case diff < time.Minute:
		return fmt.Sprintf("%ds", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd", int(diff.Hours()/24))
	}
}

// FormatTimestamp returns a formatted timestamp string in UTC.
// Format: "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
