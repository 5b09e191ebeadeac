package api

import (
	"fmt"
	"strings"
	"time"
)

// wireInstant is the UTC ISO-8601 format the backend schedules in.
const wireInstant = "2006-01-02T15:04:05.000Z"

// localInput covers the values a datetime form field produces, with or
// without a seconds component.
var localInputLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ToUTCInstant converts a locally entered wall-clock value to the UTC instant
// the backend expects. The backend schedules in UTC, so this conversion is the
// correctness boundary for trigger dates: local "2025-06-01T09:00" in UTC+5:30
// becomes "2025-06-01T03:30:00.000Z".
func ToUTCInstant(value string, loc *time.Location) (string, error) {
	value = strings.TrimSpace(value)
	for _, layout := range localInputLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts.UTC().Format(wireInstant), nil
		}
	}
	// Already a full instant; normalize to UTC.
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC().Format(wireInstant), nil
	}
	return "", fmt.Errorf("invalid date/time value %q", value)
}

// TruncateForEdit strips the fractional-second suffix from a wire instant so
// it fits an editable datetime field, mirroring the snapshot taken when a row
// enters edit mode.
func TruncateForEdit(instant string) string {
	if i := strings.IndexByte(instant, '.'); i >= 0 {
		return instant[:i]
	}
	return strings.TrimSuffix(instant, "Z")
}
