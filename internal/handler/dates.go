package handler

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// parseDate parses a YYYY-MM-DD query parameter as a UTC calendar date.
func parseDate(v string) (time.Time, error) {
	date, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", v)
	}
	return date, nil
}
