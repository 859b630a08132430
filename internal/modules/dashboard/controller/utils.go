package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"swapit-dashboard/internal/catalog"
)

var errMissingBound = errors.New("both 'start' and 'end' are required")

// parseDate accepts a calendar date, or an ISO datetime whose date part is used.
func parseDate(name, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(catalog.DateLayout) && (s[len(catalog.DateLayout)] == 'T' || s[len(catalog.DateLayout)] == ' ') {
		s = s[:len(catalog.DateLayout)]
	}
	t, err := time.Parse(catalog.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid '%s' (expected YYYY-MM-DD)", name)
	}
	return t, nil
}

// parseRangeQuery reads start and end. errMissingBound is returned when
// either is absent so callers can choose how to suppress the update.
func parseRangeQuery(r *http.Request) (start time.Time, end time.Time, err error) {
	q := r.URL.Query()
	startStr, endStr := q.Get("start"), q.Get("end")
	if strings.TrimSpace(startStr) == "" || strings.TrimSpace(endStr) == "" {
		return time.Time{}, time.Time{}, errMissingBound
	}
	if start, err = parseDate("start", startStr); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end, err = parseDate("end", endStr); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, errors.New("'start' must be <= 'end'")
	}
	return start, end, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(catalog.DateLayout)
}
